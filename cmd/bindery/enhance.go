package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/bindery/internal/bridge"
	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/home"
	"github.com/jackzampolin/bindery/internal/pagenum"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/pipeline"
	"github.com/jackzampolin/bindery/internal/render"
	"github.com/jackzampolin/bindery/internal/runstate"
	"github.com/jackzampolin/bindery/internal/scheduler"
	"github.com/jackzampolin/bindery/internal/stage"
)

var (
	enhanceForce        bool
	enhanceSkipExisting bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance <book.pdf>",
	Short: "Enhance a scanned book PDF",
	Long: `Enhance a scanned book PDF through the processing pipeline.

Pages are processed in parallel with per-page fault isolation: a failed
stage keeps the previous stage's output, and a failed page never aborts
the run. Progress is checkpointed so an interrupted run resumes where it
left off.

Examples:
  bindery enhance book.pdf
  bindery enhance book.pdf --force          # ignore cached page outputs
  bindery enhance book.pdf --skip-existing  # keep already-processed files`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := getConfig()
		if err != nil {
			return err
		}

		return runEnhance(cmd.Context(), h, cm.Get(), args[0], pipeline.Options{
			Force:        enhanceForce,
			SkipExisting: enhanceSkipExisting,
		})
	},
}

func init() {
	enhanceCmd.Flags().BoolVar(&enhanceForce, "force", false, "bypass the page cache (fresh entries are still written)")
	enhanceCmd.Flags().BoolVar(&enhanceSkipExisting, "skip-existing", false, "treat pages with existing output files as done")
	rootCmd.AddCommand(enhanceCmd)
}

// runEnhance is the full enhance flow, shared with the inbox watcher.
func runEnhance(ctx context.Context, h *home.Dir, cfg *config.Config, pdfPath string, opts pipeline.Options) error {
	logger := slog.Default()
	target := targetName(pdfPath)

	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("cannot read source document: %w", err)
	}
	if err := h.EnsureRunDirs(target); err != nil {
		return err
	}

	renderer := render.NewPDFRenderer(cfg.Resolution, logger)
	pageCount, err := renderer.PageCount(pdfPath)
	if err != nil {
		return fmt.Errorf("cannot read source document: %w", err)
	}

	cfgHash, err := cfg.Hash()
	if err != nil {
		return err
	}

	store := runstate.NewStore(h, logger)
	state, fresh, err := loadOrCreateState(store, target, pdfPath, cfgHash, pageCount)
	if err != nil {
		return err
	}
	if fresh {
		if err := store.Save(state); err != nil {
			return err
		}
	} else {
		logger.Info("resuming run", "target", target, "run", state.ID, "pending", len(state.Pending()))
	}

	pending := state.Pending()
	if len(pending) == 0 {
		fmt.Printf("Nothing to do: all %d pages are terminal (see 'bindery status %s')\n", pageCount, target)
		return assemble(ctx, renderer, h, state, target)
	}

	if err := renderPages(ctx, renderer, h, cfg, pdfPath, target, pending); err != nil {
		return err
	}

	pages := make([]*page.Page, 0, len(pending))
	for _, idx := range pending {
		pages = append(pages, page.New(idx, h.PagePath(target, idx), nil))
	}

	deps, cleanup, err := buildDeps(cfg, h, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := pipeline.New(cfg, h, target, deps, cache.NewStore(h.CachePath(), logger), opts, logger)
	sched := scheduler.New(cfg, orch, store, logger)

	_, runErr := sched.Run(ctx, state, pages)
	if err := store.Save(state); err != nil {
		return err
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println("Run interrupted; re-run the same command to resume.")
		}
		return runErr
	}

	c := state.Summary()
	fmt.Printf("Run complete: %d done, %d skipped, %d failed\n", c.Done, c.Skipped, c.Failed)
	if c.Failed > 0 {
		fmt.Printf("Retry failed pages with 'bindery reprocess %s'\n", target)
	}

	return assemble(ctx, renderer, h, state, target)
}

// loadOrCreateState resumes existing run state when the document and
// configuration still match, and starts fresh otherwise.
func loadOrCreateState(store *runstate.Store, target, source, cfgHash string, pageCount int) (*runstate.RunState, bool, error) {
	if !store.Exists(target) {
		return runstate.New(target, source, cfgHash, pageCount), true, nil
	}

	state, err := store.Load(target)
	if err != nil {
		return nil, false, err
	}
	if err := state.Validate(pageCount); err != nil {
		return nil, false, err
	}
	if state.ConfigHash != cfgHash {
		slog.Default().Info("configuration changed, starting fresh run", "target", target)
		return runstate.New(target, source, cfgHash, pageCount), true, nil
	}
	return state, false, nil
}

// renderPages rasterizes the source pages that are not on disk yet.
func renderPages(ctx context.Context, renderer render.Renderer, h *home.Dir, cfg *config.Config, pdfPath, target string, indexes []int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.EffectiveWorkers(runtime.NumCPU()))

	for _, idx := range indexes {
		g.Go(func() error {
			outPath := h.PagePath(target, idx)
			if _, err := os.Stat(outPath); err == nil {
				return nil
			}
			if err := renderer.RenderPage(gctx, pdfPath, idx, outPath); err != nil {
				return fmt.Errorf("failed to render page %d: %w", idx, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// assemble splices page outputs into the final PDF: processed files
// where they exist, source renders for skipped pages.
func assemble(ctx context.Context, renderer render.Renderer, h *home.Dir, state *runstate.RunState, target string) error {
	if !state.Complete() {
		return nil
	}

	var files []string
	for idx := 0; idx < state.PageCount; idx++ {
		processed := h.ProcessedPagePath(target, idx)
		if _, err := os.Stat(processed); err == nil {
			files = append(files, processed)
			continue
		}
		source := h.PagePath(target, idx)
		if _, err := os.Stat(source); err == nil {
			files = append(files, source)
			continue
		}
		return fmt.Errorf("page %d has neither processed nor source image; cannot assemble", idx)
	}

	outDir := outputDir
	if outDir == "" {
		outDir = h.OutputPath()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, target+".pdf")

	if err := renderer.Assemble(ctx, files, outPath); err != nil {
		return err
	}
	fmt.Printf("Assembled %s\n", outPath)
	return nil
}

// buildDeps wires the stage collaborators the configuration asks for.
func buildDeps(cfg *config.Config, h *home.Dir, logger *slog.Logger) (stage.Deps, func(), error) {
	deps := stage.Deps{WorkDir: h.Path()}
	cleanup := func() {}

	if cfg.Stages.Upscale.Enabled {
		switch cfg.Bridge.Mode {
		case "service":
			inv, err := bridge.NewService(bridge.ServiceInvokerConfig{
				BaseURL:     fmt.Sprintf("http://localhost:%s", cfg.Bridge.Port),
				MaxAttempts: cfg.Bridge.MaxAttempts,
				Logger:      logger,
			})
			if err != nil {
				return deps, cleanup, err
			}
			deps.Invoker = inv
		default:
			inv, err := bridge.NewSubprocess(bridge.SubprocessConfig{
				Command:     cfg.Bridge.Command,
				Script:      config.ResolveEnvVars(cfg.Bridge.Script),
				MaxAttempts: cfg.Bridge.MaxAttempts,
				Logger:      logger,
			})
			if err != nil {
				return deps, cleanup, err
			}
			deps.Invoker = inv
		}
	}

	if cfg.Stages.Align.Enabled {
		var engine pagenum.Engine
		if cfg.OCR.Engine == "gosseract" {
			ge, err := pagenum.NewGosseractEngine()
			if err != nil {
				return deps, cleanup, err
			}
			engine = ge
			cleanup = func() { ge.Close() }
		} else {
			engine = pagenum.NewTesseractEngine(cfg.OCR.TesseractCmd)
		}
		deps.Detector = pagenum.NewDetector(engine, cfg.Stages.Align.BandPercent, cfg.OCR.MinConfidence, logger)
	}

	return deps, cleanup, nil
}

// targetName derives the run's target name from the source filename.
func targetName(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
