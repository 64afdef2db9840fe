// Package pipeline runs the per-page enhancement sequence with fault
// isolation: a failing stage costs that stage's transform, never the
// page, and a failing page never aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/home"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/stage"
)

// Options tune a single run's cache interaction.
type Options struct {
	// Force bypasses cache lookup; completed pages still write fresh
	// cache entries.
	Force bool

	// SkipExisting treats pages whose processed output file already
	// exists as Done, before the cache is even consulted.
	SkipExisting bool
}

// Orchestrator processes one page at a time through the fixed stage
// sequence. It is safe for concurrent use: per-page state lives on the
// page, and the cache serializes its own writes.
type Orchestrator struct {
	cfg    *config.Config
	home   *home.Dir
	target string
	stages []stage.Stage
	params []cache.StageParams
	store  *cache.Store
	opts   Options
	logger *slog.Logger
}

// New creates an orchestrator for one run over one target.
func New(cfg *config.Config, h *home.Dir, target string, deps stage.Deps, store *cache.Store, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline", "target", target)
	stages, params := stage.Sequence(cfg, deps, logger)
	return &Orchestrator{
		cfg:    cfg,
		home:   h,
		target: target,
		stages: stages,
		params: params,
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// Plan runs the planning pass of any stage that needs whole-document
// context (page numbering). Called once before workers start.
func (o *Orchestrator) Plan(ctx context.Context, pages []*page.Page) error {
	for _, s := range o.stages {
		planner, ok := s.(stage.Planner)
		if !ok {
			continue
		}
		if err := planner.Plan(ctx, pages); err != nil {
			return fmt.Errorf("stage %s planning failed: %w", s.Name(), err)
		}
	}
	return nil
}

// Process runs one page to a terminal status. The returned error is
// non-nil only for cancellation; page-level problems land in the result.
func (o *Orchestrator) Process(ctx context.Context, p *page.Page) (page.Result, error) {
	if err := ctx.Err(); err != nil {
		return page.Result{}, err
	}

	outPath := o.home.ProcessedPagePath(o.target, p.Index)

	if o.opts.SkipExisting {
		if _, err := os.Stat(outPath); err == nil {
			p.Status = page.StatusDone
			o.logger.Debug("output exists, skipping page", "page", p.Index)
			r := page.ResultOf(p)
			r.OutputPath = outPath
			return r, nil
		}
	}

	source, err := os.ReadFile(p.SourcePath)
	if err != nil {
		p.Status = page.StatusFailed
		p.Record("load", false, 0, err)
		return page.ResultOf(p), nil
	}

	if p.Buffer == nil {
		img, err := imaging.LoadPNG(p.SourcePath)
		if err != nil {
			p.Status = page.StatusFailed
			p.Record("load", false, 0, err)
			return page.ResultOf(p), nil
		}
		p.Buffer = img
	}

	// Blank pages bypass every stage, the cache included.
	if o.isBlank(p.Buffer) {
		p.Blank = true
		p.Status = page.StatusSkipped
		o.logger.Debug("blank page, skipping", "page", p.Index)
		return page.ResultOf(p), nil
	}

	fp, err := cache.Fingerprint(source, o.params)
	if err != nil {
		p.Status = page.StatusFailed
		p.Record("fingerprint", false, 0, err)
		return page.ResultOf(p), nil
	}

	if !o.opts.Force {
		if cached, ok := o.store.Lookup(fp); ok {
			if err := os.WriteFile(outPath, cached, 0o644); err != nil {
				p.Status = page.StatusFailed
				p.Record("cache", false, 0, err)
				return page.ResultOf(p), nil
			}
			p.Status = page.StatusDone
			o.logger.Debug("cache hit", "page", p.Index, "fingerprint", fp[:8])
			r := page.ResultOf(p)
			r.FromCache = true
			r.OutputPath = outPath
			return r, nil
		}
	}

	o.runStages(ctx, p)
	if err := ctx.Err(); err != nil {
		// Cancellation mid-page: leave the page Pending for resume.
		return page.Result{}, err
	}

	encoded, err := imaging.EncodePNG(p.Buffer)
	if err != nil {
		p.Status = page.StatusFailed
		p.Record("encode", false, 0, err)
		return page.ResultOf(p), nil
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		p.Status = page.StatusFailed
		p.Record("write", false, 0, err)
		return page.ResultOf(p), nil
	}

	if p.AnyFailed() {
		p.Status = page.StatusFailed
	} else {
		p.Status = page.StatusDone
		// Only clean completions earn a cache entry.
		if err := o.store.Store(fp, encoded, cache.SourceHash(source), o.params); err != nil {
			o.logger.Warn("failed to cache page output", "page", p.Index, "error", err)
		}
	}

	r := page.ResultOf(p)
	r.OutputPath = outPath
	return r, nil
}

// runStages executes the enabled stage sequence with fault isolation:
// a failed stage's output is discarded and the next stage consumes the
// last good buffer.
func (o *Orchestrator) runStages(ctx context.Context, p *page.Page) {
	for _, s := range o.stages {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		err := s.Apply(ctx, p)
		elapsed := time.Since(start)
		p.Record(s.Name(), err == nil, elapsed, err)
		if err != nil {
			o.logger.Warn("stage failed, continuing with previous buffer",
				"page", p.Index, "stage", s.Name(), "error", err)
		}
	}
}

// blankInkLevel is the gray level below which a pixel counts as ink for
// blank classification. Fixed rather than Otsu-derived: Otsu degenerates
// on pages that are almost entirely background.
const blankInkLevel uint8 = 160

// isBlank classifies a page as blank when its ink coverage over the full
// image area falls below the configured threshold.
func (o *Orchestrator) isBlank(img image.Image) bool {
	gray := imaging.ToGray(img)
	return imaging.InkCoverage(gray, blankInkLevel) < o.cfg.BlankInkThreshold
}
