package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/pipeline"
	"github.com/jackzampolin/bindery/internal/render"
	"github.com/jackzampolin/bindery/internal/runstate"
	"github.com/jackzampolin/bindery/internal/scheduler"
)

var (
	reprocessPages []int
	reprocessForce bool
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <target>",
	Short: "Retry failed pages of a previous run",
	Long: `Retry failed pages of a previous run.

Without --pages, all currently failed pages are retried. Pages that have
exhausted the retry budget are skipped unless --force is given. Retried
pages always reprocess from the rendered source image; the cache is
bypassed because a prior cached output is what failed.

Examples:
  bindery reprocess my-book
  bindery reprocess my-book --pages 3,17,42
  bindery reprocess my-book --force`,
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
		cfg := cm.Get()
		target := args[0]

		store := runstate.NewStore(h, nil)
		state, err := store.Load(target)
		if err != nil {
			return err
		}

		rp := runstate.NewReprocessor(cfg.MaxRetries, nil)
		selected, err := rp.Select(state, reprocessPages, reprocessForce)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			fmt.Println("No failed pages to reprocess.")
			return nil
		}
		fmt.Printf("Reprocessing %d page(s): %v\n", len(selected), selected)

		pages := make([]*page.Page, 0, len(selected))
		for _, idx := range selected {
			pages = append(pages, page.New(idx, h.PagePath(target, idx), nil))
		}

		deps, cleanup, err := buildDeps(cfg, h, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		// Failed pages reprocess fresh: a cached output for this
		// fingerprint is exactly the thing that did not work.
		opts := pipeline.Options{Force: true}
		orch := pipeline.New(cfg, h, target, deps, cache.NewStore(h.CachePath(), nil), opts, nil)
		sched := scheduler.New(cfg, orch, store, nil)

		results, runErr := sched.Run(cmd.Context(), state, pages)
		rp.Merge(state, results)
		if err := store.Save(state); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}

		c := state.Summary()
		fmt.Printf("Reprocess complete: %d done, %d skipped, %d failed (%d permanent)\n",
			c.Done, c.Skipped, c.Failed, c.PermanentlyFailed)

		renderer := render.NewPDFRenderer(cfg.Resolution, nil)
		return assemble(cmd.Context(), renderer, h, state, target)
	},
}

func init() {
	reprocessCmd.Flags().IntSliceVar(&reprocessPages, "pages", nil, "page indexes to retry (default: all failed)")
	reprocessCmd.Flags().BoolVar(&reprocessForce, "force", false, "retry pages past the retry budget")
	rootCmd.AddCommand(reprocessCmd)
}
