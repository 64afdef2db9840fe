// Package scheduler fans pages out to a bounded worker pool in chunks,
// checkpointing run state after each chunk so an interrupted run loses
// at most the chunk in flight.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/pipeline"
	"github.com/jackzampolin/bindery/internal/runstate"
)

// Scheduler owns cross-page parallelism. Stage execution is strictly
// sequential within a page; pages are the only parallel dimension.
type Scheduler struct {
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	store  *runstate.Store
	logger *slog.Logger
}

// New creates a scheduler.
func New(cfg *config.Config, orch *pipeline.Orchestrator, store *runstate.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, orch: orch, store: store, logger: logger.With("component", "scheduler")}
}

// Run processes the given pages to terminal status, checkpointing after
// every chunk. Results come back in page-index order regardless of
// completion order. On cancellation the error is returned after the
// completed portion has been checkpointed; in-flight pages stay Pending.
func (s *Scheduler) Run(ctx context.Context, state *runstate.RunState, pages []*page.Page) ([]page.Result, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	if err := s.orch.Plan(ctx, pages); err != nil {
		return nil, err
	}

	workers := s.cfg.EffectiveWorkers(runtime.NumCPU())
	var all []page.Result

	for _, chunk := range chunks(pages, s.cfg.ChunkSize) {
		results, err := s.runChunk(ctx, chunk, workers)

		// Whatever completed is durable, even on cancellation.
		for _, r := range results {
			state.Apply(r)
		}
		if len(results) > 0 {
			if cpErr := s.store.AppendCheckpoint(state, results); cpErr != nil {
				return nil, cpErr
			}
		}
		all = append(all, results...)

		// Release the chunk's buffers before the next chunk loads.
		for _, p := range chunk {
			p.Buffer = nil
		}

		if err != nil {
			return sorted(all), err
		}
		s.logger.Info("chunk complete", "pages", len(results), "total_done", len(all))
	}

	return sorted(all), nil
}

// runChunk processes one chunk through the worker pool and returns the
// results of pages that reached a terminal status.
func (s *Scheduler) runChunk(ctx context.Context, chunk []*page.Page, workers int) ([]page.Result, error) {
	slots := make([]*page.Result, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range chunk {
		g.Go(func() error {
			r, err := s.orch.Process(gctx, p)
			if err != nil {
				return err
			}
			slots[i] = &r
			return nil
		})
	}
	err := g.Wait()

	var results []page.Result
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, err
}

// chunks partitions pages; size 0 means a single chunk.
func chunks(pages []*page.Page, size int) [][]*page.Page {
	if size <= 0 || size >= len(pages) {
		return [][]*page.Page{pages}
	}
	var out [][]*page.Page
	for start := 0; start < len(pages); start += size {
		end := start + size
		if end > len(pages) {
			end = len(pages)
		}
		out = append(out, pages[start:end])
	}
	return out
}

func sorted(results []page.Result) []page.Result {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
