package runstate

import (
	"fmt"
	"log/slog"

	"github.com/jackzampolin/bindery/internal/page"
)

// Reprocessor computes and prepares the page set for a reprocess pass.
// Retry accounting lives here: each re-entry increments the page's
// counter, and a page that reaches maxRetries is marked permanently
// Failed and excluded from further passes unless forced.
type Reprocessor struct {
	maxRetries int
	logger     *slog.Logger
}

// NewReprocessor creates a reprocess controller.
func NewReprocessor(maxRetries int, logger *slog.Logger) *Reprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reprocessor{maxRetries: maxRetries, logger: logger.With("component", "reprocess")}
}

// Select resets the target pages to Pending and returns their indexes.
// An empty requested list means all currently Failed pages. Pages past
// the retry budget are skipped unless force is set. Requested pages
// that are not Failed are an error: reprocessing a Done page would
// silently discard verified work.
func (r *Reprocessor) Select(state *RunState, requested []int, force bool) ([]int, error) {
	targets := requested
	if len(targets) == 0 {
		targets = state.Failed()
	}

	var selected []int
	for _, idx := range targets {
		rec, ok := state.Status(idx)
		if !ok {
			return nil, fmt.Errorf("page %d not in run state", idx)
		}
		if rec.Permanent && !force {
			r.logger.Warn("skipping permanently failed page (use --force to retry)",
				"page", idx, "retries", rec.Retries)
			continue
		}
		if err := state.Reset(idx); err != nil {
			return nil, err
		}
		state.bumpRetry(idx, force)
		selected = append(selected, idx)
	}

	if len(selected) == 0 && len(targets) > 0 {
		return nil, fmt.Errorf("no reprocessable pages: %d requested, all past retry budget", len(targets))
	}
	return selected, nil
}

// Merge applies reprocess results, re-marking pages that failed again
// and have exhausted the retry budget as permanent.
func (r *Reprocessor) Merge(state *RunState, results []page.Result) {
	for _, res := range results {
		state.Apply(res)
		if res.Status != page.StatusFailed {
			continue
		}
		rec, ok := state.Status(res.Index)
		if !ok {
			continue
		}
		if rec.Retries >= r.maxRetries {
			state.markPermanent(res.Index)
			r.logger.Warn("page exhausted retry budget, marking permanently failed",
				"page", res.Index, "retries", rec.Retries, "max_retries", r.maxRetries)
		}
	}
}

// bumpRetry increments a page's reprocess counter. A forced retry of a
// permanent page clears the permanent mark for this pass.
func (s *RunState) bumpRetry(index int, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.Pages[index]; ok {
		rec.Retries++
		if force {
			rec.Permanent = false
		}
	}
}

func (s *RunState) markPermanent(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.Pages[index]; ok {
		rec.Permanent = true
	}
}
