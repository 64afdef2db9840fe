// Package runstate persists per-run, per-page progress so interrupted
// runs resume exactly where they left off and failed pages can be
// reprocessed without redoing finished work.
package runstate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/bindery/internal/page"
)

// PageRecord is one page's durable status within a run.
type PageRecord struct {
	Status      page.Status `json:"status" yaml:"status"`
	FailedStage string      `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty"`

	// Retries counts reprocess re-entries, not in-run attempts.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`

	// Permanent marks a page that exhausted max_retries; it is excluded
	// from further reprocessing unless forced.
	Permanent bool `json:"permanent,omitempty" yaml:"permanent,omitempty"`
}

// RunState is the durable record of one conversion job. One RunState
// exists per output target; it is superseded only by completing a fresh
// run over the same target.
type RunState struct {
	ID         string    `yaml:"id"`
	Target     string    `yaml:"target"`
	Source     string    `yaml:"source"`
	ConfigHash string    `yaml:"config_hash"`
	PageCount  int       `yaml:"page_count"`
	CreatedAt  time.Time `yaml:"created_at"`

	// CheckpointedAt is the time of the last durable checkpoint.
	CheckpointedAt time.Time `yaml:"checkpointed_at"`

	Pages map[int]*PageRecord `yaml:"pages"`

	mu sync.RWMutex
}

// New creates run state with every page Pending.
func New(target, source, configHash string, pageCount int) *RunState {
	pages := make(map[int]*PageRecord, pageCount)
	for i := 0; i < pageCount; i++ {
		pages[i] = &PageRecord{Status: page.StatusPending}
	}
	return &RunState{
		ID:         uuid.NewString(),
		Target:     target,
		Source:     source,
		ConfigHash: configHash,
		PageCount:  pageCount,
		CreatedAt:  time.Now().UTC(),
		Pages:      pages,
	}
}

// Validate checks the state against the current document. A recorded
// page index beyond the document's page count means the source changed
// between runs; that is a run-level error, never ignored.
func (s *RunState) Validate(pageCount int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for idx := range s.Pages {
		if idx < 0 || idx >= pageCount {
			return fmt.Errorf("run state references page %d but document has %d pages (source changed since last run?)",
				idx, pageCount)
		}
	}
	return nil
}

// Apply merges one page result. Terminal statuses are never silently
// overwritten: re-recording a Done or Skipped page is a no-op unless the
// page was explicitly reset to Pending first.
func (s *RunState) Apply(r page.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Pages[r.Index]
	if !ok {
		rec = &PageRecord{Status: page.StatusPending}
		s.Pages[r.Index] = rec
	}
	if rec.Status.Terminal() {
		return
	}

	rec.Status = r.Status
	rec.FailedStage = r.FailedStage
	rec.Error = r.Error
}

// Reset returns a page to Pending for reprocessing, preserving its
// retry counter. Only Failed pages can be reset.
func (s *RunState) Reset(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Pages[index]
	if !ok {
		return fmt.Errorf("page %d not in run state", index)
	}
	if rec.Status != page.StatusFailed {
		return fmt.Errorf("page %d is %s, only failed pages can be reprocessed", index, rec.Status)
	}

	rec.Status = page.StatusPending
	rec.FailedStage = ""
	rec.Error = ""
	return nil
}

// Status returns a copy of one page's record.
func (s *RunState) Status(index int) (PageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.Pages[index]
	if !ok {
		return PageRecord{}, false
	}
	return *rec, true
}

// Pending returns page indexes not yet terminal, sorted.
func (s *RunState) Pending() []int {
	return s.withStatus(page.StatusPending)
}

// Failed returns failed page indexes, sorted.
func (s *RunState) Failed() []int {
	return s.withStatus(page.StatusFailed)
}

func (s *RunState) withStatus(status page.Status) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for idx, rec := range s.Pages {
		if rec.Status == status {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// Counts summarizes page statuses for status reporting.
type Counts struct {
	Pending int
	Skipped int
	Done    int
	Failed  int

	// PermanentlyFailed pages are also counted in Failed.
	PermanentlyFailed int
}

// Summary tallies page statuses. Safe to call on a snapshot loaded from
// disk while a run is live elsewhere; no run-time locks are involved.
func (s *RunState) Summary() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for _, rec := range s.Pages {
		switch rec.Status {
		case page.StatusPending:
			c.Pending++
		case page.StatusSkipped:
			c.Skipped++
		case page.StatusDone:
			c.Done++
		case page.StatusFailed:
			c.Failed++
			if rec.Permanent {
				c.PermanentlyFailed++
			}
		}
	}
	return c
}

// Snapshot returns a deep copy safe to serialize while workers keep
// applying results to the original.
func (s *RunState) Snapshot() *RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make(map[int]*PageRecord, len(s.Pages))
	for idx, rec := range s.Pages {
		cp := *rec
		pages[idx] = &cp
	}
	return &RunState{
		ID:             s.ID,
		Target:         s.Target,
		Source:         s.Source,
		ConfigHash:     s.ConfigHash,
		PageCount:      s.PageCount,
		CreatedAt:      s.CreatedAt,
		CheckpointedAt: s.CheckpointedAt,
		Pages:          pages,
	}
}

// Complete reports whether every page reached a terminal status.
func (s *RunState) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.Pages {
		if !rec.Status.Terminal() {
			return false
		}
	}
	return true
}
