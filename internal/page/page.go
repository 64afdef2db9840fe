// Package page holds the in-memory representation of one page of the
// source document while it moves through the pipeline. A page's buffer is
// owned exclusively by whichever stage is currently executing on it.
package page

import (
	"image"
	"time"
)

// Status is the lifecycle state of a page within a run.
type Status string

const (
	StatusPending Status = "pending"
	StatusSkipped Status = "skipped"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is final for the current run.
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusDone || s == StatusFailed
}

// Outcome records the result of one stage execution on one page.
type Outcome struct {
	Stage   string        `json:"stage" yaml:"stage"`
	Success bool          `json:"success" yaml:"success"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Page is one page of the source document. The buffer is replaced, not
// appended, by each executed stage; once Status reaches a terminal value
// the page is no longer mutated.
type Page struct {
	// Index is the 0-based position within the source document.
	Index int

	// SourcePath is the rendered source image on disk.
	SourcePath string

	// Buffer is the current raster. Stages replace it on success.
	Buffer image.Image

	// Blank is set by the blank-page classifier.
	Blank bool

	Status   Status
	Outcomes []Outcome
}

// New creates a pending page for the given index and source image.
func New(index int, sourcePath string, buf image.Image) *Page {
	return &Page{
		Index:      index,
		SourcePath: sourcePath,
		Buffer:     buf,
		Status:     StatusPending,
	}
}

// Record appends a stage outcome.
func (p *Page) Record(stage string, success bool, elapsed time.Duration, err error) {
	o := Outcome{Stage: stage, Success: success, Elapsed: elapsed}
	if err != nil {
		o.Error = err.Error()
	}
	p.Outcomes = append(p.Outcomes, o)
}

// AnyFailed reports whether any recorded stage failed.
func (p *Page) AnyFailed() bool {
	for _, o := range p.Outcomes {
		if !o.Success {
			return true
		}
	}
	return false
}

// FirstFailedStage returns the name of the first failed stage, or "".
func (p *Page) FirstFailedStage() string {
	for _, o := range p.Outcomes {
		if !o.Success {
			return o.Stage
		}
	}
	return ""
}

// Result is the per-page outcome handed back to the scheduler and merged
// into run state. Failed pages still reference a usable output buffer.
type Result struct {
	Index       int       `json:"index"`
	Status      Status    `json:"status"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	FromCache   bool      `json:"from_cache,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Outcomes    []Outcome `json:"outcomes,omitempty"`
}

// ResultOf summarizes a processed page.
func ResultOf(p *Page) Result {
	r := Result{
		Index:    p.Index,
		Status:   p.Status,
		Outcomes: p.Outcomes,
	}
	if p.AnyFailed() {
		r.FailedStage = p.FirstFailedStage()
		for _, o := range p.Outcomes {
			if !o.Success {
				r.Error = o.Error
				break
			}
		}
	}
	return r
}
