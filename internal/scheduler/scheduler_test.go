package scheduler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/jackzampolin/bindery/internal/cache"
	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/home"
	"github.com/jackzampolin/bindery/internal/imaging"
	"github.com/jackzampolin/bindery/internal/page"
	"github.com/jackzampolin/bindery/internal/pipeline"
	"github.com/jackzampolin/bindery/internal/runstate"
	"github.com/jackzampolin/bindery/internal/stage"
)

const testTarget = "book"

type fixture struct {
	home  *home.Dir
	cfg   *config.Config
	store *runstate.Store
	sched *Scheduler
}

// newFixture wires a scheduler over a real orchestrator with every
// stage disabled, so pages flow straight through load/cache/write.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureRunDirs(testTarget); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Workers = 2
	cfg.Stages.Deskew.Enabled = false
	cfg.Stages.MarginTrim.Enabled = false
	cfg.Stages.Shadow.Enabled = false
	cfg.Stages.MarkerClean.Enabled = false
	cfg.Stages.Upscale.Enabled = false
	cfg.Stages.ColorCorrect.Enabled = false
	cfg.Stages.Align.Enabled = false

	orch := pipeline.New(cfg, h, testTarget, stage.Deps{}, cache.NewStore(h.CachePath(), nil), pipeline.Options{}, nil)
	store := runstate.NewStore(h, nil)
	return &fixture{
		home:  h,
		cfg:   cfg,
		store: store,
		sched: New(cfg, orch, store, nil),
	}
}

func (f *fixture) makePages(t *testing.T, n int) []*page.Page {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			img.SetRGBA(x, y, imaging.White)
		}
	}
	for y := 10; y < 50; y++ {
		for x := 10; x < 50; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}

	pages := make([]*page.Page, n)
	for i := 0; i < n; i++ {
		path := f.home.PagePath(testTarget, i)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		pages[i] = page.New(i, path, nil)
	}
	return pages
}

func TestChunks(t *testing.T) {
	pages := make([]*page.Page, 7)
	for i := range pages {
		pages[i] = page.New(i, "", nil)
	}

	tests := []struct {
		size      int
		wantCount int
		wantLast  int
	}{
		{0, 1, 7}, // 0 means one chunk with everything
		{3, 3, 1},
		{7, 1, 7},
		{100, 1, 7},
	}
	for _, tt := range tests {
		got := chunks(pages, tt.size)
		if len(got) != tt.wantCount {
			t.Errorf("size %d: %d chunks, want %d", tt.size, len(got), tt.wantCount)
			continue
		}
		if len(got[len(got)-1]) != tt.wantLast {
			t.Errorf("size %d: last chunk has %d pages, want %d", tt.size, len(got[len(got)-1]), tt.wantLast)
		}
	}
}

func TestRun_AllPagesTerminalAndOrdered(t *testing.T) {
	f := newFixture(t)
	pages := f.makePages(t, 5)
	state := runstate.New(testTarget, "book.pdf", "cfg", 5)
	if err := f.store.Save(state); err != nil {
		t.Fatal(err)
	}

	results, err := f.sched.Run(context.Background(), state, pages)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d, results not in page order", i, r.Index)
		}
		if r.Status != page.StatusDone {
			t.Errorf("page %d: status %s, want done", r.Index, r.Status)
		}
	}

	c := state.Summary()
	if c.Done != 5 || c.Pending != 0 {
		t.Errorf("state summary = %+v, want all done", c)
	}
	if !state.Complete() {
		t.Error("state not complete after full run")
	}
}

func TestRun_ChunksCheckpointIncrementally(t *testing.T) {
	f := newFixture(t)
	f.cfg.ChunkSize = 2
	pages := f.makePages(t, 5)
	state := runstate.New(testTarget, "book.pdf", "cfg", 5)
	if err := f.store.Save(state); err != nil {
		t.Fatal(err)
	}

	if _, err := f.sched.Run(context.Background(), state, pages); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The checkpoint log must reconstruct the full state without
	// another snapshot having been written.
	loaded, err := f.store.Load(testTarget)
	if err != nil {
		t.Fatal(err)
	}
	if c := loaded.Summary(); c.Done != 5 {
		t.Errorf("replayed state has %d done, want 5", c.Done)
	}

	// Buffers released after each chunk.
	for i, p := range pages {
		if p.Buffer != nil {
			t.Errorf("page %d buffer retained after run", i)
		}
	}
}

func TestRun_CancellationLeavesPending(t *testing.T) {
	f := newFixture(t)
	pages := f.makePages(t, 4)
	state := runstate.New(testTarget, "book.pdf", "cfg", 4)
	if err := f.store.Save(state); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sched.Run(ctx, state, pages)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	c := state.Summary()
	if c.Pending != 4 {
		t.Errorf("summary after cancellation = %+v, want all pending", c)
	}
}

func TestRun_Empty(t *testing.T) {
	f := newFixture(t)
	state := runstate.New(testTarget, "book.pdf", "cfg", 0)
	results, err := f.sched.Run(context.Background(), state, nil)
	if err != nil || results != nil {
		t.Errorf("empty run: results=%v err=%v", results, err)
	}
}
