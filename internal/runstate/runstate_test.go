package runstate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackzampolin/bindery/internal/home"
	"github.com/jackzampolin/bindery/internal/page"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create home: %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("failed to ensure home: %v", err)
	}
	if err := h.EnsureRunDirs("book"); err != nil {
		t.Fatalf("failed to ensure run dirs: %v", err)
	}
	return NewStore(h, nil)
}

func TestRunState_Apply(t *testing.T) {
	state := New("book", "book.pdf", "abc", 3)

	state.Apply(page.Result{Index: 0, Status: page.StatusDone})
	state.Apply(page.Result{Index: 1, Status: page.StatusFailed, FailedStage: "deskew", Error: "boom"})

	c := state.Summary()
	if c.Done != 1 || c.Failed != 1 || c.Pending != 1 {
		t.Errorf("summary = %+v, want 1 done 1 failed 1 pending", c)
	}

	t.Run("terminal status is protected", func(t *testing.T) {
		state.Apply(page.Result{Index: 0, Status: page.StatusFailed, Error: "late failure"})
		rec, _ := state.Status(0)
		if rec.Status != page.StatusDone {
			t.Errorf("done page overwritten to %s", rec.Status)
		}
	})

	t.Run("reset returns failed page to pending", func(t *testing.T) {
		if err := state.Reset(1); err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		rec, _ := state.Status(1)
		if rec.Status != page.StatusPending || rec.Error != "" {
			t.Errorf("unexpected record after reset: %+v", rec)
		}
	})

	t.Run("reset refuses non-failed pages", func(t *testing.T) {
		if err := state.Reset(0); err == nil {
			t.Error("expected error resetting done page")
		}
	})
}

func TestRunState_Validate(t *testing.T) {
	state := New("book", "book.pdf", "abc", 5)
	if err := state.Validate(5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := state.Validate(3); err == nil {
		t.Error("expected error for shrunken document")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	store := testStore(t)

	state := New("book", "book.pdf", "cfg123", 4)
	state.Apply(page.Result{Index: 0, Status: page.StatusDone})
	state.Apply(page.Result{Index: 1, Status: page.StatusSkipped})

	if err := store.Save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load("book")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.ID != state.ID || loaded.ConfigHash != "cfg123" || loaded.PageCount != 4 {
		t.Errorf("loaded state differs: %+v", loaded)
	}
	for idx, want := range map[int]page.Status{
		0: page.StatusDone, 1: page.StatusSkipped, 2: page.StatusPending, 3: page.StatusPending,
	} {
		rec, ok := loaded.Status(idx)
		if !ok || rec.Status != want {
			t.Errorf("page %d: status %s, want %s", idx, rec.Status, want)
		}
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := testStore(t)
	if _, err := store.Load("nothere"); !errors.Is(err, ErrNoState) {
		t.Errorf("expected ErrNoState, got %v", err)
	}
}

func TestStore_CheckpointReplay(t *testing.T) {
	store := testStore(t)

	state := New("book", "book.pdf", "cfg", 6)
	if err := store.Save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Two chunks complete after the snapshot; the process then dies
	// before the next snapshot.
	chunk1 := []page.Result{
		{Index: 0, Status: page.StatusDone},
		{Index: 1, Status: page.StatusDone},
	}
	chunk2 := []page.Result{
		{Index: 2, Status: page.StatusFailed, FailedStage: "upscale", Error: "timeout"},
	}
	if err := store.AppendCheckpoint(state, chunk1); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}
	if err := store.AppendCheckpoint(state, chunk2); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}

	loaded, err := store.Load("book")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	c := loaded.Summary()
	if c.Done != 2 || c.Failed != 1 || c.Pending != 3 {
		t.Errorf("summary after replay = %+v, want 2 done 1 failed 3 pending", c)
	}
	if got := loaded.Pending(); len(got) != 3 || got[0] != 3 {
		t.Errorf("pending after replay = %v, want [3 4 5]", got)
	}
}

func TestStore_ReplayIgnoresOtherRuns(t *testing.T) {
	store := testStore(t)

	state := New("book", "book.pdf", "cfg", 2)
	if err := store.Save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	stale := New("book", "book.pdf", "cfg", 2)
	if err := store.AppendCheckpoint(stale, []page.Result{{Index: 0, Status: page.StatusDone}}); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}

	loaded, err := store.Load("book")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec, _ := loaded.Status(0); rec.Status != page.StatusPending {
		t.Errorf("stale checkpoint applied: page 0 is %s", rec.Status)
	}
}

// Resume idempotence: an interrupted run (snapshot + partial checkpoints,
// then resume over the pending set) must end with the same per-page state
// as an uninterrupted run.
func TestStore_ResumeIdempotence(t *testing.T) {
	outcome := func(idx int) page.Result {
		switch {
		case idx == 2:
			return page.Result{Index: idx, Status: page.StatusSkipped}
		case idx == 4:
			return page.Result{Index: idx, Status: page.StatusFailed, FailedStage: "deskew", Error: "x"}
		default:
			return page.Result{Index: idx, Status: page.StatusDone}
		}
	}

	// Uninterrupted run.
	full := New("book", "b.pdf", "cfg", 6)
	for i := 0; i < 6; i++ {
		full.Apply(outcome(i))
	}

	// Interrupted run: chunk of 3 completes and checkpoints, then crash.
	store := testStore(t)
	state := New("book", "b.pdf", "cfg", 6)
	if err := store.Save(state); err != nil {
		t.Fatal(err)
	}
	var chunk []page.Result
	for i := 0; i < 3; i++ {
		chunk = append(chunk, outcome(i))
	}
	for _, r := range chunk {
		state.Apply(r)
	}
	if err := store.AppendCheckpoint(state, chunk); err != nil {
		t.Fatal(err)
	}

	// Resume: load, process exactly the pending set.
	resumed, err := store.Load("book")
	if err != nil {
		t.Fatal(err)
	}
	for _, idx := range resumed.Pending() {
		resumed.Apply(outcome(idx))
	}

	for i := 0; i < 6; i++ {
		want, _ := full.Status(i)
		got, _ := resumed.Status(i)
		if got.Status != want.Status || got.FailedStage != want.FailedStage {
			t.Errorf("page %d: resumed %+v, uninterrupted %+v", i, got, want)
		}
	}
}

func TestReprocessor_MaxRetriesBoundary(t *testing.T) {
	const maxRetries = 3
	state := New("book", "b.pdf", "cfg", 1)
	rp := NewReprocessor(maxRetries, nil)

	fail := page.Result{Index: 0, Status: page.StatusFailed, FailedStage: "upscale", Error: "always"}
	state.Apply(fail)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		selected, err := rp.Select(state, nil, false)
		if err != nil {
			t.Fatalf("attempt %d: select failed: %v", attempt, err)
		}
		if len(selected) != 1 || selected[0] != 0 {
			t.Fatalf("attempt %d: selected %v, want [0]", attempt, selected)
		}
		rp.Merge(state, []page.Result{fail})

		rec, _ := state.Status(0)
		wantPermanent := attempt == maxRetries
		if rec.Permanent != wantPermanent {
			t.Errorf("attempt %d: permanent = %v, want %v", attempt, rec.Permanent, wantPermanent)
		}
	}

	// A further pass without force must not re-attempt the page.
	if _, err := rp.Select(state, nil, false); err == nil {
		t.Error("expected error: no reprocessable pages remain")
	}
	rec, _ := state.Status(0)
	if rec.Retries != maxRetries {
		t.Errorf("retries = %d, want %d", rec.Retries, maxRetries)
	}

	// Force overrides the permanent mark.
	selected, err := rp.Select(state, nil, true)
	if err != nil {
		t.Fatalf("forced select failed: %v", err)
	}
	if len(selected) != 1 {
		t.Fatalf("forced select = %v, want [0]", selected)
	}
	rp.Merge(state, []page.Result{{Index: 0, Status: page.StatusDone}})
	rec, _ = state.Status(0)
	if rec.Status != page.StatusDone {
		t.Errorf("status after forced success = %s, want done", rec.Status)
	}
}

func TestReprocessor_ExplicitList(t *testing.T) {
	state := New("book", "b.pdf", "cfg", 4)
	state.Apply(page.Result{Index: 0, Status: page.StatusDone})
	state.Apply(page.Result{Index: 1, Status: page.StatusFailed, Error: "a"})
	state.Apply(page.Result{Index: 2, Status: page.StatusFailed, Error: "b"})

	rp := NewReprocessor(3, nil)

	t.Run("explicit subset", func(t *testing.T) {
		selected, err := rp.Select(state, []int{2}, false)
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if fmt.Sprint(selected) != "[2]" {
			t.Errorf("selected %v, want [2]", selected)
		}
		if rec, _ := state.Status(1); rec.Status != page.StatusFailed {
			t.Error("unrequested failed page was reset")
		}
	})

	t.Run("done page rejected", func(t *testing.T) {
		if _, err := rp.Select(state, []int{0}, false); err == nil {
			t.Error("expected error reprocessing done page")
		}
	})

	t.Run("unknown page rejected", func(t *testing.T) {
		if _, err := rp.Select(state, []int{99}, false); err == nil {
			t.Error("expected error for out-of-range page")
		}
	})
}
