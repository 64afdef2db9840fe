package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"book.pdf", true},
		{"BOOK.PDF", true},
		{"scan.Pdf", true},
		{"notes.txt", false},
		{"book.pdf.part", false},
		{"pdf", false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.path); got != tt.want {
			t.Errorf("isPDF(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_DispatchesExistingAndNew(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	handler := func(_ context.Context, path string) error {
		mu.Lock()
		seen[filepath.Base(path)] = true
		mu.Unlock()
		return nil
	}

	w := NewWatcher(dir, handler, nil)
	w.settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to pick up the pre-existing file, then
	// drop in a new one.
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "new.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		gotBoth := seen["existing.pdf"] && seen["new.pdf"]
		mu.Unlock()
		if gotBoth {
			break
		}
		select {
		case <-deadline:
			mu.Lock()
			t.Fatalf("timed out, seen: %v", seen)
		case <-time.After(50 * time.Millisecond):
		}
	}

	mu.Lock()
	if seen["ignored.txt"] {
		t.Error("non-PDF file dispatched")
	}
	mu.Unlock()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("watch returned %v, want context.Canceled", err)
	}
}

func TestWatcher_HandlerErrorDoesNotStopWatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	calls := make(chan string, 4)
	handler := func(_ context.Context, path string) error {
		calls <- filepath.Base(path)
		return errors.New("processing failed")
	}

	w := NewWatcher(dir, handler, nil)
	w.settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	select {
	case got := <-calls:
		if got != "bad.pdf" {
			t.Errorf("handler got %s, want bad.pdf", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never called")
	}

	// The watcher must still be alive after the handler error.
	select {
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_MissingInbox(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope"), func(context.Context, string) error { return nil }, nil)
	if err := w.Watch(context.Background()); err == nil {
		t.Error("expected error for missing inbox dir")
	}
}
