// Package ingest watches the inbox directory and hands newly dropped
// PDFs to the run scheduler. Scanners and download tools write files
// incrementally, so a file is only reported once its size has settled.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one settled inbox PDF. A handler error is logged
// and the watcher keeps running; one bad book never stops the inbox.
type Handler func(ctx context.Context, path string) error

// Watcher monitors the inbox for new PDFs.
type Watcher struct {
	dir     string
	handler Handler
	logger  *slog.Logger

	// settle is how long a file's size must hold still before it is
	// considered fully written.
	settle time.Duration
}

// NewWatcher creates an inbox watcher over dir.
func NewWatcher(dir string, handler Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		logger:  logger.With("component", "ingest"),
		settle:  2 * time.Second,
	}
}

// Watch blocks until ctx is done, dispatching each settled PDF to the
// handler. PDFs already sitting in the inbox at startup are dispatched
// first.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", "dir", w.dir)

	if err := w.scanExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isPDF(event.Name) {
				continue
			}
			w.dispatch(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watch error", "error", err)
		}
	}
}

// scanExisting dispatches PDFs already in the inbox.
func (w *Watcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		w.dispatch(ctx, filepath.Join(w.dir, e.Name()))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// dispatch waits for the file to settle, then runs the handler.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	if err := w.waitSettled(ctx, path); err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("inbox file never settled", "path", path, "error", err)
		}
		return
	}

	w.logger.Info("processing inbox file", "path", path)
	if err := w.handler(ctx, path); err != nil {
		w.logger.Error("inbox file failed", "path", path, "error", err)
	}
}

// waitSettled polls the file size until it stops changing.
func (w *Watcher) waitSettled(ctx context.Context, path string) error {
	var lastSize int64 = -1
	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("file disappeared: %w", err)
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return nil
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
