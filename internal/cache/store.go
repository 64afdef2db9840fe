package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no entry exists for a fingerprint.
var ErrNotFound = errors.New("cache entry not found")

// Entry is the metadata sidecar stored next to each cached output.
// Entries are written once and replaced, never mutated.
type Entry struct {
	Fingerprint string        `json:"fingerprint"`
	SourceHash  string        `json:"source_hash"`
	Stages      []StageParams `json:"stages"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store is the on-disk cache. Outputs live under
// <dir>/<fp[0:2]>/<fp>.png with a <fp>.json metadata sidecar. Writes are
// serialized; reads take no lock.
type Store struct {
	dir    string
	logger *slog.Logger

	writeMu sync.Mutex
}

// NewStore creates a cache store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger.With("component", "cache")}
}

func (s *Store) outputPath(fp string) string {
	return filepath.Join(s.dir, fp[:2], fp+".png")
}

func (s *Store) metaPath(fp string) string {
	return filepath.Join(s.dir, fp[:2], fp+".json")
}

// Lookup returns the cached output bytes for a fingerprint. An output
// without a readable sidecar is treated as a miss: the entry cannot be
// attributed to its inputs, so it is not trusted.
func (s *Store) Lookup(fp string) ([]byte, bool) {
	if len(fp) < 2 {
		return nil, false
	}
	if _, err := os.Stat(s.metaPath(fp)); err != nil {
		return nil, false
	}
	data, err := os.ReadFile(s.outputPath(fp))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Info returns the metadata recorded when a fingerprint's output was
// stored. Usable without a live run.
func (s *Store) Info(fp string) (*Entry, error) {
	if len(fp) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, fp)
	}
	data, err := os.ReadFile(s.metaPath(fp))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fp)
		}
		return nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache metadata: %w", err)
	}
	return &e, nil
}

// Store writes an output and its metadata sidecar. The output lands via
// rename so readers never observe a partial file.
func (s *Store) Store(fp string, output []byte, sourceHash string, stages []StageParams) error {
	if len(fp) < 2 {
		return fmt.Errorf("invalid fingerprint %q", fp)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dir := filepath.Join(s.dir, fp[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache shard: %w", err)
	}

	if err := writeAtomic(s.outputPath(fp), output); err != nil {
		return fmt.Errorf("failed to write cache output: %w", err)
	}

	meta, err := json.MarshalIndent(Entry{
		Fingerprint: fp,
		SourceHash:  sourceHash,
		Stages:      stages,
		CreatedAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}
	if err := writeAtomic(s.metaPath(fp), meta); err != nil {
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}

	s.logger.Debug("cached page output", "fingerprint", fp, "bytes", len(output))
	return nil
}

// Stats summarizes cache contents for the cache-info command.
type Stats struct {
	Entries    int
	TotalBytes int64
}

// Stats walks the cache directory and reports entry count and size.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".png") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st.Entries++
		st.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to walk cache: %w", err)
	}
	return st, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
