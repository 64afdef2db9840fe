package runstate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/bindery/internal/home"
	"github.com/jackzampolin/bindery/internal/page"
)

// ErrNoState is returned when no run state exists for a target.
var ErrNoState = errors.New("no run state for target")

// Store persists run state per target. Two files cooperate:
//
//	state.yaml      — full human-inspectable snapshot, rewritten at
//	                  checkpoints
//	checkpoints.log — append-only JSON Lines of per-chunk results,
//	                  replayed over the snapshot on load
//
// The append-only log means a crash between snapshots loses nothing: the
// snapshot plus its trailing log entries reconstruct the exact state.
// Writes are serialized; loads read plain files and need no run-time
// locks.
type Store struct {
	home   *home.Dir
	logger *slog.Logger

	writeMu sync.Mutex
}

// checkpointRecord is one line of checkpoints.log.
type checkpointRecord struct {
	RunID   string        `json:"run_id"`
	Time    time.Time     `json:"time"`
	Results []page.Result `json:"results"`
}

// NewStore creates a run-state store over the bindery home.
func NewStore(h *home.Dir, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{home: h, logger: logger.With("component", "runstate")}
}

// Save writes a full snapshot and truncates the checkpoint log: the
// snapshot now embodies everything the log recorded.
func (s *Store) Save(state *RunState) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := state.Snapshot()
	snap.CheckpointedAt = time.Now().UTC()

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize run state: %w", err)
	}

	path := s.home.StatePath(snap.Target)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write run state: %w", err)
	}

	if err := os.Truncate(s.home.CheckpointLogPath(snap.Target), 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to truncate checkpoint log: %w", err)
	}

	state.CheckpointedAt = snap.CheckpointedAt
	s.logger.Debug("saved run state snapshot", "target", snap.Target, "run", snap.ID)
	return nil
}

// AppendCheckpoint appends a chunk's results to the log. Cheaper than a
// full snapshot; fsynced so the checkpoint survives a crash.
func (s *Store) AppendCheckpoint(state *RunState, results []page.Result) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f, err := os.OpenFile(s.home.CheckpointLogPath(state.Target),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(checkpointRecord{
		RunID:   state.ID,
		Time:    time.Now().UTC(),
		Results: results,
	})
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint log: %w", err)
	}

	s.logger.Debug("checkpointed chunk", "target", state.Target, "pages", len(results))
	return nil
}

// Load reads a target's run state: the snapshot plus any checkpoint log
// entries written after it.
func (s *Store) Load(target string) (*RunState, error) {
	data, err := os.ReadFile(s.home.StatePath(target))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoState, target)
		}
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}

	var state RunState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse run state: %w", err)
	}
	if state.Pages == nil {
		state.Pages = make(map[int]*PageRecord)
	}

	if err := s.replayLog(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Exists reports whether a target has persisted run state.
func (s *Store) Exists(target string) bool {
	_, err := os.Stat(s.home.StatePath(target))
	return err == nil
}

// replayLog applies checkpoint log entries over a loaded snapshot.
// Entries from other run IDs are stale leftovers and skipped.
func (s *Store) replayLog(state *RunState) error {
	f, err := os.Open(s.home.CheckpointLogPath(state.Target))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	replayed := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec checkpointRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn final line means the process died mid-append; the
			// results it carried were not yet acknowledged.
			s.logger.Warn("skipping malformed checkpoint line", "target", state.Target, "error", err)
			continue
		}
		if rec.RunID != state.ID {
			continue
		}
		for _, r := range rec.Results {
			state.Apply(r)
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read checkpoint log: %w", err)
	}

	if replayed > 0 {
		s.logger.Info("replayed checkpoints over snapshot", "target", state.Target, "chunks", replayed)
	}
	return nil
}
