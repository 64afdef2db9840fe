package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the bindery home directory.
	DefaultDirName = ".bindery"

	// RunsDirName is the subdirectory holding per-run state.
	RunsDirName = "runs"

	// CacheDirName is the subdirectory holding the content-addressed cache.
	CacheDirName = "cache"

	// InboxDirName is the subdirectory watched by `bindery watch`.
	InboxDirName = "inbox"

	// OutputDirName is the subdirectory for assembled PDFs.
	OutputDirName = "output"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the bindery home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.bindery).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// RunsPath returns the directory holding run state records.
func (d *Dir) RunsPath() string {
	return filepath.Join(d.path, RunsDirName)
}

// RunDir returns the state directory for a single conversion job,
// keyed by the output target name.
func (d *Dir) RunDir(target string) string {
	return filepath.Join(d.RunsPath(), target)
}

// CachePath returns the content-addressed cache directory.
func (d *Dir) CachePath() string {
	return filepath.Join(d.path, CacheDirName)
}

// InboxPath returns the watched inbox directory.
func (d *Dir) InboxPath() string {
	return filepath.Join(d.path, InboxDirName)
}

// OutputPath returns the directory for assembled output PDFs.
func (d *Dir) OutputPath() string {
	return filepath.Join(d.path, OutputDirName)
}

// PagesDir returns the directory holding rendered source page images
// for a run.
func (d *Dir) PagesDir(target string) string {
	return filepath.Join(d.RunDir(target), "pages")
}

// PagePath returns the path to a rendered source page image.
// Page indexes are 0-based.
func (d *Dir) PagePath(target string, pageIndex int) string {
	return filepath.Join(d.PagesDir(target), fmt.Sprintf("page_%04d.png", pageIndex))
}

// ProcessedDir returns the directory holding enhanced page images
// for a run.
func (d *Dir) ProcessedDir(target string) string {
	return filepath.Join(d.RunDir(target), "processed")
}

// ProcessedPagePath returns the path to an enhanced page image.
func (d *Dir) ProcessedPagePath(target string, pageIndex int) string {
	return filepath.Join(d.ProcessedDir(target), fmt.Sprintf("page_%04d.png", pageIndex))
}

// StatePath returns the path to a run's state snapshot.
func (d *Dir) StatePath(target string) string {
	return filepath.Join(d.RunDir(target), "state.yaml")
}

// CheckpointLogPath returns the path to a run's append-only checkpoint log.
func (d *Dir) CheckpointLogPath(target string) string {
	return filepath.Join(d.RunDir(target), "checkpoints.log")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.RunsPath(), d.CachePath(), d.InboxPath(), d.OutputPath()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return nil
}

// EnsureRunDirs creates the per-run directories for a target.
func (d *Dir) EnsureRunDirs(target string) error {
	for _, p := range []string{d.PagesDir(target), d.ProcessedDir(target)} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
