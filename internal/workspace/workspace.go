// Package workspace manages per-run working directories.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// Manager handles workspace directories (both ephemeral and persistent).
type Manager struct {
	baseDir    string
	dir        string
	persistent bool // if true, use a fixed directory and keep it on Cleanup
}

// NewManager creates a workspace manager with ephemeral timestamped directories.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewPersistentManager creates a workspace manager using a fixed directory
// (baseDir/subdirName) which survives Cleanup, for incremental daemon runs.
func NewPersistentManager(baseDir, subdirName string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if subdirName == "" {
		subdirName = "working"
	}
	return &Manager{
		baseDir:    baseDir,
		dir:        filepath.Join(baseDir, subdirName),
		persistent: true,
	}
}

// Create prepares the workspace directory.
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.dir, 0o750); err != nil {
			return fmt.Errorf("create persistent workspace: %w", err)
		}
		slog.Info("Using persistent workspace", logfields.Path(m.dir))
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	dir := filepath.Join(m.baseDir, fmt.Sprintf("docspipe-%s", timestamp))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	m.dir = dir
	slog.Info("Created workspace", logfields.Path(dir))
	return nil
}

// Path returns the workspace directory.
func (m *Manager) Path() string { return m.dir }

// CreateSubdir creates a subdirectory within the workspace.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.dir == "" {
		return "", fmt.Errorf("workspace not created")
	}
	subdir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("create subdirectory: %w", err)
	}
	return subdir, nil
}

// Cleanup removes ephemeral workspaces; persistent ones are kept.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if m.persistent {
		slog.Debug("Keeping persistent workspace", logfields.Path(m.dir))
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("cleanup workspace: %w", err)
	}
	slog.Info("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
