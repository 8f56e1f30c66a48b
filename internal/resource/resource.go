// Package resource tracks open file handles, temporary-directory lifetime,
// and reusable buffers for the extraction pipeline, and tears a workspace's
// resources down cleanly on deletion.
package resource

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rybkr/logarc/internal/errs"
	"github.com/rybkr/logarc/internal/metadata"
)

// Config controls temp-file lifetime and cleanup cadence.
type Config struct {
	TempTTL            time.Duration // files older than this are swept
	SweepInterval       time.Duration // how often the TTL sweep runs
	MaxReleaseTime      time.Duration // logged as a warning if handle release exceeds this
}

// DefaultConfig matches the documented resource lifecycle: a 24-hour temp
// file TTL and handles released within 5 seconds of workspace teardown.
func DefaultConfig() Config {
	return Config{
		TempTTL:        24 * time.Hour,
		SweepInterval:  time.Hour,
		MaxReleaseTime: 5 * time.Second,
	}
}

// fileHandle is one tracked open file, scoped to the workspace that opened it.
type fileHandle struct {
	path      string
	workspace string
	openedAt  time.Time
}

// Manager owns the temp-directory tree under tempBaseDir, one subdirectory
// per workspace, and tracks every file handle opened against it so a
// workspace teardown can account for exactly what it releases.
type Manager struct {
	cfg         Config
	idx         *metadata.Index
	tempBaseDir string
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[string]fileHandle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Manager rooted at tempBaseDir. Call Start to begin the
// background TTL sweep and filesystem watch.
func New(cfg Config, idx *metadata.Index, tempBaseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:         cfg,
		idx:         idx,
		tempBaseDir: tempBaseDir,
		logger:      logger,
		handles:     make(map[string]fileHandle),
	}
}

// WorkspaceTempDir returns the temp directory for workspace, creating
// nothing by itself.
func (m *Manager) WorkspaceTempDir(workspace string) string {
	return filepath.Join(m.tempBaseDir, workspace, "temp")
}

// Start launches the background TTL sweep loop and an fsnotify watch over
// tempBaseDir, logging external changes (e.g. an operator manually clearing
// temp files) rather than reacting to them with extraction-side logic.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := os.MkdirAll(m.tempBaseDir, 0o750); err != nil {
		return errs.Wrap(errs.IoError, "create temp base directory", err).WithPath(m.tempBaseDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.IoError, "create filesystem watcher", err)
	}
	if err := watcher.Add(m.tempBaseDir); err != nil {
		_ = watcher.Close()
		return errs.Wrap(errs.IoError, "watch temp base directory", err).WithPath(m.tempBaseDir)
	}

	m.wg.Add(2)
	go m.watchLoop(watcher)
	go m.sweepLoop()

	return nil
}

// Stop cancels the background loops and waits for them to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher) {
	defer m.wg.Done()
	defer func() { _ = watcher.Close() }()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				m.logger.Debug("temp entry removed externally", "path", event.Name, "op", event.Op.String())
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("temp directory watcher error", "err", werr)
		}
	}
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			n, err := m.CleanupTempFiles("")
			if err != nil {
				m.logger.Warn("temp file sweep failed", "err", err)
				continue
			}
			if n > 0 {
				m.logger.Info("swept expired temp files", "count", n)
			}
		}
	}
}

// RegisterHandle records that path is open on behalf of workspace.
func (m *Manager) RegisterHandle(path, workspace string) {
	m.mu.Lock()
	m.handles[path] = fileHandle{path: path, workspace: workspace, openedAt: time.Now()}
	m.mu.Unlock()
}

// UnregisterHandle records that path has been closed.
func (m *Manager) UnregisterHandle(path string) {
	m.mu.Lock()
	delete(m.handles, path)
	m.mu.Unlock()
}

// ActiveHandleCount returns the number of currently tracked open handles.
func (m *Manager) ActiveHandleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// ReleaseWorkspaceHandles drops every tracked handle belonging to
// workspace and returns how many were released. A release that takes
// longer than cfg.MaxReleaseTime is logged, not failed.
func (m *Manager) ReleaseWorkspaceHandles(workspace string) int {
	start := time.Now()

	m.mu.Lock()
	var released int
	for path, h := range m.handles {
		if h.workspace == workspace {
			delete(m.handles, path)
			released++
		}
	}
	m.mu.Unlock()

	if elapsed := time.Since(start); elapsed > m.cfg.MaxReleaseTime {
		m.logger.Warn("handle release exceeded target", "workspace", workspace, "elapsed", elapsed)
	}
	return released
}

// CleanupTempFiles removes temp files older than cfg.TempTTL under
// workspace's temp directory, or under the whole temp base if workspace is
// empty, pruning any directories left empty behind them.
func (m *Manager) CleanupTempFiles(workspace string) (int, error) {
	base := m.tempBaseDir
	if workspace != "" {
		base = m.WorkspaceTempDir(workspace)
	}
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return 0, nil
	}

	return cleanupOlderThan(base, time.Now(), m.cfg.TempTTL)
}

func cleanupOlderThan(dir string, now time.Time, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errs.Wrap(errs.IoError, "read directory", err).WithPath(dir)
	}

	var removed int
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			n, err := cleanupOlderThan(full, now, ttl)
			removed += n
			if err != nil {
				return removed, err
			}
			if isEmptyDir(full) {
				_ = os.Remove(full)
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > ttl {
			if err := os.Remove(full); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func isEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) == 0
}

// CleanupStats summarizes a workspace teardown.
type CleanupStats struct {
	HandlesReleased  int
	MappingsRemoved  int64
	TempFilesRemoved int
	Duration         time.Duration
}

// CleanupWorkspace tears down every resource owned by workspace: open
// handles, its files, archives and path-mapping rows in the metadata index
// (MappingsRemoved reports the total rows deleted from all three tables),
// and its temp directory.
func (m *Manager) CleanupWorkspace(ctx context.Context, workspace string) (*CleanupStats, error) {
	start := time.Now()

	handlesReleased := m.ReleaseWorkspaceHandles(workspace)

	mappingsRemoved, err := m.idx.CleanupWorkspace(ctx, workspace)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "cleanup workspace metadata", err).WithContext("workspace", workspace)
	}

	tempDir := m.WorkspaceTempDir(workspace)
	var tempRemoved int
	if _, statErr := os.Stat(tempDir); statErr == nil {
		tempRemoved, err = countFiles(tempDir)
		if err != nil {
			return nil, err
		}
		if err := os.RemoveAll(tempDir); err != nil {
			m.logger.Warn("failed to remove workspace temp directory", "workspace", workspace, "dir", tempDir, "err", err)
		}
	}

	stats := &CleanupStats{
		HandlesReleased:  handlesReleased,
		MappingsRemoved:  mappingsRemoved,
		TempFilesRemoved: tempRemoved,
		Duration:         time.Since(start),
	}
	m.logger.Info("workspace resources cleaned up", "workspace", workspace,
		"handles_released", stats.HandlesReleased, "mappings_removed", stats.MappingsRemoved,
		"temp_files_removed", stats.TempFilesRemoved, "duration", stats.Duration)
	return stats, nil
}

func countFiles(dir string) (int, error) {
	var n int
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		return n, errs.Wrap(errs.IoError, "count temp files", err).WithPath(dir)
	}
	return n, nil
}
