package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 300 * time.Millisecond

// workspaceWatcher tracks one workspace's live file watch: whether it is
// still active and the means to stop it. Mirrors the original engine's
// per-workspace watcher-state map, which Delete's first step tears down
// before anything else runs.
type workspaceWatcher struct {
	active bool
	stop   chan struct{}
}

// Watch starts watching id's source path for filesystem changes and
// triggers an automatic Refresh, debounced, whenever one is observed. It is
// a no-op if a watcher for id is already running.
func (m *Manager) Watch(id string) error {
	ws, err := m.get(id)
	if err != nil {
		return err
	}
	ws.mu.RLock()
	source := ws.SourcePath
	ws.mu.RUnlock()

	m.watchersMu.Lock()
	if existing, ok := m.watchers[id]; ok && existing.active {
		m.watchersMu.Unlock()
		return nil
	}
	m.watchersMu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := filepath.Walk(source, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if fi.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				m.logger.Warn("failed to watch directory", "dir", path, "err", addErr)
			}
		}
		return nil
	}); err != nil {
		m.logger.Warn("failed to walk source path for watching", "workspace", id, "err", err)
	}

	state := &workspaceWatcher{active: true, stop: make(chan struct{})}
	m.watchersMu.Lock()
	m.watchers[id] = state
	m.watchersMu.Unlock()

	m.wg.Add(1)
	go m.watchLoop(id, fsw, state)

	m.logger.Info("started watching workspace source", "workspace", id, "path", source)
	return nil
}

// StopWatch stops id's file watcher, if one is running.
func (m *Manager) StopWatch(id string) {
	m.watchersMu.Lock()
	state, ok := m.watchers[id]
	if ok {
		delete(m.watchers, id)
	}
	m.watchersMu.Unlock()
	if !ok || !state.active {
		return
	}
	state.active = false
	close(state.stop)
}

func (m *Manager) watchLoop(id string, fsw *fsnotify.Watcher, state *workspaceWatcher) {
	defer m.wg.Done()
	defer func() {
		if err := fsw.Close(); err != nil {
			m.logger.Error("failed to close workspace watcher", "workspace", id, "err", err)
		}
	}()

	var debounceTimer *time.Timer
	var timerMu sync.Mutex

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-state.stop:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if shouldIgnoreWatchEvent(event) {
				continue
			}
			timerMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				if m.ctx.Err() != nil {
					return
				}
				ws, err := m.get(id)
				if err != nil {
					return
				}
				ws.mu.RLock()
				source := ws.SourcePath
				ws.mu.RUnlock()
				if err := m.Refresh(m.ctx, id, source); err != nil {
					m.logger.Warn("automatic refresh from watcher failed", "workspace", id, "err", err)
				}
			})
			timerMu.Unlock()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			m.logger.Error("workspace watcher error", "workspace", id, "err", err)
		}
	}
}

func shouldIgnoreWatchEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	return strings.HasSuffix(event.Name, ".tmp") || strings.HasSuffix(event.Name, ".lock")
}
