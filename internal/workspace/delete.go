package workspace

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rybkr/logarc/internal/statesync"
)

// Delete removes a workspace. Deletion is ordered and partial-failure
// tolerant: each step runs even if an earlier one failed, and removal is
// reported as successful once in-memory state is cleared (step 3) even if
// a later filesystem removal had to be deferred to the cleanup queue.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ws, err := m.get(id)
	if err != nil {
		return err
	}

	// Step 1: stop the file watcher, if one is running, so a late change
	// event can't trigger a refresh against a workspace mid-deletion.
	m.StopWatch(id)

	// Step 1b: stop anything still running against this workspace. An
	// in-flight ingest has no way to be preempted mid-extraction, but
	// marking the workspace gone now keeps any late progress update or
	// completion event from resurrecting it in subscriber state.
	ws.mu.Lock()
	ws.State = StateError
	ws.Error = "workspace deleted"
	dir := ws.dir
	objectsDir := ws.cas.Root()
	idx := ws.idx
	ws.mu.Unlock()

	// Step 2: skip stale cache entries deliberately. The shared result
	// cache keys everything by workspace id, so entries for a deleted
	// workspace simply age out under the existing LRU/TTL policy rather
	// than requiring a synchronous sweep here.

	// Step 3: clear in-memory state. From this point the workspace is
	// gone as far as every other Manager method is concerned.
	m.mu.Lock()
	delete(m.workspaces, id)
	m.mu.Unlock()
	m.cleanupProgressSubs(id)

	// Step 4: delete this workspace's file, archive and path-mapping rows
	// from the metadata index, and its staging directory from interrupted
	// extractions.
	if _, err := idx.CleanupWorkspace(ctx, id); err != nil {
		m.logger.Warn("failed to clean up legacy path mappings", "workspace", id, "err", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, "temp")); err != nil {
		m.logger.Warn("failed to remove staging directory", "workspace", id, "err", err)
		m.cleanup.enqueue(filepath.Join(dir, "temp"))
	}

	// Step 5: delete the CAS objects directory.
	if err := os.RemoveAll(objectsDir); err != nil {
		m.logger.Warn("failed to remove CAS objects directory, deferring", "workspace", id, "err", err)
		m.cleanup.enqueue(objectsDir)
	}

	// Step 6: delete the metadata db and its ancillary journal files
	// (SQLite WAL/SHM/journal siblings). Close the handle first so the
	// removal isn't fighting an open file on platforms that care.
	if err := idx.Close(); err != nil {
		m.logger.Warn("failed to close metadata index", "workspace", id, "err", err)
	}
	dbPath := filepath.Join(dir, "metadata.db")
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove metadata file, deferring", "path", path, "err", err)
			m.cleanup.enqueue(path)
		}
	}

	// Step 7: anything left locked (Windows file handles, a slow-closing
	// mmap) is already enqueued above; the fixed-interval retry loop in
	// cleanup.go owns it from here. Finally, reclaim the now-empty
	// workspace root if everything above succeeded.
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		m.cleanup.enqueue(dir)
	}

	m.publish(ctx, statesync.Event{Type: statesync.WorkspaceDeleted, WorkspaceID: id, Timestamp: time.Now()})
	m.logger.Info("workspace deleted", "id", id)
	return nil
}
