package workspace

import (
	"context"
	"strings"
	"time"

	"github.com/rybkr/logarc/internal/extract"
	"github.com/rybkr/logarc/internal/metadata"
	"github.com/rybkr/logarc/internal/search"
	"github.com/rybkr/logarc/internal/statesync"
)

// ingestWorker pulls workspaces from the ingest queue and processes them.
// Generalizes repomanager's cloneWorker from a single-clone unit of work to
// a full directory extraction. ctx is a per-worker child of m.ctx so
// scaleIngestWorkers can retire this one worker without affecting the rest
// of the pool.
func (m *Manager) ingestWorker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ws, ok := <-m.ingestQueue:
			if !ok {
				return
			}
			m.processIngest(ws)
		}
	}
}

func (m *Manager) processIngest(ws *managed) {
	if m.deps.ResourceManager != nil {
		m.deps.ResourceManager.OperationStarted()
		defer m.deps.ResourceManager.OperationCompleted()
	}

	ws.mu.Lock()
	ws.State = StateIngesting
	sourcePath := ws.SourcePath
	ws.mu.Unlock()

	m.logger.Info("ingesting workspace", "id", ws.ID, "source", sourcePath)

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.IngestTimeout)
	defer cancel()
	m.registerTask(ws.ID, cancel)
	defer m.deregisterTask(ws.ID)

	onProgress := func(phase string) {
		p := Progress{Phase: phase}
		ws.mu.Lock()
		ws.Progress = p
		ws.mu.Unlock()
		m.notifyProgress(ws.ID, p)
	}
	onProgress("scanning")

	engine := extract.New(ws.extractC, ws.cas, ws.idx, ws.paths, ws.sec, ws.ID)
	result, err := engine.ExtractDirectory(ctx, sourcePath)
	if err != nil {
		m.failIngest(ws, err.Error())
		return
	}
	if result.Cancelled {
		m.failIngest(ws, "ingest cancelled")
		return
	}

	onProgress("indexing")
	if err := m.indexIngestedFiles(ctx, ws); err != nil {
		// Indexing is advisory: the workspace is still usable for metadata
		// queries without search, so a failure here is logged, not fatal.
		m.logger.Error("search indexing failed after ingest", "id", ws.ID, "err", err)
	}

	now := time.Now()
	ws.mu.Lock()
	ws.State = StateReady
	ws.Error = ""
	ws.Progress = Progress{}
	ws.LastAccess = now
	ws.mu.Unlock()

	m.logger.Info("workspace ready", "id", ws.ID,
		"files", result.Stats.TotalFiles, "bytes", result.Stats.TotalBytes,
		"max_depth", result.Stats.MaxDepthReached)

	m.notifyProgress(ws.ID, Progress{Done: true, State: "ready"})
	m.cleanupProgressSubs(ws.ID)
	m.publish(ctx, statesync.Event{Type: statesync.StatusChanged, WorkspaceID: ws.ID, Status: "ready", Timestamp: now})
	m.publish(ctx, statesync.Event{Type: statesync.TaskCompleted, WorkspaceID: ws.ID, TaskID: "ingest", Timestamp: now})
}

func (m *Manager) failIngest(ws *managed, message string) {
	ws.mu.Lock()
	ws.State = StateError
	ws.Error = message
	ws.Progress = Progress{}
	ws.mu.Unlock()

	m.logger.Error("ingest failed", "id", ws.ID, "err", message)
	m.notifyProgress(ws.ID, Progress{Done: true, State: "error", Error: message})
	m.cleanupProgressSubs(ws.ID)
	m.publish(context.Background(), statesync.Event{Type: statesync.Error, WorkspaceID: ws.ID, ErrorMessage: message, Timestamp: time.Now()})
}

// indexIngestedFiles pushes every file row just written to the metadata
// index into the shared search engine, reading content back from CAS. A
// no-op when no search engine is configured.
func (m *Manager) indexIngestedFiles(ctx context.Context, ws *managed) error {
	if m.deps.Search == nil {
		return nil
	}

	var afterID int64
	const pageSize = 500
	for {
		files, err := ws.idx.GetAllFiles(ctx, ws.ID, afterID, pageSize)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			break
		}
		for _, f := range files {
			if err := m.indexFile(ctx, ws, f); err != nil {
				m.logger.Warn("failed to index file", "path", f.VirtualPath, "err", err)
				continue
			}
			afterID = f.ID
		}
		if len(files) < pageSize {
			break
		}
	}
	return m.deps.Search.Commit(ctx)
}

func (m *Manager) indexFile(ctx context.Context, ws *managed, f *metadata.File) error {
	data, err := ws.cas.Read(f.SHA256Hash)
	if err != nil {
		return err
	}
	content := string(data)
	doc := search.Document{
		Workspace:    ws.ID,
		VirtualPath:  f.VirtualPath,
		OriginalName: f.OriginalName,
		Content:      content,
		Level:        detectLevel(content),
		Timestamp:    time.UnixMilli(f.ModifiedTime),
	}
	return m.deps.Search.IndexDocument(ctx, doc)
}

var logLevels = []string{"critical", "fatal", "error", "warn", "warning", "info", "debug", "trace"}

// detectLevel returns the first recognized log-severity token found in
// content, scanning the known levels from most to least severe so a line
// mentioning both (e.g. "INFO: retrying after ERROR") is classified by its
// worst severity. Returns "" when no known level token appears. The
// returned value is lowercase, matching search.Document.Level's convention.
func detectLevel(content string) string {
	lower := strings.ToLower(content)
	for _, level := range logLevels {
		if strings.Contains(lower, level) {
			return level
		}
	}
	return ""
}
