package workspace

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rybkr/logarc/internal/cache"
	"github.com/rybkr/logarc/internal/cas"
	"github.com/rybkr/logarc/internal/errs"
	"github.com/rybkr/logarc/internal/extract"
	"github.com/rybkr/logarc/internal/metadata"
	"github.com/rybkr/logarc/internal/pathmgr"
	"github.com/rybkr/logarc/internal/search"
	"github.com/rybkr/logarc/internal/security"
	"github.com/rybkr/logarc/internal/statesync"
	"github.com/rybkr/logarc/internal/tuning"
)

// managed holds the live, per-workspace resources: its own CAS, metadata
// index, path manager, security detector, and extraction engine, per the
// shared-resource policy that forbids cross-workspace sharing of any of
// these (the global search engine is the one deliberate exception).
type managed struct {
	mu sync.RWMutex

	ID         string
	Name       string
	SourcePath string
	State      State
	Error      string
	Progress   Progress
	CreatedAt  time.Time
	LastAccess time.Time

	dir      string
	cas      *cas.Store
	idx      *metadata.Index
	paths    *pathmgr.Manager
	sec      *security.Detector
	extractC extract.Config
}

// Deps bundles the shared, process-global collaborators a Manager wires
// each workspace's extraction engine and lifecycle events into. All are
// optional: a nil field disables that integration.
type Deps struct {
	ExtractConfig  extract.Config
	PathConfig     pathmgr.Config
	SecurityConfig security.Config

	Search    *search.Engine // shared global index; nil disables indexing on ingest
	Cache     *cache.Cache   // shared result cache; nil disables invalidation on refresh
	StateSync *statesync.Hub // shared event hub; nil disables lifecycle event publishing

	CacheTuner      *tuning.CacheTuner      // nil disables cache auto-tuning
	IndexOptimizer  *tuning.IndexOptimizer  // nil disables query-pattern tracking and index recommendations
	ResourceManager *tuning.ResourceManager // nil disables ingest worker pool auto-scaling
	QueryOptimizer  *tuning.QueryOptimizer  // carried for callers; the Manager itself does not read it
}

// Manager owns the lifecycle of every workspace in one engine instance.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu         sync.RWMutex
	workspaces map[string]*managed

	progressSubsMu sync.Mutex
	progressSubs   map[string][]chan Progress

	watchersMu sync.Mutex
	watchers   map[string]*workspaceWatcher

	tasksMu sync.Mutex
	tasks   map[string]context.CancelFunc // keyed by workspace id; one ingest task per workspace

	ingestQueue chan *managed
	cleanup     *cleanupQueue

	workerMu      sync.Mutex
	workerCancels []context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager and ensures its data directory exists.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Manager, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, errs.Wrap(errs.IoError, "create workspace data directory", err).WithPath(cfg.DataDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:          cfg,
		deps:         deps,
		logger:       logger,
		workspaces:   make(map[string]*managed),
		progressSubs: make(map[string][]chan Progress),
		watchers:     make(map[string]*workspaceWatcher),
		tasks:        make(map[string]context.CancelFunc),
		ingestQueue:  make(chan *managed, cfg.MaxWorkspaces),
		ctx:          ctx,
		cancel:       cancel,
	}
	m.cleanup = newCleanupQueue(cfg, logger)
	return m, nil
}

// Start launches the ingest worker pool, the cleanup-retry loop, and — if
// any tuning dependency is configured — the periodic tuning pass.
func (m *Manager) Start() {
	m.workerMu.Lock()
	for i := 0; i < m.cfg.MaxConcurrentIngests; i++ {
		m.spawnIngestWorkerLocked()
	}
	m.workerMu.Unlock()

	m.wg.Add(1)
	go m.cleanup.run(m.ctx, &m.wg)

	if m.deps.CacheTuner != nil || m.deps.IndexOptimizer != nil || m.deps.ResourceManager != nil {
		m.wg.Add(1)
		go m.tuningLoop()
	}

	m.logger.Info("workspace manager started",
		"workers", m.cfg.MaxConcurrentIngests, "data_dir", m.cfg.DataDir)
}

// spawnIngestWorkerLocked starts one more ingest worker under a child
// context derived from m.ctx, so scaleIngestWorkers can stop it individually
// by cancelling just that child without tearing down the others. Caller
// holds m.workerMu.
func (m *Manager) spawnIngestWorkerLocked() {
	ctx, cancel := context.WithCancel(m.ctx)
	m.workerCancels = append(m.workerCancels, cancel)
	m.wg.Add(1)
	go m.ingestWorker(ctx)
}

// scaleIngestWorkers adjusts the live ingest pool to n workers: spawning
// more under fresh child contexts, or cancelling the newest ones down to n.
// A shrink never interrupts work already pulled off the queue mid-file;
// ingestWorker only checks ctx.Done() between jobs.
func (m *Manager) scaleIngestWorkers(n int) {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()

	current := len(m.workerCancels)
	switch {
	case n > current:
		for i := 0; i < n-current; i++ {
			m.spawnIngestWorkerLocked()
		}
	case n < current:
		for i := current - 1; i >= n; i-- {
			m.workerCancels[i]()
		}
		m.workerCancels = m.workerCancels[:n]
	}
}

// Close shuts down all goroutines and waits for them to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("workspace manager stopped")
}

// generateID returns a random, filesystem- and wire-safe workspace id
// matching the `[A-Za-z0-9_-]{1,100}` id grammar.
func generateID() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errs.Wrap(errs.Internal, "generate workspace id", err)
	}
	sum := sha256.Sum256(nonce[:])
	return hex.EncodeToString(sum[:])[:24], nil
}

// Create registers a new workspace rooted at sourcePath and enqueues it for
// ingestion. Returns the generated workspace id immediately; ingestion runs
// asynchronously and is observed through Status or SubscribeProgress.
func (m *Manager) Create(ctx context.Context, name, sourcePath string) (string, error) {
	m.mu.Lock()
	if len(m.workspaces) >= m.cfg.MaxWorkspaces {
		m.mu.Unlock()
		return "", errs.New(errs.QuotaExceeded, "maximum number of workspaces reached").
			WithContext("max_workspaces", m.cfg.MaxWorkspaces)
	}
	m.mu.Unlock()

	id, err := generateID()
	if err != nil {
		return "", err
	}

	ws, err := m.openWorkspace(id, name, sourcePath)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.workspaces[id] = ws
	m.mu.Unlock()

	m.publish(ctx, statesync.Event{Type: statesync.WorkspaceCreated, WorkspaceID: id, Timestamp: time.Now()})

	select {
	case m.ingestQueue <- ws:
	default:
		ws.mu.Lock()
		ws.State = StateError
		ws.Error = "ingest queue full"
		ws.mu.Unlock()
		return id, errs.New(errs.QuotaExceeded, "ingest queue full")
	}
	return id, nil
}

// Refresh re-runs ingestion against a new source path for an existing
// workspace. CAS content-addressing absorbs any overlap with the previous
// ingest automatically: re-ingested files with identical content reuse the
// same blob and, under the one-entry-per-hash policy, the same file row.
func (m *Manager) Refresh(ctx context.Context, id, sourcePath string) error {
	ws, err := m.get(id)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	if ws.State == StateIngesting {
		ws.mu.Unlock()
		return errs.New(errs.Validation, "workspace is already ingesting").WithContext("workspace", id)
	}
	ws.SourcePath = sourcePath
	ws.mu.Unlock()

	if m.deps.Cache != nil {
		if err := m.deps.Cache.InvalidateWorkspace(ctx, id); err != nil {
			m.logger.Warn("failed to invalidate cache for refresh", "workspace", id, "err", err)
		}
	}

	select {
	case m.ingestQueue <- ws:
	default:
		return errs.New(errs.QuotaExceeded, "ingest queue full")
	}
	return nil
}

// openWorkspace allocates the on-disk layout and per-workspace resources
// for id, without enqueueing ingestion. Used by Create; Refresh reuses the
// workspace's existing resources.
func (m *Manager) openWorkspace(id, name, sourcePath string) (*managed, error) {
	dir := filepath.Join(m.cfg.DataDir, id)
	if err := os.MkdirAll(filepath.Join(dir, "temp"), 0o750); err != nil {
		return nil, errs.Wrap(errs.IoError, "create workspace directory", err).WithPath(dir)
	}

	store, err := cas.New(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, err
	}
	idx, err := metadata.Open(context.Background(), filepath.Join(dir, "metadata.db"))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &managed{
		ID:         id,
		Name:       name,
		SourcePath: sourcePath,
		State:      StatePending,
		CreatedAt:  now,
		LastAccess: now,
		dir:        dir,
		cas:        store,
		idx:        idx,
		paths:      pathmgr.New(m.deps.PathConfig, idx),
		sec:        security.New(m.deps.SecurityConfig),
		extractC:   m.deps.ExtractConfig,
	}, nil
}

// Load returns a read-only snapshot of a managed workspace, bumping its
// last-access time (it must exist and be Ready to be usable for queries).
func (m *Manager) Load(ctx context.Context, id string) (Info, error) {
	ws, err := m.get(id)
	if err != nil {
		return Info{}, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.State != StateReady {
		return Info{}, errs.New(errs.NotFound, fmt.Sprintf("workspace %s is %s", id, ws.State)).
			WithContext("state", ws.State.String())
	}
	ws.LastAccess = time.Now()
	return ws.snapshotLocked(), nil
}

func (ws *managed) snapshotLocked() Info {
	return Info{
		ID:         ws.ID,
		Name:       ws.Name,
		SourcePath: ws.SourcePath,
		State:      ws.State,
		Error:      ws.Error,
		CreatedAt:  ws.CreatedAt,
		LastAccess: ws.LastAccess,
	}
}

// Status returns the current state, error, and ingest progress for id.
func (m *Manager) Status(id string) (Info, Progress, error) {
	ws, err := m.get(id)
	if err != nil {
		return Info{}, Progress{}, err
	}
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.snapshotLocked(), ws.Progress, nil
}

// List returns a snapshot of every managed workspace.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		ws.mu.RLock()
		out = append(out, ws.snapshotLocked())
		ws.mu.RUnlock()
	}
	return out
}

func (m *Manager) get(id string) (*managed, error) {
	m.mu.RLock()
	ws, ok := m.workspaces[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.NotFound, "workspace not found").WithContext("workspace", id)
	}
	return ws, nil
}

// SubscribeProgress registers a channel that receives ingest progress
// updates for id. The channel is buffered (size 1); slow consumers only
// ever miss an intermediate update, never the final one.
func (m *Manager) SubscribeProgress(id string) (<-chan Progress, func()) {
	ch := make(chan Progress, 1)

	m.progressSubsMu.Lock()
	m.progressSubs[id] = append(m.progressSubs[id], ch)
	m.progressSubsMu.Unlock()

	unsubscribe := func() {
		m.progressSubsMu.Lock()
		defer m.progressSubsMu.Unlock()
		subs := m.progressSubs[id]
		for i, s := range subs {
			if s == ch {
				m.progressSubs[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(m.progressSubs[id]) == 0 {
			delete(m.progressSubs, id)
		}
	}
	return ch, unsubscribe
}

func (m *Manager) notifyProgress(id string, p Progress) {
	m.progressSubsMu.Lock()
	subs := m.progressSubs[id]
	m.progressSubsMu.Unlock()

	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}

func (m *Manager) cleanupProgressSubs(id string) {
	m.progressSubsMu.Lock()
	subs := m.progressSubs[id]
	delete(m.progressSubs, id)
	m.progressSubsMu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// CancelTask cancels the in-flight ingest task for a workspace, if one is
// running. The ingest's own context cancellation path (same as an
// IngestTimeout expiry) takes over from there: the workspace settles into
// StateError with a cancellation message. Returns an error if no task is
// currently running for id.
func (m *Manager) CancelTask(id string) error {
	m.tasksMu.Lock()
	cancel, ok := m.tasks[id]
	m.tasksMu.Unlock()
	if !ok {
		return errs.New(errs.NotFound, "no running task for workspace").WithContext("workspace", id)
	}
	cancel()
	return nil
}

func (m *Manager) registerTask(id string, cancel context.CancelFunc) {
	m.tasksMu.Lock()
	m.tasks[id] = cancel
	m.tasksMu.Unlock()
}

func (m *Manager) deregisterTask(id string) {
	m.tasksMu.Lock()
	delete(m.tasks, id)
	m.tasksMu.Unlock()
}

// publish forwards a lifecycle event to the configured state-sync hub, if
// any. Failures are logged, not propagated: event delivery is best-effort
// and must never abort a workspace operation.
func (m *Manager) publish(ctx context.Context, event statesync.Event) {
	if m.deps.StateSync == nil {
		return
	}
	if err := m.deps.StateSync.Publish(ctx, event); err != nil {
		m.logger.Error("failed to publish workspace event", "err", err, "workspace", event.WorkspaceID)
	}
}
