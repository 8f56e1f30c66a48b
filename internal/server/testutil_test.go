package server

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/rybkr/logarc/internal/config"
	"github.com/rybkr/logarc/internal/workspace"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

func testWebFS() fs.FS {
	return fstest.MapFS{"index.html": &fstest.MapFile{Data: []byte("<html></html>")}}
}

// fakeWorkspaceService is an in-memory stand-in for workspace.Service,
// letting handler tests exercise routing and response shaping without a
// real Manager's filesystem/CAS/metadata dependencies.
type fakeWorkspaceService struct {
	mu         sync.Mutex
	workspaces map[string]workspace.Info
	progress   map[string]workspace.Progress
	metrics    map[string]workspace.Metrics
	reports    map[string]workspace.ValidationReport
	nextID     int
	watched    map[string]bool
	tasks      map[string]bool

	createErr  error
	refreshErr error
	deleteErr  error
}

func newFakeWorkspaceService() *fakeWorkspaceService {
	return &fakeWorkspaceService{
		workspaces: make(map[string]workspace.Info),
		progress:   make(map[string]workspace.Progress),
		metrics:    make(map[string]workspace.Metrics),
		reports:    make(map[string]workspace.ValidationReport),
		watched:    make(map[string]bool),
		tasks:      make(map[string]bool),
	}
}

func (f *fakeWorkspaceService) Create(_ context.Context, name, sourcePath string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := strings.Repeat("a", 23) + string(rune('0'+f.nextID))
	f.workspaces[id] = workspace.Info{ID: id, Name: name, SourcePath: sourcePath, State: workspace.StateReady}
	return id, nil
}

func (f *fakeWorkspaceService) Load(_ context.Context, id string) (workspace.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.workspaces[id]
	if !ok {
		return workspace.Info{}, errNotFound
	}
	return info, nil
}

func (f *fakeWorkspaceService) Refresh(_ context.Context, id, sourcePath string) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.workspaces[id]
	if !ok {
		return errNotFound
	}
	info.SourcePath = sourcePath
	f.workspaces[id] = info
	return nil
}

func (f *fakeWorkspaceService) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[id]; !ok {
		return errNotFound
	}
	delete(f.workspaces, id)
	return nil
}

func (f *fakeWorkspaceService) Status(id string) (workspace.Info, workspace.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.workspaces[id]
	if !ok {
		return workspace.Info{}, workspace.Progress{}, errNotFound
	}
	return info, f.progress[id], nil
}

func (f *fakeWorkspaceService) List() []workspace.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]workspace.Info, 0, len(f.workspaces))
	for _, info := range f.workspaces {
		out = append(out, info)
	}
	return out
}

func (f *fakeWorkspaceService) SubscribeProgress(_ string) (<-chan workspace.Progress, func()) {
	ch := make(chan workspace.Progress)
	close(ch)
	return ch, func() {}
}

func (f *fakeWorkspaceService) Metrics(_ context.Context, id string) (workspace.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[id]; !ok {
		return workspace.Metrics{}, errNotFound
	}
	return f.metrics[id], nil
}

func (f *fakeWorkspaceService) Validate(_ context.Context, id string) (workspace.ValidationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[id]; !ok {
		return workspace.ValidationReport{}, errNotFound
	}
	return f.reports[id], nil
}

func (f *fakeWorkspaceService) Watch(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[id]; !ok {
		return errNotFound
	}
	f.watched[id] = true
	return nil
}

func (f *fakeWorkspaceService) StopWatch(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, id)
}

func (f *fakeWorkspaceService) CancelTask(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tasks[id] {
		return errNotFound
	}
	delete(f.tasks, id)
	return nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound error = notFoundError{}

// newTestServer constructs a Server backed by a fake workspace service and a
// default, already-validated configuration manager.
func newTestServer(t *testing.T) (*Server, *fakeWorkspaceService) {
	t.Helper()
	fake := newFakeWorkspaceService()
	cfgMgr, err := config.NewManager(config.Default())
	if err != nil {
		t.Fatalf("config.NewManager() error: %v", err)
	}
	s := New(Deps{
		Workspaces: fake,
		Config:     cfgMgr,
		Logger:     silentLogger(),
	}, "127.0.0.1:0", testWebFS())
	return s, fake
}
