package resource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rybkr/logarc/internal/metadata"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	idx, err := metadata.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return New(cfg, idx, t.TempDir(), nil)
}

func TestHandleRegistration(t *testing.T) {
	m := newTestManager(t, DefaultConfig())

	m.RegisterHandle("/a.txt", "ws1")
	m.RegisterHandle("/b.txt", "ws1")
	m.RegisterHandle("/c.txt", "ws2")

	if got := m.ActiveHandleCount(); got != 3 {
		t.Fatalf("ActiveHandleCount = %d, want 3", got)
	}

	m.UnregisterHandle("/a.txt")
	if got := m.ActiveHandleCount(); got != 2 {
		t.Fatalf("ActiveHandleCount after unregister = %d, want 2", got)
	}

	released := m.ReleaseWorkspaceHandles("ws1")
	if released != 1 {
		t.Fatalf("ReleaseWorkspaceHandles(ws1) = %d, want 1", released)
	}
	if got := m.ActiveHandleCount(); got != 1 {
		t.Fatalf("ActiveHandleCount after release = %d, want 1", got)
	}
}

func TestCleanupTempFiles_RespectsTTL(t *testing.T) {
	m := newTestManager(t, Config{TempTTL: 50 * time.Millisecond, SweepInterval: time.Hour, MaxReleaseTime: 5 * time.Second})

	wsDir := m.WorkspaceTempDir("ws1")
	if err := os.MkdirAll(wsDir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	f := filepath.Join(wsDir, "stale.tmp")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	removed, err := m.CleanupTempFiles("ws1")
	if err != nil {
		t.Fatalf("CleanupTempFiles (too young): %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0 (file too young)", removed)
	}

	time.Sleep(100 * time.Millisecond)

	removed, err = m.CleanupTempFiles("ws1")
	if err != nil {
		t.Fatalf("CleanupTempFiles (expired): %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Error("expected stale.tmp to be removed")
	}
}

func TestCleanupWorkspace(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	m.RegisterHandle("/a.txt", "ws1")
	m.RegisterHandle("/b.txt", "ws1")

	wsDir := m.WorkspaceTempDir("ws1")
	if err := os.MkdirAll(wsDir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, "t1.tmp"), []byte("1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, "t2.tmp"), []byte("2"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stats, err := m.CleanupWorkspace(ctx, "ws1")
	if err != nil {
		t.Fatalf("CleanupWorkspace: %v", err)
	}
	if stats.HandlesReleased != 2 {
		t.Errorf("HandlesReleased = %d, want 2", stats.HandlesReleased)
	}
	if stats.TempFilesRemoved != 2 {
		t.Errorf("TempFilesRemoved = %d, want 2", stats.TempFilesRemoved)
	}
	if _, err := os.Stat(wsDir); !os.IsNotExist(err) {
		t.Error("expected workspace temp dir to be removed")
	}
}

func TestBufferPool(t *testing.T) {
	p := NewBufferPool(1024)

	buf := p.Get()
	if len(buf) != 1024 {
		t.Fatalf("len(buf) = %d, want 1024", len(buf))
	}
	buf[0] = 42
	p.Put(buf)

	reused := p.Get()
	if reused[0] != 0 {
		t.Error("expected reused buffer to be zeroed")
	}
}
