package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_TriggersRefreshOnChange(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.log"), []byte("INFO hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := m.Create(context.Background(), "watched", src)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	waitReady(t, m, id)

	if err := m.Watch(id); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer m.StopWatch(id)

	if err := os.WriteFile(filepath.Join(src, "b.log"), []byte("ERROR boom"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		info, _, err := m.Status(id)
		if err != nil {
			t.Fatalf("Status() error: %v", err)
		}
		if info.State == StateIngesting {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not trigger a refresh before deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestStopWatch_IsIdempotent(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	m.StopWatch("nonexistent")
	m.StopWatch("nonexistent")
}
