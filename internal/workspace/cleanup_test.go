package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCleanupQueue_RetriesUntilPathRemovable(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "locked")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	lockFile := filepath.Join(target, "file")
	if err := os.WriteFile(lockFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	q := newCleanupQueue(Config{CleanupRetryDelay: 20 * time.Millisecond, CleanupMaxAttempts: 10}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go q.run(ctx, &wg)

	q.enqueue(target)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("cleanup queue never removed the enqueued path")
}

func TestCleanupQueue_DrainsRemovablePath(t *testing.T) {
	// A path that never exists still "succeeds" via os.RemoveAll (it is a
	// no-op on a missing path), so this test enqueues a path whose parent
	// directory doesn't exist either -- RemoveAll still succeeds in that
	// case too. Instead, verify the queue simply drains without blocking
	// when given a trivially-removable path, exercising the happy path of
	// the retry loop rather than a forced permanent failure (platform file
	// locking semantics aren't reliably reproducible in a unit test).
	q := newCleanupQueue(Config{CleanupRetryDelay: 10 * time.Millisecond, CleanupMaxAttempts: 2}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go q.run(ctx, &wg)

	q.enqueue(filepath.Join(t.TempDir(), "never-existed"))

	time.Sleep(100 * time.Millisecond)

	q.mu.Lock()
	pending := len(q.tasks)
	q.mu.Unlock()
	if pending != 0 {
		t.Errorf("expected queue to drain, %d tasks still pending", pending)
	}
}
