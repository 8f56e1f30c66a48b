package workspace

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// cleanupTask is a filesystem path that failed removal (typically because a
// file handle was still open) and is retried every CleanupRetryDelay.
type cleanupTask struct {
	path    string
	attempt int
}

// cleanupQueue retries failed removals in the background, per deletion
// step 7. A path that exhausts CleanupMaxAttempts is logged and dropped;
// deletion itself already reported success by the time any retry runs.
type cleanupQueue struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	tasks []cleanupTask
	wake  chan struct{}
}

func newCleanupQueue(cfg Config, logger *slog.Logger) *cleanupQueue {
	return &cleanupQueue{cfg: cfg, logger: logger, wake: make(chan struct{}, 1)}
}

func (q *cleanupQueue) enqueue(path string) {
	q.mu.Lock()
	q.tasks = append(q.tasks, cleanupTask{path: path, attempt: 0})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *cleanupQueue) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(q.cfg.CleanupRetryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			q.drain()
		case <-ticker.C:
			q.drain()
		}
	}
}

func (q *cleanupQueue) drain() {
	q.mu.Lock()
	pending := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	var retry []cleanupTask
	for _, task := range pending {
		if err := os.RemoveAll(task.path); err != nil {
			task.attempt++
			if task.attempt < q.cfg.CleanupMaxAttempts {
				retry = append(retry, task)
				q.logger.Warn("retrying deferred removal", "path", task.path, "attempt", task.attempt, "err", err)
			} else {
				q.logger.Error("giving up on deferred removal", "path", task.path, "attempts", task.attempt, "err", err)
			}
		}
	}

	if len(retry) > 0 {
		q.mu.Lock()
		q.tasks = append(q.tasks, retry...)
		q.mu.Unlock()
	}
}
