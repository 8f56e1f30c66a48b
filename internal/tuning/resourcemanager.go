package tuning

import (
	"sync"
	"sync/atomic"
	"time"
)

// WorkerScalingConfig mirrors the documented resource.* worker-scaling
// configuration keys.
type WorkerScalingConfig struct {
	MinWorkers       int
	MaxWorkers       int
	HighCPUThreshold float64 // percent; above this, scale down
	LowCPUThreshold  float64 // percent; below this with pending work, scale up
	TrendBias        float64 // percentage-point swing over the window that preempts scaling
	ScaleCooldown    time.Duration
	TrendWindowSize  int
}

// DefaultWorkerScalingConfig matches the documented worker-scaling defaults.
func DefaultWorkerScalingConfig() WorkerScalingConfig {
	return WorkerScalingConfig{
		MinWorkers:       1,
		MaxWorkers:       20,
		HighCPUThreshold: 80.0,
		LowCPUThreshold:  30.0,
		TrendBias:        15.0,
		ScaleCooldown:    60 * time.Second,
		TrendWindowSize:  10,
	}
}

// ResourceStats is a point-in-time read of the resource manager's tracked
// operation counts and current worker allocation.
type ResourceStats struct {
	ActiveOperations    int64
	PendingOperations   int64
	CompletedOperations int64
	CurrentWorkers      int
}

// ResourceManager tracks in-flight work for a worker pool (the ingest
// pool in this engine) and recommends a worker count from observed CPU
// usage and queue depth. It does not sample CPU itself — the owner of
// the pool feeds it a usage reading however it is cheapest to obtain
// there, the same division of responsibility as CacheTuner/IndexOptimizer.
type ResourceManager struct {
	cfg WorkerScalingConfig

	activeOps    int64 // atomic
	pendingOps   int64 // atomic
	completedOps int64 // atomic

	mu             sync.Mutex
	currentWorkers int
	lastScale      time.Time
	cpuHistory     []float64
}

// NewResourceManager starts the manager tracking currentWorkers as the
// pool's initial size.
func NewResourceManager(cfg WorkerScalingConfig, currentWorkers int) *ResourceManager {
	return &ResourceManager{cfg: cfg, currentWorkers: currentWorkers}
}

// OperationStarted records that one more operation is now active.
func (r *ResourceManager) OperationStarted() {
	atomic.AddInt64(&r.activeOps, 1)
}

// OperationCompleted records that one active operation finished.
func (r *ResourceManager) OperationCompleted() {
	atomic.AddInt64(&r.activeOps, -1)
	atomic.AddInt64(&r.completedOps, 1)
}

// SetPending reports the current queue depth (operations waiting for a
// free worker). The caller passes its own queue length; the manager
// doesn't own the queue.
func (r *ResourceManager) SetPending(n int) {
	atomic.StoreInt64(&r.pendingOps, int64(n))
}

// Stats returns a snapshot of tracked operation counts and the current
// worker allocation.
func (r *ResourceManager) Stats() ResourceStats {
	r.mu.Lock()
	workers := r.currentWorkers
	r.mu.Unlock()
	return ResourceStats{
		ActiveOperations:    atomic.LoadInt64(&r.activeOps),
		PendingOperations:   atomic.LoadInt64(&r.pendingOps),
		CompletedOperations: atomic.LoadInt64(&r.completedOps),
		CurrentWorkers:      workers,
	}
}

// ComputeOptimalWorkers folds one CPU usage reading (0-100) into the
// trend window and returns the recommended worker count: high CPU scales
// down, low CPU with pending work scales up, neither beyond
// [MinWorkers, MaxWorkers]. A strong trend over the window biases the
// decision preemptively, before the instantaneous reading alone would
// cross a threshold. Scaling is rate-limited to once per ScaleCooldown;
// within the cooldown it returns the last recommended count unchanged.
func (r *ResourceManager) ComputeOptimalWorkers(cpuUsagePercent float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cpuHistory = append(r.cpuHistory, cpuUsagePercent)
	if len(r.cpuHistory) > r.cfg.TrendWindowSize {
		r.cpuHistory = r.cpuHistory[len(r.cpuHistory)-r.cfg.TrendWindowSize:]
	}

	if !r.lastScale.IsZero() && time.Since(r.lastScale) < r.cfg.ScaleCooldown {
		return r.currentWorkers
	}

	pending := atomic.LoadInt64(&r.pendingOps)
	trendUp := r.cpuTrendLocked()

	next := r.currentWorkers
	switch {
	case cpuUsagePercent > r.cfg.HighCPUThreshold:
		next = r.currentWorkers - 1
	case cpuUsagePercent < r.cfg.LowCPUThreshold && pending > 0:
		next = r.currentWorkers + 1
	case trendUp > r.cfg.TrendBias:
		// CPU usage is climbing sharply; scale down preemptively even
		// though the instantaneous reading hasn't crossed the high
		// threshold yet.
		next = r.currentWorkers - 1
	case trendUp < -r.cfg.TrendBias && pending > 0:
		next = r.currentWorkers + 1
	}

	if next < r.cfg.MinWorkers {
		next = r.cfg.MinWorkers
	}
	if next > r.cfg.MaxWorkers {
		next = r.cfg.MaxWorkers
	}

	if next != r.currentWorkers {
		r.currentWorkers = next
		r.lastScale = time.Now()
	}
	return r.currentWorkers
}

// cpuTrendLocked returns the change in average CPU usage between the
// first and second half of the tracked window, in percentage points.
// Caller holds r.mu.
func (r *ResourceManager) cpuTrendLocked() float64 {
	if len(r.cpuHistory) < 4 {
		return 0
	}
	mid := len(r.cpuHistory) / 2

	var older, recent float64
	for i, v := range r.cpuHistory {
		if i < mid {
			older += v
		} else {
			recent += v
		}
	}
	older /= float64(mid)
	recent /= float64(len(r.cpuHistory) - mid)
	return recent - older
}
