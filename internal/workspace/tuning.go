package workspace

import (
	"time"

	"github.com/rybkr/logarc/internal/tuning"
)

// tuningLoop runs the periodic observe/adjust pass for whichever tuning
// dependencies are configured, ticking on cfg.TuningInterval. Like
// cleanupQueue.run, it stops as soon as m.ctx is cancelled.
func (m *Manager) tuningLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.TuningInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runTuningPass()
		}
	}
}

func (m *Manager) runTuningPass() {
	if m.deps.Cache != nil && m.deps.CacheTuner != nil {
		m.tuneCache()
	}
	if m.deps.IndexOptimizer != nil {
		if n := m.deps.IndexOptimizer.CleanupOldPatterns(); n > 0 {
			m.logger.Info("index optimizer dropped stale query patterns", "count", n)
		}
	}
	if m.deps.ResourceManager != nil {
		m.tuneWorkers()
	}
}

// tuneCache feeds the live cache's Stats into the cache tuner and, if the
// tuner is configured to auto-apply its own recommendations, mirrors a
// size change onto the cache itself.
func (m *Manager) tuneCache() {
	stats := m.deps.Cache.Stats()
	action := m.deps.CacheTuner.AnalyzeAndTune(tuning.TuningMetrics{
		HitRate:       stats.L1HitRate,
		EvictionRate:  stats.EvictionsPerMinute,
		AvgAccessTime: stats.AvgAccessTime,
		CacheSize:     int64(stats.Size),
		HotKeysCount:  len(stats.HotKeys),
	})
	if action.Type == tuning.NoAction {
		return
	}

	m.logger.Info("cache tuner recommendation",
		"action", action.Type.String(), "reason", action.Description)

	if !m.deps.CacheTuner.AutoApplyEnabled() {
		return
	}
	switch action.Type {
	case tuning.IncreaseCacheSize, tuning.DecreaseCacheSize:
		m.deps.Cache.Resize(int(action.ToSize))
	}
}

// tuneWorkers feeds the resource manager the current ingest queue depth and
// a CPU-usage proxy, then applies its recommended worker count to the live
// ingest pool.
//
// estimateWorkerLoad substitutes for an actual CPU reading: the example
// pack carries no host-metrics library, so the proxy is the fraction of
// the current pool actively processing a workspace, which responds to the
// same pressure (a saturated pool) that real CPU usage would.
func (m *Manager) tuneWorkers() {
	m.deps.ResourceManager.SetPending(len(m.ingestQueue))
	n := m.deps.ResourceManager.ComputeOptimalWorkers(m.estimateWorkerLoad())
	m.scaleIngestWorkers(n)
}

func (m *Manager) estimateWorkerLoad() float64 {
	stats := m.deps.ResourceManager.Stats()

	m.workerMu.Lock()
	workers := len(m.workerCancels)
	m.workerMu.Unlock()
	if workers == 0 {
		return 0
	}

	load := 100 * float64(stats.ActiveOperations) / float64(workers)
	if load > 100 {
		load = 100
	}
	return load
}
