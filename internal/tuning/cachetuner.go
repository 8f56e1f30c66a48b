// Package tuning implements the advisory auto-tuning subsystems layered
// over the cache and search engine: a self-tuning cache controller and
// a query-pattern-driven index optimizer. Both are advisory by default —
// they compute recommendations from observed metrics and only mutate
// live state when an explicit auto-apply flag is set.
package tuning

import (
	"sync"
	"time"
)

// EvictionPolicy is the cache eviction strategy the tuner can recommend
// switching to.
type EvictionPolicy int

const (
	LRU EvictionPolicy = iota
	LFU
	TTL
	Adaptive
)

func (a TuningActionType) String() string {
	switch a {
	case IncreaseCacheSize:
		return "IncreaseCacheSize"
	case DecreaseCacheSize:
		return "DecreaseCacheSize"
	case ChangeEvictionPolicy:
		return "ChangeEvictionPolicy"
	case TriggerWarming:
		return "TriggerWarming"
	case AdjustTTL:
		return "AdjustTTL"
	default:
		return "NoAction"
	}
}

func (p EvictionPolicy) String() string {
	switch p {
	case LFU:
		return "LFU"
	case TTL:
		return "TTL"
	case Adaptive:
		return "Adaptive"
	default:
		return "LRU"
	}
}

// CacheTunerConfig mirrors the documented tuning.* configuration keys;
// defaults are carried verbatim from the original tuner.
type CacheTunerConfig struct {
	TuningInterval       time.Duration
	TargetHitRate        float64
	MinAcceptableHitRate float64
	MaxEvictionRate      float64 // per minute
	SizeAdjustmentStep   float64 // percent
	MinCacheSize         int64
	MaxCacheSize         int64
	HistoryWindowSize    int
	EnableAutoWarming    bool
	WarmingThreshold     int64
	AdjustmentCooldown   time.Duration
	AutoApply            bool
}

func DefaultCacheTunerConfig() CacheTunerConfig {
	return CacheTunerConfig{
		TuningInterval:       time.Minute,
		TargetHitRate:        0.80,
		MinAcceptableHitRate: 0.60,
		MaxEvictionRate:      10.0,
		SizeAdjustmentStep:   10.0,
		MinCacheSize:         100,
		MaxCacheSize:         10000,
		HistoryWindowSize:    30,
		EnableAutoWarming:    true,
		WarmingThreshold:     5,
		AdjustmentCooldown:   5 * time.Minute,
		AutoApply:            false,
	}
}

// TuningActionType is the closed set of actions the cache tuner proposes.
type TuningActionType int

const (
	NoAction TuningActionType = iota
	IncreaseCacheSize
	DecreaseCacheSize
	ChangeEvictionPolicy
	TriggerWarming
	AdjustTTL
)

// TuningMetrics is one observation of cache behavior fed to the tuner.
type TuningMetrics struct {
	HitRate        float64
	EvictionRate   float64 // per minute
	AvgAccessTime  time.Duration
	CacheSize      int64
	HotKeysCount   int
}

// TuningAction is one recommendation (or applied change) the tuner produced.
type TuningAction struct {
	Type                TuningActionType
	Description         string
	Timestamp           time.Time
	MetricsBefore       TuningMetrics
	ExpectedImprovement float64
	FromSize            int64
	ToSize              int64
	FromPolicy          EvictionPolicy
	ToPolicy            EvictionPolicy
}

// CacheTuningState is the tuner's mutable view of the cache it controls.
type CacheTuningState struct {
	CurrentPolicy     EvictionPolicy
	CurrentSize       int64
	CurrentTTL        time.Duration
	LastAdjustment    time.Time
	TotalAdjustments  int64
	RecentActions     []TuningAction
}

type metricsHistoryEntry struct {
	at      time.Time
	metrics TuningMetrics
}

type trend struct {
	hitRateTrend  float64
	evictionTrend float64
	isImproving   bool
	isStable      bool
}

// CacheTuner observes cache metrics over time and proposes (or, with
// AutoApply, applies) size/policy/TTL/warming adjustments.
type CacheTuner struct {
	cfg CacheTunerConfig

	mu      sync.Mutex
	state   CacheTuningState
	history []metricsHistoryEntry
}

// NewCacheTuner starts the tuner with an initial cache size/TTL/policy,
// typically the cache's own current configuration.
func NewCacheTuner(cfg CacheTunerConfig, initialSize int64, initialTTL time.Duration) *CacheTuner {
	return &CacheTuner{
		cfg: cfg,
		state: CacheTuningState{
			CurrentPolicy: LRU,
			CurrentSize:   initialSize,
			CurrentTTL:    initialTTL,
		},
	}
}

// RecordMetrics appends a metrics observation, trimming to HistoryWindowSize.
func (t *CacheTuner) RecordMetrics(m TuningMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(m)
}

func (t *CacheTuner) recordLocked(m TuningMetrics) {
	t.history = append(t.history, metricsHistoryEntry{at: time.Now(), metrics: m})
	if len(t.history) > t.cfg.HistoryWindowSize {
		t.history = t.history[len(t.history)-t.cfg.HistoryWindowSize:]
	}
}

// AnalyzeAndTune records the current metrics, evaluates trend and
// priority rules, and returns the chosen action. Within AutoApply, the
// action's sizing/policy change is folded into the tuner's own state;
// the caller is still responsible for applying it to the live cache.
func (t *CacheTuner) AnalyzeAndTune(current TuningMetrics) TuningAction {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.LastAdjustment.IsZero() && time.Since(t.state.LastAdjustment) < t.cfg.AdjustmentCooldown {
		return TuningAction{
			Type:          NoAction,
			Description:   "in cooldown period",
			Timestamp:     time.Now(),
			MetricsBefore: current,
		}
	}

	t.recordLocked(current)
	tr := t.analyzeTrendLocked()
	action := t.determineActionLocked(current, tr)

	if action.Type != NoAction && t.cfg.AutoApply {
		t.applyActionLocked(action)
	}
	return action
}

func (t *CacheTuner) analyzeTrendLocked() trend {
	if len(t.history) < 5 {
		return trend{isStable: true}
	}
	mid := len(t.history) / 2

	var recentHit, olderHit, recentEvict, olderEvict float64
	for i, e := range t.history {
		if i < mid {
			olderHit += e.metrics.HitRate
			olderEvict += e.metrics.EvictionRate
		} else {
			recentHit += e.metrics.HitRate
			recentEvict += e.metrics.EvictionRate
		}
	}
	olderHit /= float64(mid)
	recentHit /= float64(len(t.history) - mid)
	olderEvict /= float64(mid)
	recentEvict /= float64(len(t.history) - mid)

	return trend{
		hitRateTrend:  recentHit - olderHit,
		evictionTrend: recentEvict - olderEvict,
		isImproving:   recentHit > olderHit,
		isStable:      abs(recentHit-olderHit) < 0.05,
	}
}

func (t *CacheTuner) determineActionLocked(m TuningMetrics, tr trend) TuningAction {
	now := time.Now()

	// Priority 1: critically low hit rate.
	if m.HitRate < t.cfg.MinAcceptableHitRate {
		if newSize := t.calculateNewSize(t.state.CurrentSize, true); newSize != t.state.CurrentSize {
			return TuningAction{
				Type: IncreaseCacheSize, Timestamp: now, MetricsBefore: m,
				Description:         "hit rate below minimum acceptable threshold",
				FromSize:            t.state.CurrentSize, ToSize: newSize,
				ExpectedImprovement: 10.0,
			}
		}
	}

	// Priority 2: high eviction rate.
	if m.EvictionRate > t.cfg.MaxEvictionRate {
		if newSize := t.calculateNewSize(t.state.CurrentSize, true); newSize != t.state.CurrentSize {
			return TuningAction{
				Type: IncreaseCacheSize, Timestamp: now, MetricsBefore: m,
				Description:         "eviction rate exceeds maximum",
				FromSize:            t.state.CurrentSize, ToSize: newSize,
				ExpectedImprovement: 15.0,
			}
		}
	}

	// Priority 3: trend-driven adjustment.
	if !tr.isStable {
		if tr.hitRateTrend < -0.1 {
			if newSize := t.calculateNewSize(t.state.CurrentSize, true); newSize != t.state.CurrentSize {
				return TuningAction{
					Type: IncreaseCacheSize, Timestamp: now, MetricsBefore: m,
					Description:         "hit rate declining",
					FromSize:            t.state.CurrentSize, ToSize: newSize,
					ExpectedImprovement: 5.0,
				}
			}
		} else if tr.hitRateTrend > 0.1 && m.HitRate > t.cfg.TargetHitRate {
			if newSize := t.calculateNewSize(t.state.CurrentSize, false); newSize != t.state.CurrentSize {
				return TuningAction{
					Type: DecreaseCacheSize, Timestamp: now, MetricsBefore: m,
					Description: "hit rate above target with improving trend",
					FromSize:    t.state.CurrentSize, ToSize: newSize,
				}
			}
		}
	}

	// Priority 4: eviction policy change for hot-key-heavy workloads.
	if m.HotKeysCount > 50 && t.state.CurrentPolicy != LFU {
		return TuningAction{
			Type: ChangeEvictionPolicy, Timestamp: now, MetricsBefore: m,
			Description:         "many hot keys detected",
			FromPolicy:          t.state.CurrentPolicy, ToPolicy: LFU,
			ExpectedImprovement: 5.0,
		}
	}

	// Priority 5: trigger warming.
	if t.cfg.EnableAutoWarming && m.HotKeysCount > 0 && m.HitRate < t.cfg.TargetHitRate {
		return TuningAction{
			Type: TriggerWarming, Timestamp: now, MetricsBefore: m,
			Description:         "triggering warming for hot keys to improve hit rate",
			ExpectedImprovement: 8.0,
		}
	}

	return TuningAction{Type: NoAction, Timestamp: now, MetricsBefore: m, Description: "cache performance within acceptable parameters"}
}

// calculateNewSize adjusts size by SizeAdjustmentStep percent, clamped
// to [MinCacheSize, MaxCacheSize] with a minimum absolute step of 10.
func (t *CacheTuner) calculateNewSize(current int64, increase bool) int64 {
	adjustment := int64(float64(current) * t.cfg.SizeAdjustmentStep / 100.0)
	if adjustment < 10 {
		adjustment = 10
	}
	if increase {
		next := current + adjustment
		if next > t.cfg.MaxCacheSize {
			return t.cfg.MaxCacheSize
		}
		return next
	}
	next := current - adjustment
	if next < t.cfg.MinCacheSize {
		return t.cfg.MinCacheSize
	}
	return next
}

func (t *CacheTuner) applyActionLocked(action TuningAction) {
	switch action.Type {
	case IncreaseCacheSize, DecreaseCacheSize:
		t.state.CurrentSize = action.ToSize
	case ChangeEvictionPolicy:
		t.state.CurrentPolicy = action.ToPolicy
	case AdjustTTL:
		// reserved: no caller currently produces AdjustTTL actions
	}

	t.state.LastAdjustment = time.Now()
	t.state.TotalAdjustments++
	t.state.RecentActions = append(t.state.RecentActions, action)
	if len(t.state.RecentActions) > 20 {
		t.state.RecentActions = t.state.RecentActions[1:]
	}
}

// State returns a snapshot of the tuner's current view of the cache.
func (t *CacheTuner) State() CacheTuningState {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.state
	snapshot.RecentActions = append([]TuningAction(nil), t.state.RecentActions...)
	return snapshot
}

// AutoApplyEnabled reports whether the tuner is configured to fold its own
// recommendations into State automatically. A caller that wants to mirror
// a size/policy change onto the live cache should gate on this: without
// AutoApply, AnalyzeAndTune's action is advisory only and State() won't
// reflect it.
func (t *CacheTuner) AutoApplyEnabled() bool {
	return t.cfg.AutoApply
}

// Apply folds action into the tuner's tracked state regardless of
// AutoApply — used by a caller that decides, out of band, to accept an
// advisory recommendation.
func (t *CacheTuner) Apply(action TuningAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyActionLocked(action)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
