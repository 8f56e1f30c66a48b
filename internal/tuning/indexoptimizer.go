package tuning

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// IndexOptimizerConfig mirrors the documented optimizer.* configuration
// keys; defaults carried verbatim from the original.
type IndexOptimizerConfig struct {
	OptimizationThreshold int64
	AnalysisWindow        time.Duration
	SlowQueryThresholdMS  int64
	MaxRecommendations    int
	MaintenanceInterval   time.Duration
	AutoCreateIndexes     bool
}

func DefaultIndexOptimizerConfig() IndexOptimizerConfig {
	return IndexOptimizerConfig{
		OptimizationThreshold: 100,
		AnalysisWindow:        time.Hour,
		SlowQueryThresholdMS:  200,
		MaxRecommendations:    10,
		MaintenanceInterval:   6 * time.Hour,
		AutoCreateIndexes:     false,
	}
}

// QueryPatternStats is the running aggregate for one distinct query string.
type QueryPatternStats struct {
	Count            int64
	TotalDurationMS  int64
	LastSeen         time.Time
	AvgResultCount   float64
	SlowQueryCount   int64
}

// AvgDurationMS returns the mean query duration, or 0 if never observed.
func (s QueryPatternStats) AvgDurationMS() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.TotalDurationMS) / float64(s.Count)
}

// SpecializedIndexType is the kind of auxiliary index recommended for a
// hot query pattern.
type SpecializedIndexType int

const (
	TermSpecific SpecializedIndexType = iota
	TimePartitioned
	Composite
	PrefixOptimized
	RegexOptimized
)

// IndexPriority orders recommendations and maintenance tasks.
type IndexPriority int

const (
	Low IndexPriority = iota
	Medium
	High
	Critical
)

// SpecializedIndexRecommendation is one proposed auxiliary index.
type SpecializedIndexRecommendation struct {
	IndexType                 SpecializedIndexType
	TargetTerms               []string
	Reason                    string
	EstimatedImprovementPercent float64
	Priority                  IndexPriority
	CreatedAt                 time.Time
}

// MaintenanceTaskType is the closed set of scheduled upkeep actions.
type MaintenanceTaskType int

const (
	SegmentMerge MaintenanceTaskType = iota
	OptimizeForRead
	GarbageCollection
	RebuildSpecialized
	UpdateStatistics
)

// IndexMaintenanceTask is one scheduled upkeep action.
type IndexMaintenanceTask struct {
	Type               MaintenanceTaskType
	ScheduledAt        time.Time
	Priority           IndexPriority
	Description        string
	EstimatedDuration  time.Duration
}

// IndexPerformanceAnalysis is the output of a full analysis pass.
type IndexPerformanceAnalysis struct {
	TotalQueriesAnalyzed int64
	HotQueryCount        int
	SlowQueryCount       int64
	AvgQueryTimeMS       float64
	P95QueryTimeMS       float64
	Recommendations      []SpecializedIndexRecommendation
	MaintenanceTasks      []IndexMaintenanceTask
	HealthScore          float64
	AnalyzedAt           time.Time
}

// IndexOptimizer records query executions and, on request, produces
// prioritized index recommendations, a maintenance schedule, and a
// 0-100 health score.
type IndexOptimizer struct {
	cfg IndexOptimizerConfig

	mu              sync.Mutex
	patterns        map[string]*QueryPatternStats
	recommendations []SpecializedIndexRecommendation
	schedule        []IndexMaintenanceTask
	createdIndexes  map[string]bool
	lastAnalysis    *IndexPerformanceAnalysis
}

func NewIndexOptimizer(cfg IndexOptimizerConfig) *IndexOptimizer {
	return &IndexOptimizer{
		cfg:            cfg,
		patterns:       make(map[string]*QueryPatternStats),
		createdIndexes: make(map[string]bool),
	}
}

// RecordQuery folds one query execution into its pattern's running stats.
func (o *IndexOptimizer) RecordQuery(query string, duration time.Duration, resultCount int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats, ok := o.patterns[query]
	if !ok {
		stats = &QueryPatternStats{}
		o.patterns[query] = stats
	}

	durationMS := duration.Milliseconds()
	stats.Count++
	stats.TotalDurationMS += durationMS
	stats.LastSeen = time.Now()

	const alpha = 0.1
	stats.AvgResultCount = alpha*float64(resultCount) + (1-alpha)*stats.AvgResultCount

	if durationMS > o.cfg.SlowQueryThresholdMS {
		stats.SlowQueryCount++
	}
}

// hotQueries returns patterns seen within AnalysisWindow that have
// crossed OptimizationThreshold.
func (o *IndexOptimizer) hotQueries() map[string]QueryPatternStats {
	now := time.Now()
	out := make(map[string]QueryPatternStats)
	for q, s := range o.patterns {
		if s.LastSeen.IsZero() || now.Sub(s.LastSeen) > o.cfg.AnalysisWindow {
			continue
		}
		if s.Count < o.cfg.OptimizationThreshold {
			continue
		}
		out[q] = *s
	}
	return out
}

// GenerateRecommendations classifies each hot query into a specialized
// index type and priority, sorted by priority descending and truncated
// to MaxRecommendations.
func (o *IndexOptimizer) GenerateRecommendations() []SpecializedIndexRecommendation {
	o.mu.Lock()
	defer o.mu.Unlock()

	hot := o.hotQueries()
	recs := make([]SpecializedIndexRecommendation, 0, len(hot))

	for query, stats := range hot {
		if rec, ok := classifyQuery(query, stats); ok {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	if len(recs) > o.cfg.MaxRecommendations {
		recs = recs[:o.cfg.MaxRecommendations]
	}
	o.recommendations = recs
	return recs
}

// classifyQuery turns one query pattern's running stats into a specialized
// index recommendation, or reports false if its latency doesn't warrant
// one. Shared by GenerateRecommendations (applied across every hot query)
// and RecommendationFor (applied to a single query on demand).
func classifyQuery(query string, stats QueryPatternStats) (SpecializedIndexRecommendation, bool) {
	avgMS := stats.AvgDurationMS()
	if avgMS < 50.0 {
		return SpecializedIndexRecommendation{}, false
	}

	var terms []string
	for _, t := range strings.Fields(query) {
		if len(t) > 2 && !strings.Contains(t, "*") {
			terms = append(terms, strings.ToLower(t))
		}
	}
	if len(terms) == 0 {
		return SpecializedIndexRecommendation{}, false
	}

	var indexType SpecializedIndexType
	var improvement float64
	switch {
	case strings.ContainsAny(query, "*?"):
		indexType, improvement = PrefixOptimized, 40.0
	case strings.Contains(query, "..") || strings.Contains(query, "-"):
		indexType, improvement = TimePartitioned, 35.0
	case len(terms) > 2:
		indexType, improvement = Composite, 30.0
	default:
		indexType, improvement = TermSpecific, 25.0
	}

	priority := Low
	switch {
	case stats.Count > 500 && avgMS > 500.0:
		priority = Critical
	case stats.Count > 200 && avgMS > 200.0:
		priority = High
	case stats.Count > 100:
		priority = Medium
	}

	return SpecializedIndexRecommendation{
		IndexType:                   indexType,
		TargetTerms:                 terms,
		Reason:                      "hot query pattern with high average latency",
		EstimatedImprovementPercent: improvement,
		Priority:                    priority,
		CreatedAt:                   time.Now(),
	}, true
}

// RecommendationFor classifies a single query's own running stats into a
// specialized index recommendation without running a full analysis pass
// over every tracked pattern — used by the query optimizer to attach an
// index hint to one query's optimization result.
func (o *IndexOptimizer) RecommendationFor(query string) (SpecializedIndexRecommendation, bool) {
	o.mu.Lock()
	stats, ok := o.patterns[query]
	o.mu.Unlock()
	if !ok || stats.Count < o.cfg.OptimizationThreshold {
		return SpecializedIndexRecommendation{}, false
	}
	return classifyQuery(query, *stats)
}

// ScheduleMaintenance derives upkeep tasks from aggregate query volume
// and the slow-query ratio.
func (o *IndexOptimizer) ScheduleMaintenance() []IndexMaintenanceTask {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	var totalQueries, totalSlow int64
	for _, s := range o.patterns {
		totalQueries += s.Count
		totalSlow += s.SlowQueryCount
	}
	var slowRatio float64
	if totalQueries > 0 {
		slowRatio = float64(totalSlow) / float64(totalQueries)
	}

	var tasks []IndexMaintenanceTask
	if totalQueries > 10000 {
		tasks = append(tasks, IndexMaintenanceTask{
			Type: SegmentMerge, ScheduledAt: now, Priority: Medium,
			Description: "merge index segments to improve read performance", EstimatedDuration: 5 * time.Second,
		})
	}
	if slowRatio > 0.1 {
		tasks = append(tasks, IndexMaintenanceTask{
			Type: OptimizeForRead, ScheduledAt: now, Priority: High,
			Description: "optimize index for read performance", EstimatedDuration: 10 * time.Second,
		})
	}
	tasks = append(tasks, IndexMaintenanceTask{
		Type: UpdateStatistics, ScheduledAt: now, Priority: Low,
		Description: "update term frequency statistics", EstimatedDuration: 2 * time.Second,
	})

	highPriority := 0
	for _, r := range o.recommendations {
		if r.Priority >= High {
			highPriority++
		}
	}
	if highPriority > 0 {
		tasks = append(tasks, IndexMaintenanceTask{
			Type: RebuildSpecialized, ScheduledAt: now, Priority: High,
			Description:       "rebuild high-priority specialized indexes",
			EstimatedDuration: time.Duration(highPriority) * 3 * time.Second,
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority > tasks[j].Priority })
	o.schedule = tasks
	return tasks
}

// AnalyzePerformance runs a full analysis pass: recommendations,
// maintenance schedule, and a 0-100 health score.
func (o *IndexOptimizer) AnalyzePerformance() IndexPerformanceAnalysis {
	o.mu.Lock()
	var totalQueries, totalSlow, totalDuration int64
	avgTimes := make([]float64, 0, len(o.patterns))
	for _, s := range o.patterns {
		totalQueries += s.Count
		totalSlow += s.SlowQueryCount
		totalDuration += s.TotalDurationMS
		avgTimes = append(avgTimes, s.AvgDurationMS())
	}
	hotCount := len(o.hotQueries())
	o.mu.Unlock()

	var avgQueryTime float64
	if totalQueries > 0 {
		avgQueryTime = float64(totalDuration) / float64(totalQueries)
	}

	sort.Float64s(avgTimes)
	var p95 float64
	if len(avgTimes) > 0 {
		idx := int(float64(len(avgTimes))*0.95) - 1
		if idx < 0 {
			idx = 0
		}
		p95 = avgTimes[idx]
	}

	recs := o.GenerateRecommendations()
	tasks := o.ScheduleMaintenance()

	var slowRatio float64
	if totalQueries > 0 {
		slowRatio = float64(totalSlow) / float64(totalQueries)
	}
	health := o.calculateHealthScore(avgQueryTime, slowRatio, hotCount)

	analysis := IndexPerformanceAnalysis{
		TotalQueriesAnalyzed: totalQueries,
		HotQueryCount:        hotCount,
		SlowQueryCount:       totalSlow,
		AvgQueryTimeMS:       avgQueryTime,
		P95QueryTimeMS:       p95,
		Recommendations:      recs,
		MaintenanceTasks:     tasks,
		HealthScore:          health,
		AnalyzedAt:           time.Now(),
	}

	o.mu.Lock()
	o.lastAnalysis = &analysis
	o.mu.Unlock()

	return analysis
}

func (o *IndexOptimizer) calculateHealthScore(avgQueryTimeMS, slowQueryRatio float64, hotQueryCount int) float64 {
	score := 100.0
	if avgQueryTimeMS > 200.0 {
		score -= minFloat((avgQueryTimeMS-200.0)/10.0, 30.0)
	}
	score -= minFloat(slowQueryRatio*100.0, 30.0)
	if hotQueryCount > 10 {
		score -= minFloat(float64(hotQueryCount-10)*2.0, 20.0)
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ShouldAutoCreateIndex reports whether query has crossed 2x both the
// count and latency thresholds, auto-creation is enabled, and no index
// has already been created for it.
func (o *IndexOptimizer) ShouldAutoCreateIndex(query string) bool {
	if !o.cfg.AutoCreateIndexes {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	stats, ok := o.patterns[query]
	if !ok {
		return false
	}
	veryHot := stats.Count >= o.cfg.OptimizationThreshold*2
	verySlow := stats.AvgDurationMS() >= float64(o.cfg.SlowQueryThresholdMS*2)
	return veryHot && verySlow && !o.createdIndexes[query]
}

// MarkIndexCreated records that a specialized index now exists for query.
func (o *IndexOptimizer) MarkIndexCreated(query string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.createdIndexes[query] = true
}

// LastAnalysis returns the most recent AnalyzePerformance result, if any.
func (o *IndexOptimizer) LastAnalysis() (IndexPerformanceAnalysis, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastAnalysis == nil {
		return IndexPerformanceAnalysis{}, false
	}
	return *o.lastAnalysis, true
}

// CleanupOldPatterns drops patterns not seen within 2x AnalysisWindow,
// bounding memory growth from one-off query strings.
func (o *IndexOptimizer) CleanupOldPatterns() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := 2 * o.cfg.AnalysisWindow
	now := time.Now()
	removed := 0
	for q, s := range o.patterns {
		if s.LastSeen.IsZero() || now.Sub(s.LastSeen) > cutoff {
			delete(o.patterns, q)
			removed++
		}
	}
	return removed
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
