// Package cache implements the multi-tier result cache fronting search
// queries: an in-process bounded L1 with TTL/idle-TTL eviction, and an
// optional remote L2 (Redis) with pub/sub invalidation so multiple
// processes sharing a workspace observe the same invalidations.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rybkr/logarc/internal/errs"
)

// Config controls cache sizing, expiry, and the optional L2 tier, matching
// the cache.* configuration keys.
type Config struct {
	MaxCapacity          int           // L1 entry count ceiling
	TTL                  time.Duration // absolute entry lifetime
	TTI                  time.Duration // idle (time-to-idle) lifetime since last access
	EnableL2             bool
	L2URL                string
	CompressionThreshold int  // entries at or above this byte size are compressed before L2 write
	EnableCompression    bool
}

// DefaultConfig matches the documented cache defaults.
func DefaultConfig() Config {
	return Config{
		MaxCapacity:          500,
		TTL:                  10 * time.Minute,
		TTI:                  2 * time.Minute,
		EnableL2:             false,
		CompressionThreshold: 64 * 1024,
		EnableCompression:    true,
	}
}

// HotKey is one entry in the cache's hot-key set: a fingerprint ranked by
// how often it has been hit, for the tuner's warming/eviction decisions.
type HotKey struct {
	Fingerprint string
	Workspace   string
	Hits        int64
}

// Stats summarizes cache activity for the tuner to observe: raw L1/L2
// counters plus the derived monitoring figures (hit rates, eviction rate,
// average latencies, hot-key set, approximate resident size).
type Stats struct {
	L1Hits    int64
	L1Misses  int64
	L2Hits    int64
	L2Misses  int64
	Evictions int64
	Size      int

	L1HitRate          float64
	L2HitRate          float64
	EvictionsPerMinute float64
	AvgAccessTime      time.Duration
	AvgLoadTime        time.Duration
	HotKeys            []HotKey
	ApproxMemoryBytes  int64
}

// Cache is the two-tier result cache. Every key is a fingerprint computed
// by Fingerprint from a query, its filters, and a workspace.
type Cache struct {
	cfg    Config
	logger *slog.Logger

	l1 *l1Store
	l2 *l2Store // nil when L2 is disabled

	sf singleflight.Group

	accessCount   int64 // atomic
	accessTotalNS int64 // atomic
	loadCount     int64 // atomic
	loadTotalNS   int64 // atomic
}

// New returns a Cache. If cfg.EnableL2 is set, l2 must be a connected
// *l2Store built by NewL2; pass nil to run L1-only.
func New(cfg Config, l2 *l2Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		cfg:    cfg,
		logger: logger,
		l1:     newL1Store(cfg.MaxCapacity, cfg.TTL, cfg.TTI),
		l2:     l2,
	}
}

// Get returns the cached value for fingerprint, checking L1 then L2.
// An L2 hit is promoted back into L1.
func (c *Cache) Get(ctx context.Context, fingerprint, workspace string) ([]byte, bool) {
	start := time.Now()
	defer func() { c.recordAccess(time.Since(start)) }()

	if v, ok := c.l1.get(fingerprint); ok {
		return v, true
	}
	if c.l2 == nil {
		return nil, false
	}
	v, ok, err := c.l2.get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("L2 cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.l1.put(fingerprint, workspace, v)
	return v, true
}

func (c *Cache) recordAccess(d time.Duration) {
	atomic.AddInt64(&c.accessCount, 1)
	atomic.AddInt64(&c.accessTotalNS, d.Nanoseconds())
}

func (c *Cache) recordLoad(d time.Duration) {
	atomic.AddInt64(&c.loadCount, 1)
	atomic.AddInt64(&c.loadTotalNS, d.Nanoseconds())
}

// Put stores value under fingerprint in L1 and, if enabled, L2 (compressed
// at or above cfg.CompressionThreshold).
func (c *Cache) Put(ctx context.Context, fingerprint, workspace string, value []byte) {
	c.l1.put(fingerprint, workspace, value)
	if c.l2 == nil {
		return
	}
	if err := c.l2.put(ctx, fingerprint, value, c.cfg); err != nil {
		c.logger.Warn("L2 cache write failed", "err", err)
	}
}

// GetOrLoad returns the cached value for fingerprint, calling load and
// storing its result on a miss. Concurrent callers for the same
// fingerprint collapse into a single load via singleflight.
func (c *Cache) GetOrLoad(ctx context.Context, fingerprint, workspace string, load func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(ctx, fingerprint, workspace); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(fingerprint, func() (any, error) {
		if v, ok := c.Get(ctx, fingerprint, workspace); ok {
			return v, nil
		}
		loadStart := time.Now()
		result, err := load()
		c.recordLoad(time.Since(loadStart))
		if err != nil {
			return nil, err
		}
		c.Put(ctx, fingerprint, workspace, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops fingerprint from L1 and publishes an invalidation to L2
// subscribers, per spec's ordering rule: the local write (removal) happens
// before the publish.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	c.l1.remove(fingerprint)
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.invalidate(ctx, fingerprint); err != nil {
		return errs.Wrap(errs.IoError, "publish cache invalidation", err).WithPath(fingerprint)
	}
	return nil
}

// InvalidateWorkspace drops every L1 entry tagged with workspace and
// publishes a workspace-wide invalidation to L2 subscribers.
func (c *Cache) InvalidateWorkspace(ctx context.Context, workspace string) error {
	c.l1.removeWorkspace(workspace)
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.invalidateWorkspace(ctx, workspace); err != nil {
		return errs.Wrap(errs.IoError, "publish workspace cache invalidation", err).WithPath(workspace)
	}
	return nil
}

// Stats returns a snapshot of cache activity across both tiers: raw
// counters plus the derived hit rates, eviction rate, average access/load
// time, hot-key set, and approximate resident memory the tuner needs.
func (c *Cache) Stats() Stats {
	st := c.l1.stats()

	if c.l2 != nil {
		st.L2Hits, st.L2Misses = c.l2.counts()
		if total := st.L2Hits + st.L2Misses; total > 0 {
			st.L2HitRate = float64(st.L2Hits) / float64(total)
		}
	}
	if total := st.L1Hits + st.L1Misses; total > 0 {
		st.L1HitRate = float64(st.L1Hits) / float64(total)
	}

	if n := atomic.LoadInt64(&c.accessCount); n > 0 {
		st.AvgAccessTime = time.Duration(atomic.LoadInt64(&c.accessTotalNS) / n)
	}
	if n := atomic.LoadInt64(&c.loadCount); n > 0 {
		st.AvgLoadTime = time.Duration(atomic.LoadInt64(&c.loadTotalNS) / n)
	}
	return st
}

// Resize changes L1's entry-count ceiling, evicting from the LRU tail
// immediately if newSize is below the current size. Used by the cache
// tuner to apply an IncreaseCacheSize/DecreaseCacheSize recommendation.
func (c *Cache) Resize(newSize int) {
	c.l1.resize(newSize)
}

// Subscribe starts listening for L2 invalidation events (published by
// other processes sharing this cache) and applies them to the local L1.
// It blocks until ctx is cancelled; run it in its own goroutine.
func (c *Cache) Subscribe(ctx context.Context) {
	if c.l2 == nil {
		return
	}
	c.l2.subscribe(ctx, c.l1, c.logger)
}

// Close releases the L2 connection, if any.
func (c *Cache) Close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.close()
}
