// Package workspace composes the content-addressable store, metadata index,
// path manager, security detector, and extraction engine into a single
// per-workspace lifecycle: create, load, refresh, delete, status, metrics,
// and validation. Grounded on the teacher's internal/repomanager, which
// manages the same shape of problem (clone/fetch/evict a remote resource
// into local lifecycle state) one layer up from a single Git repository.
package workspace

import (
	"context"
	"time"

	"github.com/rybkr/logarc/internal/search"
)

// Service is the public command surface a CLI or server binary drives,
// without owning the Manager's internals — mirroring how the teacher's
// internal/server.Server wraps repomanager.RepoManager through its public
// methods alone. *Manager satisfies this interface.
type Service interface {
	Create(ctx context.Context, name, sourcePath string) (string, error)
	Load(ctx context.Context, id string) (Info, error)
	Refresh(ctx context.Context, id, sourcePath string) error
	Delete(ctx context.Context, id string) error
	Status(id string) (Info, Progress, error)
	List() []Info
	SubscribeProgress(id string) (<-chan Progress, func())
	Metrics(ctx context.Context, id string) (Metrics, error)
	Validate(ctx context.Context, id string) (ValidationReport, error)
	Watch(id string) error
	StopWatch(id string)
	CancelTask(id string) error
	Search(ctx context.Context, id string, req search.Request) (*search.Result, error)
}

// State is the lifecycle state of a managed workspace.
type State int

const (
	StatePending State = iota
	StateIngesting
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateIngesting:
		return "ingesting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds settings for the Manager.
type Config struct {
	DataDir              string
	MaxConcurrentIngests int
	MaxWorkspaces        int
	IngestTimeout        time.Duration
	CleanupRetryDelay    time.Duration
	CleanupMaxAttempts   int
	TuningInterval       time.Duration // cadence of the auto-tuning observe/adjust pass; 0 means one minute
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "/data/workspaces"
	}
	if c.MaxConcurrentIngests <= 0 {
		c.MaxConcurrentIngests = 3
	}
	if c.MaxWorkspaces <= 0 {
		c.MaxWorkspaces = 100
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = 30 * time.Minute
	}
	if c.CleanupRetryDelay <= 0 {
		c.CleanupRetryDelay = 5 * time.Second
	}
	if c.CleanupMaxAttempts <= 0 {
		c.CleanupMaxAttempts = 5
	}
	if c.TuningInterval <= 0 {
		c.TuningInterval = time.Minute
	}
}

// Progress tracks the current phase of an in-flight ingest.
type Progress struct {
	Phase   string
	Done    bool
	State   string // terminal state: "ready" or "error"
	Error   string
}

// Info is a read-only snapshot of a managed workspace, used by List/Status.
type Info struct {
	ID         string
	Name       string
	SourcePath string
	State      State
	Error      string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Metrics is the Workspace Metrics Collector's report for one workspace.
type Metrics struct {
	TotalFiles         int64
	TotalArchives      int64
	LogicalSize        int64 // sum of declared file sizes, dedup not applied
	ActualStorageSize  int64 // CAS on-disk bytes
	SpaceSaved         int64
	DeduplicationRatio float64 // in [0,1]
	StorageEfficiency  float64
	MaxNestingDepth    int
	AvgNestingDepth    float64
	UniqueHashes       int64
	DepthDistribution  []DepthEntry
}

// DepthEntry is the file count and total logical size of every file found
// at one nesting depth.
type DepthEntry struct {
	Depth     int
	FileCount int64
	TotalSize int64
}

// ValidationReport is the Index Validator's report for one workspace.
type ValidationReport struct {
	Total          int
	Valid          int
	Invalid        int
	InvalidDetails []InvalidFile
	Warnings       []string
}

// InvalidFile describes one file row that failed validation.
type InvalidFile struct {
	VirtualPath string
	SHA256Hash  string
	Reason      string
}
