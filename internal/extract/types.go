package extract

import "time"

// Config controls extraction budgets and concurrency, matching the
// extraction.* configuration keys.
type Config struct {
	MaxDepth         int   // nested archive depth ceiling
	MaxFileSize      int64 // per-file byte budget
	MaxTotalSize     int64 // per-archive cumulative byte budget
	MaxWorkspaceSize int64 // whole-workspace cumulative byte budget
	BufferSize       int   // streaming window, bytes
	DirBatchSize     int   // directory batch materialization (reserved for on-disk mirrors)
	MaxParallelFiles int   // per-archive file-extraction concurrency, [1,8]
}

// DefaultConfig matches the original engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:         10,
		MaxFileSize:      100 << 20,
		MaxTotalSize:     10 << 30,
		MaxWorkspaceSize: 100 << 30,
		BufferSize:       64 << 10,
		DirBatchSize:     10,
		MaxParallelFiles: 4,
	}
}

// Warning is a non-fatal event recorded during extraction: a rejected or
// skipped entry that did not abort its archive.
type Warning struct {
	Category string
	Message  string
	Path     string
}

// Stats summarizes one extraction run.
type Stats struct {
	MaxDepthReached int
	TotalFiles      int64
	TotalBytes      int64
	Shortenings     int64
	DepthLimitSkips int64
}

// Result is the outcome of an extraction run.
type Result struct {
	Hashes       []string
	VirtualPaths []string
	Warnings     []Warning
	Stats        Stats
	Duration     time.Duration
	Cancelled    bool
}

func (r *Result) warn(category, message, path string) {
	r.Warnings = append(r.Warnings, Warning{Category: category, Message: message, Path: path})
}

// workItem is one entry on the explicit LIFO work stack: an archive already
// committed to the CAS (its own File+Archive rows are recorded before it is
// pushed), waiting to be opened and walked for children.
type workItem struct {
	hash        string // CAS hash of the archive blob
	size        int64
	format      Format
	virtualPath string
	depth       int
	archiveID   int64 // this archive's own row id, used as parent_archive_id for its children
}
