// Package search implements the full-text, boolean, regex, and filtered
// search engine over a workspace's indexed log entries, plus the
// autocomplete prefix tree used for interactive query assistance.
//
// The engine is process-global and multi-reader/single-writer: every
// workspace commits documents into the same bleve index, scoped by a
// workspace field carried on every document and ANDed into every query,
// matching the shared-resource policy that reserves cross-workspace
// sharing for the search reader alone.
package search

import "time"

// Config controls indexing batch size, query timeouts, and the
// auxiliary structures (regex cache, autocomplete) built alongside the
// primary index.
type Config struct {
	WriterHeapBytes int           // bleve batch flush threshold, bytes
	TimeoutMS       int           // default per-query deadline
	MaxResults      int           // default result cap
	PartitionSize   time.Duration // time-partitioned bitmap bucket width
	RegexCacheSize  int           // compiled-pattern LRU capacity
	MaxSuggestions  int           // autocomplete result cap
}

// DefaultConfig matches the documented search.* configuration keys.
func DefaultConfig() Config {
	return Config{
		WriterHeapBytes: 64 << 20,
		TimeoutMS:       200,
		MaxResults:      100,
		PartitionSize:   time.Hour,
		RegexCacheSize:  256,
		MaxSuggestions:  10,
	}
}

// Document is one indexed unit: spec's open question (b) is frozen here
// to one document per file, with Content holding the file's full text.
type Document struct {
	Workspace    string
	VirtualPath  string
	OriginalName string
	Content      string
	Level        string // e.g. "error", "warn", "info"; empty if not applicable
	Timestamp    time.Time
}

// TimeRange is a half-open query interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Request is one public search call.
type Request struct {
	Workspace       string
	Query           string
	Regex           bool // compile Query as a regular expression
	CaseInsensitive bool
	Substring       bool // plain substring match instead of tokenized query
	Highlight       bool
	Level           string     // optional level-bitmap filter
	PathPrefix      string     // optional file-path-bitmap filter
	TimeRange       *TimeRange // optional time-partitioned filter
	Limit           int        // 0 uses Config.MaxResults
	Deadline        time.Time  // zero means Config.TimeoutMS from now
}

// Hit is one matched document.
type Hit struct {
	VirtualPath  string
	OriginalName string
	Score        float64
	Highlights   []string
}

// Result is the outcome of one search.
type Result struct {
	Hits       []Hit
	Total      int
	WasTimeout bool
	Elapsed    time.Duration
}
