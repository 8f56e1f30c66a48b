package search

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rybkr/logarc/internal/errs"
)

// Engine is the process-global search index: a bleve full-text index for
// scoring and highlighting, plus the roaring-bitmap postings, time
// partitions, regex cache, and autocomplete trie layered on top for the
// primitives bleve doesn't expose directly at this layer.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	index bleve.Index

	mu        sync.Mutex
	batch     *bleve.Batch
	batchSize int

	docIDs   *docRegistry
	postings *postingIndex
	times    *timePartitionedIndex
	regexes  *lru.Cache[string, *cachedRegex]
	auto     *autocompleteTrie

	stats engineStats
}

// New builds an Engine with an in-memory bleve index. The index is
// process-lifetime; workspaces are logical partitions within it, not
// separate indexes, per the shared global-reader policy.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create search index", err)
	}
	regexes, err := lru.New[string, *cachedRegex](maxInt(cfg.RegexCacheSize, 1))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create regex cache", err)
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		index:    idx,
		batch:    idx.NewBatch(),
		docIDs:   newDocRegistry(),
		postings: newPostingIndex(),
		times:    newTimePartitionedIndex(cfg.PartitionSize),
		regexes:  regexes,
		auto:     newAutocompleteTrie(cfg.MaxSuggestions),
	}, nil
}

func buildMapping() mapping.IndexMapping {
	content := bleve.NewTextFieldMapping()
	content.Store = true
	content.IncludeTermVectors = true

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("workspace", keyword)
	doc.AddFieldMappingsAt("virtual_path", keyword)
	doc.AddFieldMappingsAt("original_name", keyword)
	doc.AddFieldMappingsAt("level", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// docKey scopes a document id to its workspace, since the index is shared.
func docKey(workspace, virtualPath string) string {
	return workspace + "\x00" + virtualPath
}

// IndexDocument stages a document into the current batch. Call Commit to
// make it visible to readers.
func (e *Engine) IndexDocument(ctx context.Context, doc Document) error {
	key := docKey(doc.Workspace, doc.VirtualPath)

	data := map[string]any{
		"workspace":     doc.Workspace,
		"virtual_path":  doc.VirtualPath,
		"original_name": doc.OriginalName,
		"content":       doc.Content,
		"level":         doc.Level,
		"timestamp":     doc.Timestamp,
	}

	e.mu.Lock()
	if err := e.batch.Index(key, data); err != nil {
		e.mu.Unlock()
		return errs.Wrap(errs.Internal, "stage document for indexing", err)
	}
	e.batchSize += len(doc.Content)
	flush := e.batchSize >= e.cfg.WriterHeapBytes
	e.mu.Unlock()

	id := e.docIDs.idFor(key)
	e.postings.index(id, doc.Content)
	e.postings.indexLevel(id, doc.Level)
	e.postings.indexPath(id, doc.VirtualPath)
	e.times.index(id, doc.Timestamp)
	for _, word := range tokenize(doc.Content) {
		e.auto.addWord(word)
	}

	if flush {
		return e.Commit(ctx)
	}
	return nil
}

// Commit publishes all staged documents to readers, who observe the new
// document set on their next query (bleve auto-reloads on batch execute).
func (e *Engine) Commit(ctx context.Context) error {
	e.mu.Lock()
	batch := e.batch
	e.batch = e.index.NewBatch()
	e.batchSize = 0
	e.mu.Unlock()

	if batch.Size() == 0 {
		return nil
	}
	if err := e.index.Batch(batch); err != nil {
		return errs.Wrap(errs.Internal, "commit search batch", err)
	}
	return nil
}

func (e *Engine) Close() error {
	if err := e.index.Close(); err != nil {
		return errs.Wrap(errs.Internal, "close search index", err)
	}
	return nil
}

// Stats returns a snapshot of cumulative query statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		TotalSearches:    atomic.LoadInt64(&e.stats.totalSearches),
		TotalQueryTimeMS: atomic.LoadInt64(&e.stats.totalQueryTimeMS),
		TimeoutCount:     atomic.LoadInt64(&e.stats.timeoutCount),
	}
}

// Stats is a point-in-time read of the engine's cumulative counters.
type Stats struct {
	TotalSearches    int64
	TotalQueryTimeMS int64
	TimeoutCount     int64
}

type engineStats struct {
	totalSearches    int64
	totalQueryTimeMS int64
	timeoutCount     int64
}

func (s *engineStats) record(d time.Duration, timedOut bool) {
	atomic.AddInt64(&s.totalSearches, 1)
	atomic.AddInt64(&s.totalQueryTimeMS, d.Milliseconds())
	if timedOut {
		atomic.AddInt64(&s.timeoutCount, 1)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
