// Package extract walks an arbitrary, possibly multiply-nested archive
// tree without recursion, extracting every terminal file exactly once into
// the content-addressable store and recording its metadata. Descent uses
// an explicit LIFO work stack so stack depth never depends on input depth.
package extract

import (
	"bufio"
	"compress/gzip"
	"context"
	"database/sql"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rybkr/logarc/internal/cas"
	"github.com/rybkr/logarc/internal/errs"
	"github.com/rybkr/logarc/internal/metadata"
	"github.com/rybkr/logarc/internal/pathmgr"
	"github.com/rybkr/logarc/internal/security"
)

// headerPeekSize is how much of an entry's content is read to detect
// whether it is itself an archive, per spec's "bounded header read".
const headerPeekSize = 512

// Engine drives one workspace's extraction pipeline.
type Engine struct {
	cfg       Config
	store     *cas.Store
	idx       *metadata.Index
	paths     *pathmgr.Manager
	sec       *security.Detector
	workspace string
}

// New returns an Engine wired to the given workspace's CAS, metadata index,
// path manager, and security detector.
func New(cfg Config, store *cas.Store, idx *metadata.Index, paths *pathmgr.Manager, sec *security.Detector, workspace string) *Engine {
	return &Engine{cfg: cfg, store: store, idx: idx, paths: paths, sec: sec, workspace: workspace}
}

// archiveState is the mutable, mutex-guarded state shared by every entry
// of a single archive being walked, including the goroutines that store
// terminal files concurrently.
type archiveState struct {
	mu      sync.Mutex
	budget  security.Budget
	aborted bool
	stack   *[]workItem
	result  *Result
}

func (s *archiveState) warn(category, message, path string) {
	s.mu.Lock()
	s.result.warn(category, message, path)
	s.mu.Unlock()
}

func (s *archiveState) push(item workItem) {
	s.mu.Lock()
	*s.stack = append(*s.stack, item)
	s.mu.Unlock()
}

// recordAndCheckBudget folds size into the running per-archive budget and
// reports whether the archive should stop accepting further entries.
func (s *archiveState) recordAndCheckBudget(sec *security.Detector, archivePath string, size int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget.FileCount++
	s.budget.TotalBytes += size
	if err := sec.CheckBudget(archivePath, s.budget); err != nil {
		s.result.warn("QuotaExceeded", err.Error(), archivePath)
		s.aborted = true
	}
	return s.aborted
}

func (s *archiveState) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// ExtractDirectory walks root on disk, storing every regular file into the
// CAS, expanding archives (detected by magic bytes) depth-first via an
// explicit work stack, and recording file/archive metadata as it goes.
func (e *Engine) ExtractDirectory(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var stack []workItem

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			result.warn("IoError", err.Error(), p)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			result.warn("IoError", relErr.Error(), p)
			return nil
		}
		virtualPath := "/" + filepath.ToSlash(rel)

		item, terminal, pushErr := e.ingestRootEntry(ctx, p, virtualPath, result)
		if pushErr != nil {
			result.warn("IoError", pushErr.Error(), p)
			return nil
		}
		if !terminal {
			stack = append(stack, item)
		}
		return nil
	})
	if walkErr != nil {
		return nil, errs.Wrap(errs.IoError, "walk source directory", walkErr).WithPath(root)
	}

	e.run(ctx, &stack, result)

	result.Duration = time.Since(start)
	return result, nil
}

// ingestRootEntry stores a depth-0 filesystem file into the CAS and
// records its metadata. If it is itself an archive it returns a workItem
// to push onto the stack (terminal=false); otherwise it is fully handled
// as a terminal file (terminal=true).
func (e *Engine) ingestRootEntry(ctx context.Context, diskPath, virtualPath string, result *Result) (workItem, bool, error) {
	f, err := os.Open(diskPath)
	if err != nil {
		return workItem{}, true, err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReaderSize(f, headerPeekSize)
	header, _ := br.Peek(headerPeekSize)
	format := DetectFormat(header)

	hash, size, err := e.store.StoreStreaming(br)
	if err != nil {
		return workItem{}, true, err
	}

	if format == FormatUnknown {
		if err := e.recordFile(ctx, hash, virtualPath, path.Base(virtualPath), size, sql.NullInt64{}, 0, result); err != nil {
			return workItem{}, true, err
		}
		result.Stats.TotalFiles++
		result.Stats.TotalBytes += size
		return workItem{}, true, nil
	}

	archiveID, err := e.recordArchive(ctx, hash, virtualPath, size, sql.NullInt64{}, 0, result)
	if err != nil {
		return workItem{}, true, err
	}
	return workItem{hash: hash, size: size, format: format, virtualPath: virtualPath, depth: 0, archiveID: archiveID}, false, nil
}

// run drains the work stack depth-first. Each popped item is fully
// processed (including any new items its own entries push) before the
// next pop, so the first nested archive an item yields ends up popped
// last, matching spec's ordering rule.
func (e *Engine) run(ctx context.Context, stack *[]workItem, result *Result) {
	if ctx.Err() != nil {
		result.Cancelled = true
		return
	}
	for len(*stack) > 0 {
		select {
		case <-ctx.Done():
			result.Cancelled = true
			return
		default:
		}

		n := len(*stack)
		item := (*stack)[n-1]
		*stack = (*stack)[:n-1]

		if item.depth >= e.cfg.MaxDepth {
			result.warn("DepthLimitReached", "maximum extraction depth reached", item.virtualPath)
			result.Stats.DepthLimitSkips++
			continue
		}
		if item.depth+1 > result.Stats.MaxDepthReached {
			result.Stats.MaxDepthReached = item.depth + 1
		}

		if err := e.processItem(ctx, item, stack, result); err != nil {
			result.warn("CorruptedArchive", err.Error(), item.virtualPath)
		}
	}
}

// processItem opens the archive named by item and walks its entries,
// pushing any nested archives it discovers and recording files directly.
func (e *Engine) processItem(ctx context.Context, item workItem, stack *[]workItem, result *Result) error {
	st := &archiveState{stack: stack, result: result}

	switch item.format {
	case FormatZip:
		f, err := os.Open(e.store.Path(item.hash))
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w, err := newZipWalker(f, item.size)
		if err != nil {
			return err
		}
		return e.walkConcurrent(ctx, item, w, st)

	case FormatTar:
		rc, err := e.store.Open(item.hash)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		return e.walkSequential(ctx, item, newTarWalker(rc), st)

	case FormatRar:
		rc, err := e.store.Open(item.hash)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		w, err := newRarWalker(rc)
		if err != nil {
			return err
		}
		return e.walkSequential(ctx, item, w, st)

	case FormatGzip, FormatZstd:
		return e.processCompressed(ctx, item, st)

	default:
		result.warn("UnsupportedFormat", "entry treated as opaque file", item.virtualPath)
		return nil
	}
}

// processCompressed unwraps a single gzip or zstd layer. If the payload
// underneath is a tar stream its entries are walked as children of item;
// otherwise the decompressed payload is itself the real file content,
// recorded as a single child file with the compression suffix stripped.
func (e *Engine) processCompressed(ctx context.Context, item workItem, st *archiveState) error {
	rc, err := e.store.Open(item.hash)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var decompressed io.Reader
	switch item.format {
	case FormatZstd:
		zr, err := zstd.NewReader(rc)
		if err != nil {
			return err
		}
		defer zr.Close()
		decompressed = zr
	default:
		gr, err := gzip.NewReader(rc)
		if err != nil {
			return err
		}
		defer func() { _ = gr.Close() }()
		decompressed = gr
	}

	br := bufio.NewReaderSize(decompressed, headerPeekSize)
	header, _ := br.Peek(headerPeekSize)

	if DetectFormat(header) == FormatTar {
		return e.walkSequential(ctx, item, newTarWalker(br), st)
	}

	hash, size, err := e.store.StoreStreaming(br)
	if err != nil {
		return err
	}
	childPath := strings.TrimSuffix(item.virtualPath, path.Ext(item.virtualPath))
	if err := e.recordFile(ctx, hash, childPath, path.Base(childPath), size,
		sql.NullInt64{Int64: item.archiveID, Valid: true}, item.depth+1, st.result); err != nil {
		return err
	}
	st.result.Stats.TotalFiles++
	st.result.Stats.TotalBytes += size
	return nil
}

// walkSequential processes entries one at a time, required for tar and rar
// streams where each entry's reader is only valid until the next Next().
func (e *Engine) walkSequential(ctx context.Context, item workItem, w archiveWalker, st *archiveState) error {
	st.budget.Depth = item.depth + 1
	for {
		if ctx.Err() != nil {
			st.result.Cancelled = true
			return nil
		}
		entry, err := w.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.IsDir {
			continue
		}

		rc, openErr := entry.Open()
		if openErr != nil {
			st.warn("IoError", openErr.Error(), entry.Name)
			continue
		}
		e.ingestEntry(ctx, item, entry, rc, st)
		_ = rc.Close()

		if st.isAborted() {
			return nil
		}
	}
}

// walkConcurrent dispatches terminal-file entries to at most
// cfg.MaxParallelFiles concurrent workers; zip's random access means each
// entry's reader is independent of the others. Nested-archive discovery
// always runs inline on the calling goroutine so pushes onto the shared
// stack never race with each other.
func (e *Engine) walkConcurrent(ctx context.Context, item workItem, w archiveWalker, st *archiveState) error {
	st.budget.Depth = item.depth + 1
	sem := semaphore.NewWeighted(int64(maxInt(1, e.cfg.MaxParallelFiles)))
	g, gctx := errgroup.WithContext(ctx)

	for {
		if st.isAborted() || ctx.Err() != nil {
			break
		}
		entry, err := w.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = g.Wait()
			return err
		}
		if entry.IsDir {
			continue
		}

		rc, openErr := entry.Open()
		if openErr != nil {
			st.warn("IoError", openErr.Error(), entry.Name)
			continue
		}

		virtualPath := path.Join(item.virtualPath, entry.Name)
		br := bufio.NewReaderSize(rc, headerPeekSize)
		header, _ := br.Peek(headerPeekSize)
		format := DetectFormat(header)

		if format != FormatUnknown {
			e.ingestNested(ctx, item, entry, virtualPath, br, format, st)
			_ = rc.Close()
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			_ = rc.Close()
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			defer func() { _ = rc.Close() }()
			e.ingestTerminal(ctx, item, entry, virtualPath, br, st)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// ingestEntry applies security checks, stores the entry's content, and
// either records it as a terminal file or pushes a nested work item.
func (e *Engine) ingestEntry(ctx context.Context, item workItem, entry walkEntry, rc io.Reader, st *archiveState) {
	virtualPath := path.Join(item.virtualPath, entry.Name)
	br := bufio.NewReaderSize(rc, headerPeekSize)
	header, _ := br.Peek(headerPeekSize)
	format := DetectFormat(header)

	if format != FormatUnknown {
		e.ingestNested(ctx, item, entry, virtualPath, br, format, st)
		return
	}
	e.ingestTerminal(ctx, item, entry, virtualPath, br, st)
}

func (e *Engine) checkSecurity(item workItem, entry walkEntry, virtualPath string, st *archiveState) bool {
	if err := e.sec.CheckPath(item.virtualPath, virtualPath); err != nil {
		st.warn("PathTraversalAttempt", err.Error(), virtualPath)
		return false
	}
	if err := e.sec.CheckExtension(item.virtualPath, entry.Name); err != nil {
		st.warn("ForbiddenExtension", err.Error(), virtualPath)
		return false
	}
	if entry.CompressedSize >= 0 {
		if err := e.sec.CheckCompressionRatio(item.virtualPath, entry.CompressedSize, entry.UncompressedSize); err != nil {
			st.warn("ZipBombDetected", err.Error(), virtualPath)
			return false
		}
	}
	if entry.UncompressedSize > e.cfg.MaxFileSize {
		st.warn("QuotaExceeded", "entry exceeds max file size", virtualPath)
		return false
	}
	return true
}

func (e *Engine) ingestNested(ctx context.Context, item workItem, entry walkEntry, virtualPath string, r io.Reader, format Format, st *archiveState) {
	if !e.checkSecurity(item, entry, virtualPath, st) {
		return
	}
	resolved, err := e.resolvePath(ctx, virtualPath, st)
	if err != nil {
		return
	}

	hash, size, err := e.store.StoreStreaming(r)
	if err != nil {
		st.warn("IoError", err.Error(), virtualPath)
		return
	}

	archiveID, err := e.recordArchive(ctx, hash, resolved, size, sql.NullInt64{Int64: item.archiveID, Valid: true}, item.depth+1, st.result)
	if err != nil {
		st.warn("Validation", err.Error(), virtualPath)
		return
	}

	st.push(workItem{hash: hash, size: size, format: format, virtualPath: resolved, depth: item.depth + 1, archiveID: archiveID})
	st.recordAndCheckBudget(e.sec, item.virtualPath, size)
}

func (e *Engine) ingestTerminal(ctx context.Context, item workItem, entry walkEntry, virtualPath string, r io.Reader, st *archiveState) {
	if !e.checkSecurity(item, entry, virtualPath, st) {
		return
	}
	resolved, err := e.resolvePath(ctx, virtualPath, st)
	if err != nil {
		return
	}

	hash, size, err := e.store.StoreStreaming(r)
	if err != nil {
		st.warn("IoError", err.Error(), virtualPath)
		return
	}

	if err := e.recordFile(ctx, hash, resolved, path.Base(entry.Name), size,
		sql.NullInt64{Int64: item.archiveID, Valid: true}, item.depth+1, st.result); err != nil {
		st.warn("Validation", err.Error(), virtualPath)
		return
	}

	st.mu.Lock()
	st.result.Stats.TotalFiles++
	st.result.Stats.TotalBytes += size
	st.mu.Unlock()

	st.recordAndCheckBudget(e.sec, item.virtualPath, size)
}

func (e *Engine) resolvePath(ctx context.Context, virtualPath string, st *archiveState) (string, error) {
	resolved, err := e.paths.Resolve(ctx, e.workspace, virtualPath)
	if err != nil {
		st.warn("IoError", err.Error(), virtualPath)
		return "", err
	}
	if resolved != virtualPath {
		st.mu.Lock()
		st.result.Stats.Shortenings++
		st.mu.Unlock()
	}
	return resolved, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
