package search

import (
	"strings"
	"sync"
	"unicode"

	"github.com/RoaringBitmap/roaring"
)

// docRegistry assigns a stable uint32 id to each workspace-scoped document
// key, the form the roaring bitmap postings need.
type docRegistry struct {
	mu      sync.Mutex
	byKey   map[string]uint32
	byID    map[uint32]string
	nextID  uint32
}

func newDocRegistry() *docRegistry {
	return &docRegistry{byKey: make(map[string]uint32), byID: make(map[uint32]string)}
}

func (r *docRegistry) idFor(key string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := r.nextID
	r.nextID++
	r.byKey[key] = id
	r.byID[id] = key
	return id
}

func (r *docRegistry) keyFor(id uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byID[id]
	return key, ok
}

// postingIndex holds the per-term, per-level, and per-path bitmaps used
// for the multi-keyword intersection fast path and the level/path filters.
// It is maintained alongside bleve rather than read out of bleve's own
// on-disk roaring segments, since the intersection algorithm needs direct
// access to per-term cardinality for the "sort ascending, intersect in
// order, short-circuit" strategy.
type postingIndex struct {
	mu    sync.RWMutex
	terms map[string]*roaring.Bitmap
	level map[string]*roaring.Bitmap
	paths map[string]*roaring.Bitmap // keyed by directory of the virtual path
}

func newPostingIndex() *postingIndex {
	return &postingIndex{
		terms: make(map[string]*roaring.Bitmap),
		level: make(map[string]*roaring.Bitmap),
		paths: make(map[string]*roaring.Bitmap),
	}
}

func (p *postingIndex) index(id uint32, content string) {
	terms := tokenize(content)
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		bm, ok := p.terms[t]
		if !ok {
			bm = roaring.New()
			p.terms[t] = bm
		}
		bm.Add(id)
	}
}

func (p *postingIndex) indexLevel(id uint32, level string) {
	if level == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bm, ok := p.level[level]
	if !ok {
		bm = roaring.New()
		p.level[level] = bm
	}
	bm.Add(id)
}

func (p *postingIndex) indexPath(id uint32, virtualPath string) {
	dir := dirOf(virtualPath)
	p.mu.Lock()
	defer p.mu.Unlock()
	bm, ok := p.paths[dir]
	if !ok {
		bm = roaring.New()
		p.paths[dir] = bm
	}
	bm.Add(id)
}

// termBitmap returns the posting list for a single term, or an empty
// bitmap if the term is unseen.
func (p *postingIndex) termBitmap(term string) *roaring.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if bm, ok := p.terms[strings.ToLower(term)]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// levelBitmap returns the posting list for a level value.
func (p *postingIndex) levelBitmap(level string) *roaring.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if bm, ok := p.level[level]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// pathBitmap ORs together every directory bucket whose path has the given
// prefix, since the filter is prefix-based rather than exact-match.
func (p *postingIndex) pathBitmap(prefix string) *roaring.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := roaring.New()
	for dir, bm := range p.paths {
		if strings.HasPrefix(dir, prefix) {
			out.Or(bm)
		}
	}
	return out
}

// intersectAscending implements the multi-keyword optimization: fetch
// each term's bitmap, sort by cardinality ascending, intersect in that
// order, short-circuiting once the running result falls under limit.
func (p *postingIndex) intersectAscending(terms []string, limit int) *roaring.Bitmap {
	if len(terms) == 0 {
		return roaring.New()
	}
	bitmaps := make([]*roaring.Bitmap, len(terms))
	for i, t := range terms {
		bitmaps[i] = p.termBitmap(t)
	}
	sortBitmapsByCardinality(bitmaps)

	result := bitmaps[0]
	for _, bm := range bitmaps[1:] {
		result = roaring.And(result, bm)
		if limit > 0 && result.GetCardinality() <= uint64(limit) {
			break
		}
	}
	return result
}

func sortBitmapsByCardinality(bitmaps []*roaring.Bitmap) {
	for i := 1; i < len(bitmaps); i++ {
		for j := i; j > 0 && bitmaps[j].GetCardinality() < bitmaps[j-1].GetCardinality(); j-- {
			bitmaps[j], bitmaps[j-1] = bitmaps[j-1], bitmaps[j]
		}
	}
}

func dirOf(virtualPath string) string {
	i := strings.LastIndexByte(virtualPath, '/')
	if i < 0 {
		return ""
	}
	return virtualPath[:i]
}

// tokenize splits content into lowercase word terms, the same boundary
// rule the autocomplete trie and term postings both rely on.
func tokenize(content string) []string {
	return strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
