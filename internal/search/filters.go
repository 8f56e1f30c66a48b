package search

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// resolveFilters ANDs together whichever bitmap filters the request set
// (level, time range, file-path prefix) and, for a plain multi-term AND
// query, the multi-keyword term-intersection fast path. Returns nil when
// no filter narrows the candidate set, meaning the primary query alone
// determines results.
func (e *Engine) resolveFilters(req Request, plan *Plan, limit int) *roaring.Bitmap {
	var candidate *roaring.Bitmap

	and := func(bm *roaring.Bitmap) {
		if candidate == nil {
			candidate = bm
			return
		}
		candidate = roaring.And(candidate, bm)
	}

	if req.Level != "" {
		and(e.postings.levelBitmap(req.Level))
	}
	if req.PathPrefix != "" {
		and(e.postings.pathBitmap(req.PathPrefix))
	}
	if req.TimeRange != nil {
		and(e.times.rangeBitmap(*req.TimeRange))
	}
	if plan != nil && plan.Strategy == And && len(plan.Terms) > 1 && !req.Regex && !req.Substring {
		and(e.postings.intersectAscending(plan.Terms, limit))
	}

	return candidate
}

// docIDQuery turns a roaring bitmap of internal doc ids into a bleve
// query restricting the result set to exactly those documents.
func docIDQuery(e *Engine, candidates *roaring.Bitmap) query.Query {
	ids := make([]string, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		if key, ok := e.docIDs.keyFor(id); ok {
			ids = append(ids, key)
		}
	}
	return bleve.NewDocIDQuery(ids)
}
