package tuning

import (
	"sort"
	"strings"
)

// TermSelectivity is one term's observed document frequency, used to rank
// terms from most to least selective. Lower DocFrequency means the term
// narrows the candidate set faster when evaluated first.
type TermSelectivity struct {
	Term         string
	DocFrequency int64
}

// QueryOptimization is the per-query result of ReorderTerms and
// MinimizeWildcards, plus an optional index hint pulled from the
// optimizer's IndexOptimizer for queries that are both hot and slow.
type QueryOptimization struct {
	OriginalTerms      []string
	ReorderedTerms     []string
	MinimizedTerms     []string
	IndexRecommendation *SpecializedIndexRecommendation
}

// QueryOptimizer suggests, for a single query, a more selective term
// evaluation order and a reduced wildcard expansion, and attaches an
// index recommendation when the index optimizer has observed the query
// as both hot and slow. Unlike IndexOptimizer, which classifies patterns
// after the fact from accumulated stats, QueryOptimizer acts on one query
// at plan time.
type QueryOptimizer struct {
	indexOptimizer *IndexOptimizer // optional; nil disables the index-hint step
}

// NewQueryOptimizer returns a QueryOptimizer. indexOptimizer may be nil to
// run term reordering and wildcard minimization without index hints.
func NewQueryOptimizer(indexOptimizer *IndexOptimizer) *QueryOptimizer {
	return &QueryOptimizer{indexOptimizer: indexOptimizer}
}

// Optimize reorders terms by selectivity (rarest documents first),
// minimizes redundant wildcard expansions, and — if the index optimizer
// has seen query at least OptimizationThreshold times with an average
// duration of at least 50 ms — attaches a specialized index recommendation.
func (q *QueryOptimizer) Optimize(query string, terms []string, selectivity map[string]int64) QueryOptimization {
	result := QueryOptimization{
		OriginalTerms:  terms,
		ReorderedTerms: ReorderTerms(terms, selectivity),
		MinimizedTerms: MinimizeWildcards(terms),
	}
	if q.indexOptimizer != nil {
		if rec, ok := q.indexOptimizer.RecommendationFor(query); ok {
			result.IndexRecommendation = &rec
		}
	}
	return result
}

// ReorderTerms sorts terms so the most selective (lowest document
// frequency) are evaluated first, letting a conjunctive scan narrow the
// candidate set as early as possible. Terms absent from selectivity are
// treated as maximally unselective and sorted last. The sort is stable:
// terms with equal or unknown frequency keep their original relative
// order.
func ReorderTerms(terms []string, selectivity map[string]int64) []string {
	ordered := append([]string(nil), terms...)
	freq := func(t string) int64 {
		df, ok := selectivity[t]
		if !ok {
			return int64(^uint64(0) >> 1) // unknown terms sort last
		}
		return df
	}
	sort.SliceStable(ordered, func(i, j int) bool { return freq(ordered[i]) < freq(ordered[j]) })
	return ordered
}

// MinimizeWildcards collapses each term's redundant wildcard runs (e.g.
// "a**b" -> "a*b", a trailing "***" -> "*") so the search engine expands
// one wildcard span instead of several equivalent, more expensive ones.
func MinimizeWildcards(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = collapseWildcardRuns(t)
	}
	return out
}

func collapseWildcardRuns(term string) string {
	if !strings.Contains(term, "*") {
		return term
	}
	var b strings.Builder
	b.Grow(len(term))
	prevStar := false
	for _, r := range term {
		if r == '*' {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
