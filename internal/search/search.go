package search

import (
	"context"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/rybkr/logarc/internal/errs"
)

// Search executes req against the shared index: parse, resolve bitmap
// filters to a candidate set, execute the primary scorer restricted to
// that candidate set, then optionally highlight. Every step respects the
// request's deadline; breaching it returns a result with WasTimeout set
// rather than an error.
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = start.Add(time.Duration(e.cfg.TimeoutMS) * time.Millisecond)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.MaxResults
	}

	result, err := e.search(ctx, req, limit)
	elapsed := time.Since(start)

	timedOut := ctx.Err() == context.DeadlineExceeded
	e.stats.record(elapsed, timedOut)

	if timedOut {
		if result == nil {
			result = &Result{}
		}
		result.WasTimeout = true
		result.Elapsed = elapsed
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.Elapsed = elapsed
	return result, nil
}

func (e *Engine) search(ctx context.Context, req Request, limit int) (*Result, error) {
	if req.Workspace == "" {
		return nil, errs.New(errs.Validation, "search requires a workspace")
	}

	var plan *Plan
	var err error
	if !req.Regex && !req.Substring {
		plan, err = parseBoolean(req.Query)
		if err != nil {
			return nil, err
		}
	} else if req.Query == "" {
		return nil, errs.New(errs.Validation, "query must not be empty")
	}

	primary, err := e.buildPrimaryQuery(req, plan)
	if err != nil {
		return nil, err
	}

	conjuncts := []query.Query{
		workspaceTermQuery(req.Workspace),
		primary,
	}

	if candidates := e.resolveFilters(req, plan, limit); candidates != nil {
		conjuncts = append(conjuncts, docIDQuery(e, candidates))
	}
	if req.TimeRange != nil {
		startInclusive, endInclusive := true, false
		tq := bleve.NewDateRangeInclusiveQuery(req.TimeRange.Start, req.TimeRange.End, &startInclusive, &endInclusive)
		tq.SetField("timestamp")
		conjuncts = append(conjuncts, tq)
	}

	finalQuery := bleve.NewConjunctionQuery(conjuncts...)

	sreq := bleve.NewSearchRequest(finalQuery)
	sreq.Size = limit
	sreq.Fields = []string{"content", "virtual_path", "original_name"}

	sres, err := e.index.SearchInContext(ctx, sreq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{}, nil
		}
		return nil, errs.Wrap(errs.Internal, "execute search", err)
	}

	hits := make([]Hit, 0, len(sres.Hits))
	for _, h := range sres.Hits {
		hit := Hit{Score: h.Score}
		if v, ok := h.Fields["virtual_path"].(string); ok {
			hit.VirtualPath = v
		}
		if v, ok := h.Fields["original_name"].(string); ok {
			hit.OriginalName = v
		}
		if req.Highlight {
			if content, ok := h.Fields["content"].(string); ok {
				hit.Highlights = highlightTerms(content, highlightTermsFor(req, plan))
			}
		}
		hits = append(hits, hit)
	}

	return &Result{Hits: hits, Total: int(sres.Total)}, nil
}

func highlightTermsFor(req Request, plan *Plan) []string {
	if plan != nil {
		return plan.Terms
	}
	return []string{req.Query}
}

func workspaceTermQuery(workspace string) query.Query {
	q := bleve.NewTermQuery(workspace)
	q.SetField("workspace")
	return q
}

func (e *Engine) buildPrimaryQuery(req Request, plan *Plan) (query.Query, error) {
	switch {
	case req.Regex:
		re, err := e.compileRegex(req.Query, req.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		q := bleve.NewRegexpQuery(re.String())
		q.SetField("content")
		return q, nil
	case req.Substring:
		needle := req.Query
		q := bleve.NewWildcardQuery("*" + needle + "*")
		q.SetField("content")
		return q, nil
	default:
		return booleanQuery(plan), nil
	}
}

func booleanQuery(plan *Plan) query.Query {
	terms := make([]query.Query, 0, len(plan.Terms))
	for _, t := range plan.Terms {
		mq := bleve.NewMatchQuery(t)
		mq.SetField("content")
		terms = append(terms, mq)
	}

	switch plan.Strategy {
	case Or:
		bq := bleve.NewBooleanQuery()
		bq.AddShould(terms...)
		bq.SetMinShould(1)
		return bq
	case Not:
		bq := bleve.NewBooleanQuery()
		bq.AddMustNot(terms...)
		bq.AddMust(bleve.NewMatchAllQuery())
		return bq
	default:
		bq := bleve.NewBooleanQuery()
		bq.AddMust(terms...)
		return bq
	}
}
