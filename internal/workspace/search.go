package workspace

import (
	"context"
	"time"

	"github.com/rybkr/logarc/internal/errs"
	"github.com/rybkr/logarc/internal/search"
)

// Search runs req against the shared search engine, scoped to workspace id,
// and — if an index optimizer is configured — records the query's observed
// timing and result count for its hot/slow-query classification.
func (m *Manager) Search(ctx context.Context, id string, req search.Request) (*search.Result, error) {
	if m.deps.Search == nil {
		return nil, errs.New(errs.Validation, "search is not configured")
	}
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	req.Workspace = id

	start := time.Now()
	result, err := m.deps.Search.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	if m.deps.IndexOptimizer != nil {
		m.deps.IndexOptimizer.RecordQuery(req.Query, time.Since(start), result.Total)
	}
	return result, nil
}
