package search

import (
	"context"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func indexAndCommit(t *testing.T, e *Engine, docs ...Document) {
	t.Helper()
	ctx := context.Background()
	for _, d := range docs {
		if err := e.IndexDocument(ctx, d); err != nil {
			t.Fatalf("IndexDocument(%s): %v", d.VirtualPath, err)
		}
	}
	if err := e.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestSearch_SingleTerm(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e,
		Document{Workspace: "ws1", VirtualPath: "a.log", Content: "connection refused by upstream"},
		Document{Workspace: "ws1", VirtualPath: "b.log", Content: "request completed successfully"},
	)

	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "refused"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].VirtualPath != "a.log" {
		t.Fatalf("Hits = %+v, want single hit on a.log", res.Hits)
	}
}

func TestSearch_WorkspaceIsolation(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e,
		Document{Workspace: "ws1", VirtualPath: "a.log", Content: "timeout waiting for lock"},
		Document{Workspace: "ws2", VirtualPath: "a.log", Content: "timeout waiting for lock"},
	)

	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "timeout"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("Hits = %d, want 1 (ws2's matching doc must not leak in)", len(res.Hits))
	}
}

func TestSearch_BooleanAnd(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e,
		Document{Workspace: "ws1", VirtualPath: "a.log", Content: "disk full error"},
		Document{Workspace: "ws1", VirtualPath: "b.log", Content: "disk ok"},
		Document{Workspace: "ws1", VirtualPath: "c.log", Content: "error elsewhere"},
	)

	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "disk AND error"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].VirtualPath != "a.log" {
		t.Fatalf("Hits = %+v, want single hit on a.log", res.Hits)
	}
}

func TestSearch_LevelFilter(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e,
		Document{Workspace: "ws1", VirtualPath: "a.log", Content: "node restarted", Level: "error"},
		Document{Workspace: "ws1", VirtualPath: "b.log", Content: "node restarted", Level: "info"},
	)

	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "restarted", Level: "error"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].VirtualPath != "a.log" {
		t.Fatalf("Hits = %+v, want single hit on a.log (level=error)", res.Hits)
	}
}

func TestSearch_TimeRangeFilter(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	indexAndCommit(t, e,
		Document{Workspace: "ws1", VirtualPath: "old.log", Content: "startup sequence", Timestamp: base},
		Document{Workspace: "ws1", VirtualPath: "new.log", Content: "startup sequence", Timestamp: base.Add(3 * time.Hour)},
	)

	res, err := e.Search(context.Background(), Request{
		Workspace: "ws1",
		Query:     "startup",
		TimeRange: &TimeRange{Start: base, End: base.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].VirtualPath != "old.log" {
		t.Fatalf("Hits = %+v, want single hit on old.log", res.Hits)
	}
}

func TestSearch_RegexQuery(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e,
		Document{Workspace: "ws1", VirtualPath: "a.log", Content: "error code 504 received"},
		Document{Workspace: "ws1", VirtualPath: "b.log", Content: "all good here"},
	)

	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "5[0-9]{2}", Regex: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].VirtualPath != "a.log" {
		t.Fatalf("Hits = %+v, want single hit on a.log", res.Hits)
	}
}

func TestSearch_Highlight(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e, Document{Workspace: "ws1", VirtualPath: "a.log", Content: "panic: nil pointer dereference"})

	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "panic", Highlight: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || len(res.Hits[0].Highlights) == 0 {
		t.Fatalf("expected a highlight fragment, got %+v", res.Hits)
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: ""}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearch_DeadlineExceededReturnsTimeoutResult(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e, Document{Workspace: "ws1", VirtualPath: "a.log", Content: "some content"})

	past := time.Now().Add(-time.Millisecond)
	res, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "some", Deadline: past})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.WasTimeout {
		t.Fatal("expected WasTimeout=true for an already-elapsed deadline")
	}
}

func TestAutocomplete_PrefixSuggestions(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e, Document{Workspace: "ws1", VirtualPath: "a.log", Content: "connection connection connection timeout connect"})

	suggestions := e.Suggestions("conn")
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion for prefix \"conn\"")
	}
	if suggestions[0].Text != "connection" {
		t.Errorf("top suggestion = %q, want \"connection\" (highest frequency)", suggestions[0].Text)
	}
}

func TestAutocomplete_UnknownPrefixReturnsEmpty(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e, Document{Workspace: "ws1", VirtualPath: "a.log", Content: "hello world"})

	if suggestions := e.Suggestions("zzz"); len(suggestions) != 0 {
		t.Errorf("suggestions = %+v, want none", suggestions)
	}
}

func TestStats_TracksSearchesAndTimeouts(t *testing.T) {
	e := newTestEngine(t)
	indexAndCommit(t, e, Document{Workspace: "ws1", VirtualPath: "a.log", Content: "hello"})

	if _, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "hello"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	past := time.Now().Add(-time.Millisecond)
	if _, err := e.Search(context.Background(), Request{Workspace: "ws1", Query: "hello", Deadline: past}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	stats := e.Stats()
	if stats.TotalSearches != 2 {
		t.Errorf("TotalSearches = %d, want 2", stats.TotalSearches)
	}
	if stats.TimeoutCount != 1 {
		t.Errorf("TimeoutCount = %d, want 1", stats.TimeoutCount)
	}
}
