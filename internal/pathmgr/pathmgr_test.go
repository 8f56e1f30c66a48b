package pathmgr

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rybkr/logarc/internal/metadata"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *metadata.Index) {
	t.Helper()
	idx, err := metadata.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return New(cfg, idx), idx
}

func TestResolve_SafePathUnchanged(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	got, err := m.Resolve(ctx, "ws1", "/var/log/app/error.log")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/var/log/app/error.log" {
		t.Errorf("Resolve: got %q, want unchanged path", got)
	}
}

func TestResolve_TraversalIsShortened(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	original := "/a/../../etc/passwd"
	got, err := m.Resolve(ctx, "ws1", original)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == original {
		t.Error("Resolve: traversal path should not be returned unchanged")
	}

	back, err := m.OriginalPath(ctx, "ws1", got)
	if err != nil {
		t.Fatalf("OriginalPath: %v", err)
	}
	if back != original {
		t.Errorf("OriginalPath round trip: got %q, want %q", back, original)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	original := strings.Repeat("a", 5000)
	got1, err := m.Resolve(ctx, "ws1", original)
	if err != nil {
		t.Fatalf("Resolve (1): %v", err)
	}
	got2, err := m.Resolve(ctx, "ws1", original)
	if err != nil {
		t.Fatalf("Resolve (2): %v", err)
	}
	if got1 != got2 {
		t.Errorf("Resolve: non-deterministic shortening: %q vs %q", got1, got2)
	}
}

func TestResolve_OverLongPathShortened(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalLength = 32
	m, _ := newTestManager(t, cfg)
	ctx := context.Background()

	original := "/var/log/application/deeply/nested/subsystem/component/trace.log"
	got, err := m.Resolve(ctx, "ws1", original)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) >= len(original) {
		t.Errorf("Resolve: expected shortened path, got %q (len %d) vs original len %d", got, len(got), len(original))
	}
	if !strings.HasSuffix(got, ".log") {
		t.Errorf("Resolve: expected extension preserved, got %q", got)
	}
}

func TestIsSafeComponent(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"normal.log", true},
		{"", false},
		{".", false},
		{"..", false},
		{"bad:name", false},
		{strings.Repeat("x", 300), false},
	}
	for _, c := range cases {
		if got := isSafeComponent(c.in, 255); got != c.want {
			t.Errorf("isSafeComponent(%q): got %v, want %v", c.in, got, c.want)
		}
	}
}
