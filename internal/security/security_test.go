package security

import (
	"testing"

	"github.com/rybkr/logarc/internal/errs"
)

func TestCheckCompressionRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionRatioThreshold = 10
	var events []Event
	d := New(cfg)
	d.OnEvent = func(e Event) { events = append(events, e) }

	if err := d.CheckCompressionRatio("a.zip", 1000, 5000); err != nil {
		t.Errorf("CheckCompressionRatio (ratio 5): want nil, got %v", err)
	}

	err := d.CheckCompressionRatio("a.zip", 1000, 50000)
	if !errs.Is(err, errs.ZipBombDetected) {
		t.Errorf("CheckCompressionRatio (ratio 50): want ZipBombDetected, got %v", err)
	}
	if len(events) != 1 || events[0].Type != errs.ZipBombDetected {
		t.Errorf("CheckCompressionRatio: expected one ZipBombDetected event, got %v", events)
	}
}

func TestCheckPath(t *testing.T) {
	d := New(DefaultConfig())
	cases := []struct {
		path    string
		wantErr bool
	}{
		{"/a/b/c.log", false},
		{"/a/../../etc/passwd", true},
		{"//etc/passwd", true},
		{"a/b\x00c", true},
	}
	for _, c := range cases {
		err := d.CheckPath("a.zip", c.path)
		if (err != nil) != c.wantErr {
			t.Errorf("CheckPath(%q): err=%v, wantErr=%v", c.path, err, c.wantErr)
		}
		if err != nil && !errs.Is(err, errs.PathTraversalAttempt) {
			t.Errorf("CheckPath(%q): want PathTraversalAttempt code, got %v", c.path, err)
		}
	}
}

func TestCheckExtension(t *testing.T) {
	d := New(DefaultConfig())
	if err := d.CheckExtension("a.zip", "readme.txt"); err != nil {
		t.Errorf("CheckExtension(readme.txt): want nil, got %v", err)
	}
	err := d.CheckExtension("a.zip", "payload.exe")
	if !errs.Is(err, errs.ForbiddenExtension) {
		t.Errorf("CheckExtension(payload.exe): want ForbiddenExtension, got %v", err)
	}
}

func TestCheckBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 3
	cfg.MaxFileCount = 5
	cfg.MaxTotalBytes = 100
	d := New(cfg)

	if err := d.CheckBudget("a.zip", Budget{Depth: 1, FileCount: 2, TotalBytes: 50}); err != nil {
		t.Errorf("CheckBudget (within budget): want nil, got %v", err)
	}

	err := d.CheckBudget("a.zip", Budget{Depth: 3, FileCount: 2, TotalBytes: 50})
	if !errs.Is(err, errs.DepthLimitExceeded) {
		t.Errorf("CheckBudget (depth): want DepthLimitExceeded, got %v", err)
	}

	err = d.CheckBudget("a.zip", Budget{Depth: 1, FileCount: 6, TotalBytes: 50})
	if !errs.Is(err, errs.QuotaExceeded) {
		t.Errorf("CheckBudget (file count): want QuotaExceeded, got %v", err)
	}

	err = d.CheckBudget("a.zip", Budget{Depth: 1, FileCount: 2, TotalBytes: 200})
	if !errs.Is(err, errs.QuotaExceeded) {
		t.Errorf("CheckBudget (bytes): want QuotaExceeded, got %v", err)
	}
}
