package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rybkr/logarc/internal/cas"
	"github.com/rybkr/logarc/internal/metadata"
	"github.com/rybkr/logarc/internal/pathmgr"
	"github.com/rybkr/logarc/internal/security"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *metadata.Index) {
	t.Helper()
	store, err := cas.New(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatalf("cas.New: %v", err)
	}
	idx, err := metadata.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	paths := pathmgr.New(pathmgr.DefaultConfig(), idx)
	sec := security.New(security.DefaultConfig())
	return New(cfg, store, idx, paths, sec, "ws1"), idx
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func buildTarGz(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for name, data := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("tar write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write(raw.Bytes()); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return gz.Bytes()
}

func TestExtractDirectory_PlainFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.log", []byte("hello"))
	writeFile(t, root, "b.log", []byte("world"))

	e, idx := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ExtractDirectory: %v", err)
	}
	if result.Stats.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", result.Stats.TotalFiles)
	}

	count, err := idx.CountFiles(ctx, "ws1")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count != 2 {
		t.Errorf("CountFiles = %d, want 2", count)
	}
}

func TestExtractDirectory_NestedZip(t *testing.T) {
	inner := buildZip(t, map[string][]byte{"inner.txt": []byte("nested content")})
	outer := buildZip(t, map[string][]byte{
		"inner.zip": inner,
		"top.txt":   []byte("top level"),
	})

	root := t.TempDir()
	writeFile(t, root, "outer.zip", outer)

	e, idx := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ExtractDirectory: %v", err)
	}
	if result.Stats.MaxDepthReached < 2 {
		t.Errorf("MaxDepthReached = %d, want >= 2", result.Stats.MaxDepthReached)
	}
	if result.Stats.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2 (top.txt + inner.txt)", result.Stats.TotalFiles)
	}

	archives, err := idx.GetAllArchives(ctx, "ws1", 0, 100)
	if err != nil {
		t.Fatalf("GetAllArchives: %v", err)
	}
	if len(archives) != 2 {
		t.Errorf("archives recorded = %d, want 2 (outer.zip + inner.zip)", len(archives))
	}
}

func TestExtractDirectory_TarGz(t *testing.T) {
	payload := buildTarGz(t, map[string][]byte{"a.log": []byte("aaa"), "b.log": []byte("bbb")})

	root := t.TempDir()
	writeFile(t, root, "bundle.tar.gz", payload)

	e, idx := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ExtractDirectory: %v", err)
	}
	if result.Stats.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", result.Stats.TotalFiles)
	}

	files, err := idx.GetAllFiles(ctx, "ws1", 0, 100)
	if err != nil {
		t.Fatalf("GetAllFiles: %v", err)
	}
	// bundle.tar.gz itself is recorded as an archive+file, plus its two entries.
	if len(files) != 3 {
		t.Errorf("files recorded = %d, want 3", len(files))
	}
}

func TestExtractDirectory_GzipSingleFile(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write([]byte("solitary content")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	root := t.TempDir()
	writeFile(t, root, "single.log.gz", gz.Bytes())

	e, idx := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ExtractDirectory: %v", err)
	}
	if result.Stats.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", result.Stats.TotalFiles)
	}

	files, err := idx.GetAllFiles(ctx, "ws1", 0, 100)
	if err != nil {
		t.Fatalf("GetAllFiles: %v", err)
	}
	found := false
	for _, f := range files {
		if f.VirtualPath == "/single.log" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a decompressed entry at /single.log, files = %+v", files)
	}
}

func TestExtractDirectory_DuplicateFilenameSuffixed(t *testing.T) {
	z := buildZip(t, map[string][]byte{"dup.txt": []byte("one")})

	root := t.TempDir()
	writeFile(t, root, "dup.txt", []byte("root copy"))
	writeFile(t, root, "a.zip", z)

	cfg := DefaultConfig()
	e, idx := newTestEngine(t, cfg)
	ctx := context.Background()

	// Force a virtual-path collision by extracting twice into the same
	// workspace index; the second pass's files collide on virtual_path.
	if _, err := e.ExtractDirectory(ctx, root); err != nil {
		t.Fatalf("first ExtractDirectory: %v", err)
	}
	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("second ExtractDirectory: %v", err)
	}

	sawDuplicateWarning := false
	for _, w := range result.Warnings {
		if w.Category == "DuplicateFilename" {
			sawDuplicateWarning = true
		}
	}
	if !sawDuplicateWarning {
		t.Errorf("expected a DuplicateFilename warning on re-extraction, warnings = %+v", result.Warnings)
	}

	count, err := idx.CountFiles(ctx, "ws1")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count == 0 {
		t.Error("expected at least some files recorded across both passes")
	}
}

func TestExtractDirectory_DepthLimitSkipsFurtherNesting(t *testing.T) {
	level3 := buildZip(t, map[string][]byte{"deep.txt": []byte("deep")})
	level2 := buildZip(t, map[string][]byte{"level3.zip": level3})
	level1 := buildZip(t, map[string][]byte{"level2.zip": level2})

	root := t.TempDir()
	writeFile(t, root, "level1.zip", level1)

	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ExtractDirectory: %v", err)
	}
	if result.Stats.DepthLimitSkips == 0 {
		t.Error("expected at least one DepthLimitSkips with MaxDepth=2 and 3 levels of nesting")
	}
}

func TestExtractDirectory_Cancellation(t *testing.T) {
	z := buildZip(t, map[string][]byte{"a.txt": []byte("x")})

	root := t.TempDir()
	writeFile(t, root, "bundle.zip", z)

	e, _ := newTestEngine(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.ExtractDirectory(ctx, root)
	if err != nil {
		t.Fatalf("ExtractDirectory: %v", err)
	}
	if !result.Cancelled {
		t.Error("expected Cancelled=true when the work-stack drain observes an already-cancelled context")
	}
}
