package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rybkr/logarc/internal/errs"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestInsertFile_UniqueVirtualPath(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	f1 := &File{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/a.log", OriginalName: "a.log", Size: 10}
	if err := idx.InsertFile(ctx, f1); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	if f1.ID == 0 {
		t.Error("InsertFile: expected non-zero id")
	}

	f2 := &File{Workspace: "ws1", SHA256Hash: "b", VirtualPath: "/a.log", OriginalName: "a.log", Size: 10}
	err := idx.InsertFile(ctx, f2)
	if !errs.Is(err, errs.Validation) {
		t.Errorf("InsertFile duplicate virtual_path: want Validation, got %v", err)
	}
}

func TestInsertFile_UniqueHashPerWorkspace(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	f1 := &File{Workspace: "ws1", SHA256Hash: "dup", VirtualPath: "/a.log", OriginalName: "a.log", Size: 10}
	if err := idx.InsertFile(ctx, f1); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}

	f2 := &File{Workspace: "ws1", SHA256Hash: "dup", VirtualPath: "/b.log", OriginalName: "b.log", Size: 10}
	err := idx.InsertFile(ctx, f2)
	if !errs.Is(err, errs.Validation) {
		t.Errorf("InsertFile duplicate hash: want Validation, got %v", err)
	}

	f3 := &File{Workspace: "ws2", SHA256Hash: "dup", VirtualPath: "/b.log", OriginalName: "b.log", Size: 10}
	if err := idx.InsertFile(ctx, f3); err != nil {
		t.Errorf("InsertFile same hash in different workspace: want success, got %v", err)
	}
}

func TestInsertFilesBatch_AtomicOnFailure(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	batch := []*File{
		{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/a.log", OriginalName: "a.log", Size: 1},
		{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/b.log", OriginalName: "b.log", Size: 1},
	}
	if err := idx.InsertFilesBatch(ctx, batch); err == nil {
		t.Fatal("InsertFilesBatch: expected failure on duplicate hash")
	}

	count, err := idx.CountFiles(ctx, "ws1")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count != 0 {
		t.Errorf("CountFiles after rolled-back batch: got %d, want 0", count)
	}
}

func TestGetAllFiles_Pagination(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	var batch []*File
	for i := 0; i < 5; i++ {
		batch = append(batch, &File{
			Workspace: "ws1", SHA256Hash: string(rune('a' + i)),
			VirtualPath: "/" + string(rune('a'+i)) + ".log", OriginalName: "f.log", Size: 1,
		})
	}
	if err := idx.InsertFilesBatch(ctx, batch); err != nil {
		t.Fatalf("InsertFilesBatch: %v", err)
	}

	page1, err := idx.GetAllFiles(ctx, "ws1", 0, 2)
	if err != nil {
		t.Fatalf("GetAllFiles page1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page1: got %d rows, want 2", len(page1))
	}

	page2, err := idx.GetAllFiles(ctx, "ws1", page1[len(page1)-1].ID, 10)
	if err != nil {
		t.Fatalf("GetAllFiles page2: %v", err)
	}
	if len(page2) != 3 {
		t.Errorf("page2: got %d rows, want 3", len(page2))
	}
}

func TestMaxDepthAndCount(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	batch := []*File{
		{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/a.log", OriginalName: "a.log", Size: 1, DepthLevel: 0},
		{Workspace: "ws1", SHA256Hash: "b", VirtualPath: "/z/b.log", OriginalName: "b.log", Size: 1, DepthLevel: 3},
	}
	if err := idx.InsertFilesBatch(ctx, batch); err != nil {
		t.Fatalf("InsertFilesBatch: %v", err)
	}

	depth, err := idx.GetMaxDepth(ctx, "ws1")
	if err != nil {
		t.Fatalf("GetMaxDepth: %v", err)
	}
	if depth != 3 {
		t.Errorf("GetMaxDepth: got %d, want 3", depth)
	}

	count, err := idx.CountFiles(ctx, "ws1")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count != 2 {
		t.Errorf("CountFiles: got %d, want 2", count)
	}
}

func TestSearchFiles(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	batch := []*File{
		{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/nginx/error.log", OriginalName: "error.log", Size: 1},
		{Workspace: "ws1", SHA256Hash: "b", VirtualPath: "/app/access.log", OriginalName: "access.log", Size: 1},
	}
	if err := idx.InsertFilesBatch(ctx, batch); err != nil {
		t.Fatalf("InsertFilesBatch: %v", err)
	}

	results, err := idx.SearchFiles(ctx, "ws1", "nginx", 10)
	if err != nil {
		t.Fatalf("SearchFiles: %v", err)
	}
	if len(results) != 1 || results[0].VirtualPath != "/nginx/error.log" {
		t.Errorf("SearchFiles(nginx): got %v", results)
	}
}

func TestPathMappingRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.StoreMapping(ctx, "ws1", "short1", "/very/long/original/path.log", 100); err != nil {
		t.Fatalf("StoreMapping: %v", err)
	}

	original, err := idx.GetOriginalPath(ctx, "ws1", "short1")
	if err != nil {
		t.Fatalf("GetOriginalPath: %v", err)
	}
	if original != "/very/long/original/path.log" {
		t.Errorf("GetOriginalPath: got %q", original)
	}

	short, err := idx.GetShortPath(ctx, "ws1", "/very/long/original/path.log")
	if err != nil {
		t.Fatalf("GetShortPath: %v", err)
	}
	if short != "short1" {
		t.Errorf("GetShortPath: got %q", short)
	}

	if err := idx.IncrementAccessCount(ctx, "ws1", "short1"); err != nil {
		t.Fatalf("IncrementAccessCount: %v", err)
	}

	_, err = idx.GetOriginalPath(ctx, "ws1", "missing")
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("GetOriginalPath missing: want NotFound, got %v", err)
	}
}

func TestCleanupWorkspace(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.InsertFile(ctx, &File{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/a.log", OriginalName: "a.log", Size: 1}); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	if err := idx.InsertArchive(ctx, &Archive{Workspace: "ws1", SHA256Hash: "arc", VirtualPath: "/a.zip"}); err != nil {
		t.Fatalf("InsertArchive: %v", err)
	}
	if err := idx.StoreMapping(ctx, "ws1", "s", "/o", 1); err != nil {
		t.Fatalf("StoreMapping: %v", err)
	}

	removed, err := idx.CleanupWorkspace(ctx, "ws1")
	if err != nil {
		t.Fatalf("CleanupWorkspace: %v", err)
	}
	if removed != 3 {
		t.Errorf("CleanupWorkspace: removed %d rows, want 3", removed)
	}

	count, err := idx.CountFiles(ctx, "ws1")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count != 0 {
		t.Errorf("CountFiles after cleanup: got %d, want 0", count)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.InsertFile(ctx, &File{Workspace: "ws1", SHA256Hash: "a", VirtualPath: "/a.log", OriginalName: "a.log", Size: 1}); err != nil {
		t.Fatalf("InsertFile ws1: %v", err)
	}
	if err := idx.InsertFile(ctx, &File{Workspace: "ws2", SHA256Hash: "b", VirtualPath: "/b.log", OriginalName: "b.log", Size: 1}); err != nil {
		t.Fatalf("InsertFile ws2: %v", err)
	}

	count1, err := idx.CountFiles(ctx, "ws1")
	if err != nil {
		t.Fatalf("CountFiles ws1: %v", err)
	}
	if count1 != 1 {
		t.Errorf("CountFiles ws1: got %d, want 1", count1)
	}

	if _, err := idx.CleanupWorkspace(ctx, "ws1"); err != nil {
		t.Fatalf("CleanupWorkspace ws1: %v", err)
	}

	count2, err := idx.CountFiles(ctx, "ws2")
	if err != nil {
		t.Fatalf("CountFiles ws2: %v", err)
	}
	if count2 != 1 {
		t.Errorf("CountFiles ws2 after ws1 cleanup: got %d, want 1", count2)
	}
}
