package extract

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"

	"github.com/rybkr/logarc/internal/errs"
	"github.com/rybkr/logarc/internal/metadata"
)

const maxDuplicateSuffix = 1000

// recordFile inserts a files row for hash/virtualPath, retrying under a
// numeric suffix on a (workspace, virtual_path) collision and emitting a
// DuplicateFilename warning, per spec's duplicate-path tie-break. A
// (workspace, sha256_hash) collision means this content is already
// represented by an earlier file row (the one-entry-per-hash policy); that
// is not an error, it is simply not inserted again.
func (e *Engine) recordFile(ctx context.Context, hash, virtualPath, name string, size int64, parent sql.NullInt64, depth int, result *Result) error {
	candidate := virtualPath
	for attempt := 0; attempt <= maxDuplicateSuffix; attempt++ {
		f := &metadata.File{
			Workspace:       e.workspace,
			SHA256Hash:      hash,
			VirtualPath:     candidate,
			OriginalName:    name,
			Size:            size,
			ParentArchiveID: parent,
			DepthLevel:      depth,
		}
		err := e.idx.InsertFile(ctx, f)
		if err == nil {
			return nil
		}
		if !errs.Is(err, errs.Validation) {
			return err
		}
		if strings.Contains(err.Error(), "sha256_hash") {
			result.warn("DuplicateFilename", "content already indexed under another path", virtualPath)
			return nil
		}
		attempt++
		candidate = fmt.Sprintf("%s-%d", virtualPath, attempt)
		result.warn("DuplicateFilename", "virtual path collision, renamed", virtualPath)
	}
	return errs.New(errs.Internal, "exhausted duplicate filename suffixes").WithPath(virtualPath)
}

// recordArchive inserts an archives row and the files row that shares its
// hash (an archive is also a file), returning the archive's own row id for
// use as its children's parent_archive_id.
func (e *Engine) recordArchive(ctx context.Context, hash, virtualPath string, size int64, parent sql.NullInt64, depth int, result *Result) (int64, error) {
	a := &metadata.Archive{
		Workspace:       e.workspace,
		SHA256Hash:      hash,
		VirtualPath:     virtualPath,
		DepthLevel:      depth,
		ParentArchiveID: parent,
	}
	if err := e.idx.InsertArchive(ctx, a); err != nil {
		return 0, err
	}
	if err := e.recordFile(ctx, hash, virtualPath, path.Base(virtualPath), size, parent, depth, result); err != nil {
		return 0, err
	}
	return a.ID, nil
}
