package metadata

import (
	"context"

	"github.com/rybkr/logarc/internal/errs"
)

// SearchFiles runs a full-text query over virtual_path and original_name via
// the files_fts shadow table and returns matching files ordered by
// relevance (bm25, best match first).
func (idx *Index) SearchFiles(ctx context.Context, workspace, query string, limit int) ([]*File, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT f.id, f.workspace, f.sha256_hash, f.virtual_path, f.original_name,
		       f.size, f.modified_time, f.mime_type, f.parent_archive_id, f.depth_level
		FROM files_fts
		JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ? AND f.workspace = ?
		ORDER BY bm25(files_fts)
		LIMIT ?`, query, workspace, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "search files", err).WithContext("query", query)
	}
	defer func() { _ = rows.Close() }()

	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Workspace, &f.SHA256Hash, &f.VirtualPath, &f.OriginalName,
			&f.Size, &f.ModifiedTime, &f.MimeType, &f.ParentArchiveID, &f.DepthLevel); err != nil {
			return nil, errs.Wrap(errs.IoError, "scan search result", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "iterate search results", err)
	}
	return out, nil
}
