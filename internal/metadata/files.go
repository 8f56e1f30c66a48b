package metadata

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rybkr/logarc/internal/errs"
)

// File is a row of the files table: one entry per distinct content hash
// within a workspace (spec's one-entry-per-hash policy).
type File struct {
	ID              int64
	Workspace       string
	SHA256Hash      string
	VirtualPath     string
	OriginalName    string
	Size            int64
	ModifiedTime    int64
	MimeType        sql.NullString
	ParentArchiveID sql.NullInt64
	DepthLevel      int
}

// InsertFile inserts a single file row, assigning its ID.
func (idx *Index) InsertFile(ctx context.Context, f *File) error {
	res, err := idx.db.ExecContext(ctx, `
		INSERT INTO files (
			workspace, sha256_hash, virtual_path, original_name,
			size, modified_time, mime_type, parent_archive_id, depth_level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Workspace, f.SHA256Hash, f.VirtualPath, f.OriginalName,
		f.Size, f.ModifiedTime, f.MimeType, f.ParentArchiveID, f.DepthLevel,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Wrap(errs.Validation, "duplicate file entry", err).
				WithContext("workspace", f.Workspace).WithPath(f.VirtualPath)
		}
		return errs.Wrap(errs.IoError, "insert file", err).WithPath(f.VirtualPath)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.Wrap(errs.IoError, "read inserted file id", err)
	}
	f.ID = id
	return nil
}

// InsertFilesBatch inserts all of files within a single transaction,
// rolling back entirely on the first failure.
func (idx *Index) InsertFilesBatch(ctx context.Context, files []*File) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.IoError, "begin batch insert", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (
			workspace, sha256_hash, virtual_path, original_name,
			size, modified_time, mime_type, parent_archive_id, depth_level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.IoError, "prepare batch insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range files {
		res, execErr := stmt.ExecContext(ctx,
			f.Workspace, f.SHA256Hash, f.VirtualPath, f.OriginalName,
			f.Size, f.ModifiedTime, f.MimeType, f.ParentArchiveID, f.DepthLevel,
		)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				return errs.Wrap(errs.Validation, "duplicate file entry in batch", execErr).
					WithContext("workspace", f.Workspace).WithPath(f.VirtualPath)
			}
			return errs.Wrap(errs.IoError, "insert file in batch", execErr).WithPath(f.VirtualPath)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return errs.Wrap(errs.IoError, "read inserted file id in batch", idErr)
		}
		f.ID = id
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.IoError, "commit batch insert", err)
	}
	committed = true
	return nil
}

// GetAllFiles returns files for workspace ordered by id, starting after
// afterID (0 to start from the beginning) and capped at limit rows.
func (idx *Index) GetAllFiles(ctx context.Context, workspace string, afterID int64, limit int) ([]*File, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, workspace, sha256_hash, virtual_path, original_name,
		       size, modified_time, mime_type, parent_archive_id, depth_level
		FROM files
		WHERE workspace = ? AND id > ?
		ORDER BY id
		LIMIT ?`, workspace, afterID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "query files", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Workspace, &f.SHA256Hash, &f.VirtualPath, &f.OriginalName,
			&f.Size, &f.ModifiedTime, &f.MimeType, &f.ParentArchiveID, &f.DepthLevel); err != nil {
			return nil, errs.Wrap(errs.IoError, "scan file row", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "iterate file rows", err)
	}
	return out, nil
}

// GetMaxDepth returns the deepest depth_level recorded for workspace.
func (idx *Index) GetMaxDepth(ctx context.Context, workspace string) (int, error) {
	var depth sql.NullInt64
	err := idx.db.QueryRowContext(ctx,
		`SELECT MAX(depth_level) FROM files WHERE workspace = ?`, workspace).Scan(&depth)
	if err != nil {
		return 0, errs.Wrap(errs.IoError, "query max depth", err)
	}
	return int(depth.Int64), nil
}

// CountFiles returns the number of file rows recorded for workspace.
func (idx *Index) CountFiles(ctx context.Context, workspace string) (int64, error) {
	var count int64
	err := idx.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE workspace = ?`, workspace).Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.IoError, "count files", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
