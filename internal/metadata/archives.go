package metadata

import (
	"context"
	"database/sql"

	"github.com/rybkr/logarc/internal/errs"
)

// Archive is a row of the archives table. An archive also has a
// corresponding files row sharing its hash; this table tracks the extra
// nesting metadata that makes it a container rather than a leaf.
type Archive struct {
	ID              int64
	Workspace       string
	SHA256Hash      string
	VirtualPath     string
	DepthLevel      int
	ParentArchiveID sql.NullInt64
}

// InsertArchive inserts a single archive row, assigning its ID.
func (idx *Index) InsertArchive(ctx context.Context, a *Archive) error {
	res, err := idx.db.ExecContext(ctx, `
		INSERT INTO archives (workspace, sha256_hash, virtual_path, depth_level, parent_archive_id)
		VALUES (?, ?, ?, ?, ?)`,
		a.Workspace, a.SHA256Hash, a.VirtualPath, a.DepthLevel, a.ParentArchiveID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Wrap(errs.Validation, "duplicate archive entry", err).
				WithContext("workspace", a.Workspace).WithPath(a.VirtualPath)
		}
		return errs.Wrap(errs.IoError, "insert archive", err).WithPath(a.VirtualPath)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.Wrap(errs.IoError, "read inserted archive id", err)
	}
	a.ID = id
	return nil
}

// GetAllArchives returns archives for workspace ordered by id, starting
// after afterID and capped at limit rows.
func (idx *Index) GetAllArchives(ctx context.Context, workspace string, afterID int64, limit int) ([]*Archive, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, workspace, sha256_hash, virtual_path, depth_level, parent_archive_id
		FROM archives
		WHERE workspace = ? AND id > ?
		ORDER BY id
		LIMIT ?`, workspace, afterID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "query archives", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Archive
	for rows.Next() {
		a := &Archive{}
		if err := rows.Scan(&a.ID, &a.Workspace, &a.SHA256Hash, &a.VirtualPath, &a.DepthLevel, &a.ParentArchiveID); err != nil {
			return nil, errs.Wrap(errs.IoError, "scan archive row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IoError, "iterate archive rows", err)
	}
	return out, nil
}
