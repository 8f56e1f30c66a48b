package metadata

import (
	"context"
	"database/sql"

	"github.com/rybkr/logarc/internal/errs"
)

// StoreMapping records that originalPath was rewritten to shortPath within
// workspace. Re-storing the same (workspace, shortPath) pair updates the
// original path it points to, matching the extraction engine's retry path.
func (idx *Index) StoreMapping(ctx context.Context, workspace, shortPath, originalPath string, createdAt int64) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO path_mappings (workspace_id, short_path, original_path, created_at, access_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(workspace_id, short_path) DO UPDATE SET original_path = excluded.original_path`,
		workspace, shortPath, originalPath, createdAt,
	)
	if err != nil {
		return errs.Wrap(errs.IoError, "store path mapping", err).WithPath(shortPath)
	}
	return nil
}

// GetOriginalPath resolves shortPath back to the original path it was
// shortened from, reporting NotFound if no mapping exists.
func (idx *Index) GetOriginalPath(ctx context.Context, workspace, shortPath string) (string, error) {
	var original string
	err := idx.db.QueryRowContext(ctx,
		`SELECT original_path FROM path_mappings WHERE workspace_id = ? AND short_path = ?`,
		workspace, shortPath).Scan(&original)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errs.New(errs.NotFound, "no mapping for short path").WithPath(shortPath)
		}
		return "", errs.Wrap(errs.IoError, "query original path", err).WithPath(shortPath)
	}
	return original, nil
}

// GetShortPath resolves originalPath forward to the short path it was
// rewritten to, reporting NotFound if no mapping exists.
func (idx *Index) GetShortPath(ctx context.Context, workspace, originalPath string) (string, error) {
	var short string
	err := idx.db.QueryRowContext(ctx,
		`SELECT short_path FROM path_mappings WHERE workspace_id = ? AND original_path = ?`,
		workspace, originalPath).Scan(&short)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errs.New(errs.NotFound, "no mapping for original path").WithPath(originalPath)
		}
		return "", errs.Wrap(errs.IoError, "query short path", err).WithPath(originalPath)
	}
	return short, nil
}

// IncrementAccessCount bumps the access counter for a stored mapping,
// called whenever a caller resolves through shortPath.
func (idx *Index) IncrementAccessCount(ctx context.Context, workspace, shortPath string) error {
	res, err := idx.db.ExecContext(ctx,
		`UPDATE path_mappings SET access_count = access_count + 1 WHERE workspace_id = ? AND short_path = ?`,
		workspace, shortPath)
	if err != nil {
		return errs.Wrap(errs.IoError, "increment access count", err).WithPath(shortPath)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.IoError, "read rows affected", err)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "no mapping for short path").WithPath(shortPath)
	}
	return nil
}

// CleanupWorkspace deletes every files, archives, and path_mappings row for
// workspace and returns the total number of rows removed.
func (idx *Index) CleanupWorkspace(ctx context.Context, workspace string) (int64, error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.IoError, "begin cleanup", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var total int64
	for _, stmt := range []string{
		`DELETE FROM files WHERE workspace = ?`,
		`DELETE FROM archives WHERE workspace = ?`,
		`DELETE FROM path_mappings WHERE workspace_id = ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, workspace)
		if err != nil {
			return 0, errs.Wrap(errs.IoError, "cleanup workspace rows", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errs.Wrap(errs.IoError, "read cleanup rows affected", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.IoError, "commit cleanup", err)
	}
	committed = true
	return total, nil
}
