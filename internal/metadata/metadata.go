// Package metadata is the durable, queryable index of files, archives, and
// path mappings for a workspace: a SQLite database in WAL mode, migrated
// with goose, with an FTS5 shadow table backing full-text search.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rybkr/logarc/internal/errs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxOpenConns bounds the connection pool; SQLite under WAL serializes
// writers regardless, so this mainly caps concurrent readers.
const maxOpenConns = 10

// Index is the metadata index for a single workspace's SQLite database.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path and brings its schema up
// to date via embedded goose migrations.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "open metadata db", err).WithPath(path)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.IoError, "ping metadata db", err).WithPath(path)
	}

	db.SetMaxOpenConns(maxOpenConns)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Index{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.IoError, fmt.Sprintf("apply pragma %q", stmt), err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrationsDir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errs.Wrap(errs.Internal, "open migrations subtree", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrationsDir)
	if err != nil {
		return errs.Wrap(errs.Internal, "construct goose provider", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return errs.Wrap(errs.IoError, "run migrations", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	if err := idx.db.Close(); err != nil {
		return errs.Wrap(errs.IoError, "close metadata db", err)
	}
	return nil
}
