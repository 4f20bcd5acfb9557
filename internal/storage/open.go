package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Options selects and configures the database backend.
type Options struct {
	Driver   Dialect
	Path     string
	Postgres PostgresConfig
}

// Open opens the configured backend and returns the pool with its dialect.
func Open(ctx context.Context, opts Options) (*sql.DB, Dialect, error) {
	switch opts.Driver {
	case DialectSQLite, "":
		db, err := OpenSQLite(ctx, opts.Path)
		return db, DialectSQLite, err
	case DialectPostgres:
		db, err := OpenPostgres(ctx, opts.Postgres)
		return db, DialectPostgres, err
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}
