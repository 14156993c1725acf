package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Migrate applies every pending migration for the connected dialect.
// Migrations only ever add tables, columns and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	var dialect goose.Dialect
	switch db.dialect {
	case Postgres:
		dialect = goose.DialectPostgres
	case SQLite:
		dialect = goose.DialectSQLite3
	default:
		return fmt.Errorf("no migrations for dialect %q", db.dialect)
	}

	fsys, err := fs.Sub(migrations, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.sql, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		slog.InfoContext(ctx, "migration applied",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds())
	}

	return nil
}
