// Package store opens the local persistent store: an embedded SQLite
// database holding every durable collection of the POS offline core. Schema
// versioning is handled by goose migrations embedded in the binary; each
// migration runs atomically and in strict ascending order.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/pdcpos/posoffline/internal/store/migrations"
)

// Open opens (creating if necessary) the SQLite database at dsn and brings
// its schema up to the version the code expects.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the sync and probe loops read while the UI writes; the busy
	// timeout keeps short lock collisions below the engine, the longer ones
	// surface as SQLITE_BUSY for the retry executor.
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 250`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// RunMigrations applies all embedded migrations newer than the stored schema
// version, in ascending order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// SchemaVersion returns the current schema version stored in the database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	return goose.GetDBVersionContext(ctx, db)
}
