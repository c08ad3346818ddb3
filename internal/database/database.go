// Package database opens the single shared sqlite file that holds favorites,
// the durable weather cache, app state, and the provisioned lookup tables.
package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "weather-terminal.db"

// DBPath returns the path to the shared database inside dataDir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Open opens (creating if needed) the sqlite database at path, applies
// connection pragmas and runs the schema migration.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "database: create %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "database: open")
	}
	// One connection keeps the per-connection pragmas in effect for every query.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "database: exec %s", pragma)
		}
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS favorites (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	uid          TEXT UNIQUE,
	key          TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL,
	custom_name  TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL,
	search_query TEXT NOT NULL DEFAULT '',
	position     INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS weather_cache (
	slot                   TEXT PRIMARY KEY,
	payload                TEXT NOT NULL,
	observations           TEXT,
	observations_available INTEGER NOT NULL DEFAULT 0,
	location_display       TEXT,
	fetched_at             TEXT,
	updated_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_favorites_key ON favorites(key);
CREATE INDEX IF NOT EXISTS idx_favorites_position ON favorites(position);
`

// Migrate creates the user tables if they do not exist. Existing rows are
// never dropped.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return eris.Wrap(err, "database: migrate")
}

// TableExists reports whether a table with the given name exists.
func TableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		return false, eris.Wrapf(err, "database: check table %s", name)
	}
	return count > 0, nil
}
