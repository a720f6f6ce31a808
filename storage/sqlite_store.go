package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                TEXT    PRIMARY KEY,
		category_key      TEXT    NOT NULL DEFAULT '',
		name              TEXT    NOT NULL,
		address           TEXT    NOT NULL DEFAULT '',
		city              TEXT    NOT NULL DEFAULT '',
		postal_code       TEXT    NOT NULL,
		phone             TEXT    NOT NULL DEFAULT '',
		email             TEXT    NOT NULL DEFAULT '',
		website           TEXT    NOT NULL DEFAULT '',
		description       TEXT    NOT NULL DEFAULT '',
		category          TEXT    NOT NULL DEFAULT '',
		inferred_category TEXT    NOT NULL DEFAULT '',
		source            TEXT    NOT NULL DEFAULT '',
		lat               REAL,
		lng               REAL,
		accuracy          TEXT    NOT NULL DEFAULT '',
		quality_score     INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT    NOT NULL,
		updated_at        TEXT    NOT NULL,
		UNIQUE (name, postal_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_category_key ON listings(category_key)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_city         ON listings(city)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_quality      ON listings(quality_score)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at path. ":memory:"
// gives a private in-process database.
func NewSQLiteStore(ctx context.Context, path string) (ListingStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: an in-memory database is per connection, and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)

	s := &sqlStore{db: db, dialect: sqliteDialect()}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

func sqliteDialect() dialect {
	return dialect{
		name:    "sqlite",
		timeArg: func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
		schema:  sqliteSchema,
	}
}
