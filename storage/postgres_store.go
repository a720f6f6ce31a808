package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"repairshop-scraper/utils"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                TEXT             PRIMARY KEY,
		category_key      TEXT             NOT NULL DEFAULT '',
		name              TEXT             NOT NULL,
		address           TEXT             NOT NULL DEFAULT '',
		city              TEXT             NOT NULL DEFAULT '',
		postal_code       VARCHAR(5)       NOT NULL,
		phone             VARCHAR(10)      NOT NULL DEFAULT '',
		email             TEXT             NOT NULL DEFAULT '',
		website           TEXT             NOT NULL DEFAULT '',
		description       TEXT             NOT NULL DEFAULT '',
		category          TEXT             NOT NULL DEFAULT '',
		inferred_category TEXT             NOT NULL DEFAULT '',
		source            VARCHAR(20)      NOT NULL DEFAULT '',
		lat               DOUBLE PRECISION,
		lng               DOUBLE PRECISION,
		accuracy          VARCHAR(10)      NOT NULL DEFAULT '',
		quality_score     SMALLINT         NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		UNIQUE (name, postal_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_category_key ON listings(category_key)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_city         ON listings(city)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_quality      ON listings(quality_score)`,
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations, and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (ListingStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Debug("[postgres] Ping attempt %d failed: %v", i+1, err)
		if sleepErr := utils.SleepContext(ctx, 2*time.Second); sleepErr != nil {
			break
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := &sqlStore{db: db, dialect: postgresDialect()}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

func postgresDialect() dialect {
	return dialect{
		name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		timeArg:     func(t time.Time) any { return t.UTC() },
		schema:      postgresSchema,
	}
}

// isPQUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation.
func isPQUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
