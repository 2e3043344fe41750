package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently at startup. The partial unique index
// on cached_listings enforces the one-active-row-per-item invariant at
// the storage layer.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS models (
		name               TEXT PRIMARY KEY,
		label              TEXT NOT NULL,
		required_keywords  TEXT[] NOT NULL DEFAULT '{}',
		accessory_keywords TEXT[] NOT NULL DEFAULT '{}',
		min_price          NUMERIC NOT NULL DEFAULT 0,
		max_price          NUMERIC NOT NULL DEFAULT 0,
		enabled            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cached_listings (
		id                    BIGSERIAL PRIMARY KEY,
		item_id               TEXT NOT NULL,
		model_name            TEXT NOT NULL REFERENCES models(name),
		title                 TEXT NOT NULL,
		price_value           NUMERIC NOT NULL,
		currency              TEXT NOT NULL DEFAULT 'USD',
		condition             TEXT NOT NULL DEFAULT '',
		buying_options        TEXT[] NOT NULL DEFAULT '{}',
		seller_username       TEXT NOT NULL DEFAULT '',
		seller_feedback_pct   NUMERIC NOT NULL DEFAULT 0,
		affiliate_web_url     TEXT NOT NULL DEFAULT '',
		item_location_country TEXT NOT NULL DEFAULT '',
		active                BOOLEAN NOT NULL DEFAULT TRUE,
		exclusion_reason      TEXT,
		first_seen_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		cached_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		archived_at           TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cached_listings_active_item
		ON cached_listings (item_id) WHERE active`,
	`CREATE INDEX IF NOT EXISTS idx_cached_listings_model_active
		ON cached_listings (model_name) WHERE active`,
	`CREATE INDEX IF NOT EXISTS idx_cached_listings_cached_at
		ON cached_listings (cached_at) WHERE active`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
