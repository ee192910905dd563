package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		wallet_cents BIGINT NOT NULL DEFAULT 0 CHECK (wallet_cents >= 0),
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS publishers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		default_price_cents BIGINT NOT NULL DEFAULT 25,
		default_author_split_bps BIGINT CHECK (default_author_split_bps BETWEEN 0 AND 10000)
	)`,
	`CREATE TABLE IF NOT EXISTS author_profiles (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		publisher_id BIGINT REFERENCES publishers(id),
		author_id BIGINT REFERENCES author_profiles(id),
		title TEXT NOT NULL,
		price_cents BIGINT CHECK (price_cents > 0),
		license_type TEXT NOT NULL DEFAULT 'revenue_share',
		custom_splits JSONB,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		article_id BIGINT REFERENCES articles(id),
		publisher_id BIGINT,
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		fee_cents BIGINT NOT NULL DEFAULT 0,
		net_cents BIGINT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('debit', 'refund', 'topup', 'admin_credit', 'admin_debit')),
		split_breakdown JSONB,
		external_reference TEXT,
		note VARCHAR(300),
		refund_of BIGINT REFERENCES transactions(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (type <> 'debit' OR fee_cents + net_cents = price_cents)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_article_type ON transactions (article_id, type)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_topup_reference
		ON transactions (user_id, external_reference) WHERE type = 'topup'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_refund_of
		ON transactions (refund_of) WHERE refund_of IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS author_earnings (
		id BIGSERIAL PRIMARY KEY,
		author_id BIGINT NOT NULL REFERENCES author_profiles(id),
		article_id BIGINT REFERENCES articles(id),
		transaction_id BIGINT NOT NULL REFERENCES transactions(id),
		amount_cents BIGINT NOT NULL,
		percentage_bps BIGINT NOT NULL,
		publisher_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (transaction_id, author_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_author_earnings_author_created ON author_earnings (author_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT,
		event_name VARCHAR(64) NOT NULL,
		article_id BIGINT,
		publisher_id BIGINT,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_name_created ON events (event_name, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
		id BIGSERIAL PRIMARY KEY,
		token_hash CHAR(64) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS split_rules (
		id BIGSERIAL PRIMARY KEY,
		publisher_id BIGINT NOT NULL REFERENCES publishers(id),
		role VARCHAR(50) NOT NULL,
		percent_bps BIGINT NOT NULL CHECK (percent_bps >= 0),
		recipient_label VARCHAR(200) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the ledger schema inside one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
