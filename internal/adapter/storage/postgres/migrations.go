package postgres

import (
	"context"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		owner      TEXT PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency   TEXT NOT NULL,
		version    BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                      TEXT PRIMARY KEY,
		created_at              TIMESTAMPTZ NOT NULL,
		updated_at              TIMESTAMPTZ NOT NULL,
		amount                  BIGINT NOT NULL CHECK (amount > 0),
		fee                     BIGINT NOT NULL DEFAULT 0,
		currency                TEXT NOT NULL,
		payment_method          TEXT NOT NULL,
		status                  TEXT NOT NULL,
		processing_state        TEXT NOT NULL,
		party_from              TEXT NOT NULL DEFAULT '',
		party_to                TEXT NOT NULL DEFAULT '',
		wallet_transaction_type TEXT NOT NULL DEFAULT '',
		direction               TEXT NOT NULL DEFAULT '',
		correlation_id          TEXT NOT NULL DEFAULT '',
		external_ref            TEXT UNIQUE,
		settlement_handle       TEXT NOT NULL DEFAULT '',
		callback_url            TEXT NOT NULL DEFAULT '',
		description             TEXT NOT NULL DEFAULT '',
		display_description     TEXT NOT NULL DEFAULT '',
		timeline                JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_party_from ON transactions (party_from, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_party_to ON transactions (party_to, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_correlation ON transactions (correlation_id) WHERE correlation_id <> ''`,
}

// Migrate creates the tables and indexes the repositories expect.
func Migrate(ctx context.Context, pool Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
