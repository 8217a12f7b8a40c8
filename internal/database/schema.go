package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id    TEXT PRIMARY KEY,
		cash       NUMERIC NOT NULL CHECK (cash >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS holdings (
		user_id    TEXT NOT NULL REFERENCES accounts (user_id),
		symbol     TEXT NOT NULL,
		shares     BIGINT NOT NULL CHECK (shares > 0),
		price      NUMERIC NOT NULL,
		value      NUMERIC NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq           BIGSERIAL PRIMARY KEY,
		id            UUID NOT NULL UNIQUE,
		user_id       TEXT NOT NULL REFERENCES accounts (user_id),
		symbol        TEXT NOT NULL,
		side          TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
		shares        BIGINT NOT NULL CHECK (shares > 0),
		price         NUMERIC NOT NULL,
		total         NUMERIC NOT NULL,
		balance_after NUMERIC NOT NULL,
		executed_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_seq_idx ON transactions (user_id, seq DESC)`,
}

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
