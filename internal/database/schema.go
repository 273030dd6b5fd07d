package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool and pgx.Tx implement it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Statements creating the tables used by the gatherer. Quantities and
// prices are NUMERIC so decimals round-trip exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		execution_id        TEXT        NOT NULL,
		order_id            TEXT        NOT NULL,
		account             TEXT        NOT NULL,
		symbol              TEXT        NOT NULL,
		side                TEXT        NOT NULL,
		quantity            NUMERIC     NOT NULL,
		price               NUMERIC     NOT NULL,
		filled_qty          NUMERIC     NOT NULL,
		last_qty            NUMERIC     NOT NULL DEFAULT 0,
		last_px             NUMERIC     NOT NULL DEFAULT 0,
		status              TEXT        NOT NULL,
		execution_type      TEXT        NOT NULL DEFAULT '',
		source              TEXT        NOT NULL DEFAULT '',
		event_time          TIMESTAMPTZ NOT NULL,
		previous_filled_qty NUMERIC,
		previous_event_time TIMESTAMPTZ,
		superseded          BOOLEAN     NOT NULL DEFAULT FALSE,
		update_count        INTEGER     NOT NULL DEFAULT 0,
		cancel_reason       TEXT        NOT NULL DEFAULT '',
		PRIMARY KEY (execution_id, order_id, account)
	)`,
	`CREATE TABLE IF NOT EXISTS quotes (
		symbol          TEXT             PRIMARY KEY,
		category        TEXT             NOT NULL,
		bid             DOUBLE PRECISION NOT NULL DEFAULT 0,
		bid_size        DOUBLE PRECISION NOT NULL DEFAULT 0,
		ask             DOUBLE PRECISION NOT NULL DEFAULT 0,
		ask_size        DOUBLE PRECISION NOT NULL DEFAULT 0,
		last            DOUBLE PRECISION NOT NULL DEFAULT 0,
		change          DOUBLE PRECISION NOT NULL DEFAULT 0,
		open            DOUBLE PRECISION NOT NULL DEFAULT 0,
		high            DOUBLE PRECISION NOT NULL DEFAULT 0,
		low             DOUBLE PRECISION NOT NULL DEFAULT 0,
		previous_close  DOUBLE PRECISION NOT NULL DEFAULT 0,
		turnover        DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume          DOUBLE PRECISION NOT NULL DEFAULT 0,
		operation_count DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at      TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS executions_symbol_idx ON executions (symbol)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
