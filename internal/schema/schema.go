// Package schema owns the database DDL. EnsureSchema is idempotent
// and is run by the migrate command before anything else touches the
// store.
package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE SCHEMA IF NOT EXISTS limits;
CREATE SCHEMA IF NOT EXISTS market;

CREATE TABLE IF NOT EXISTS limits.limit_events (
    id                      BIGSERIAL PRIMARY KEY,
    ticker                  TEXT NOT NULL,
    start_date              DATE NOT NULL,
    end_date                DATE,
    max_amount              DOUBLE PRECISION,
    reason                  TEXT,
    source_announcement_ids JSONB NOT NULL DEFAULT '[]',
    is_open_ended           BOOLEAN GENERATED ALWAYS AS (end_date IS NULL) STORED
);
CREATE INDEX IF NOT EXISTS idx_limit_events_ticker ON limits.limit_events (ticker, start_date);

CREATE TABLE IF NOT EXISTS limits.limit_event_log (
    id           BIGSERIAL PRIMARY KEY,
    ticker       TEXT NOT NULL,
    operation    TEXT NOT NULL,
    old_start    DATE,
    old_end      DATE,
    new_start    DATE,
    new_end      DATE,
    triggered_by TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_limit_event_log_ticker ON limits.limit_event_log (ticker, created_at);

CREATE TABLE IF NOT EXISTS limits.announcement_parses (
    id                BIGSERIAL PRIMARY KEY,
    ticker            TEXT NOT NULL,
    announcement_date DATE NOT NULL,
    source_id         TEXT NOT NULL UNIQUE,
    raw_text          TEXT,
    parse_result      JSONB,
    parse_type        TEXT,
    confidence        DOUBLE PRECISION,
    processed         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_announcement_parses_ticker ON limits.announcement_parses (ticker, announcement_date);

CREATE TABLE IF NOT EXISTS market.fund_prices (
    ticker     TEXT NOT NULL,
    trade_date DATE NOT NULL,
    open       DOUBLE PRECISION,
    high       DOUBLE PRECISION,
    low        DOUBLE PRECISION,
    close      DOUBLE PRECISION NOT NULL,
    volume     BIGINT,
    PRIMARY KEY (ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS market.fund_nav (
    ticker     TEXT NOT NULL,
    trade_date DATE NOT NULL,
    nav        DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (ticker, trade_date)
);
`

// EnsureSchema creates all schemas, tables and indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
