package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlJournal = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id           UUID         PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    role         TEXT         NOT NULL,
    text         TEXT         NOT NULL,
    raw_text     TEXT         NOT NULL DEFAULT '',
    decision     TEXT         NOT NULL DEFAULT '',
    interrupted  BOOLEAN      NOT NULL DEFAULT false,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_session_timestamp
    ON journal_entries (session_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_journal_entries_fts
    ON journal_entries USING GIN (to_tsvector('portuguese', text));
`

// Migrate creates the journal table and its indexes. It is idempotent and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlJournal); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
