package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS baseline_snapshots (
    id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    payload    JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS netflow_alerts (
    id               BIGSERIAL PRIMARY KEY,
    cycle_id         TEXT        NOT NULL,
    symbol           TEXT        NOT NULL,
    reason           TEXT        NOT NULL,
    current_value    NUMERIC     NOT NULL,
    baseline_average NUMERIC     NOT NULL DEFAULT 0,
    has_baseline     BOOLEAN     NOT NULL DEFAULT FALSE,
    observed_at      TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (cycle_id, symbol)
);

CREATE INDEX IF NOT EXISTS netflow_alerts_created_at_idx ON netflow_alerts (created_at DESC);
`

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
