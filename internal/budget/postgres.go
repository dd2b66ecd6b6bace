package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger is a Postgres-backed Ledger. One row per window key; the
// increment is a single upsert so concurrent instances never lose updates.
type PostgresLedger struct {
	pool        *pgxpool.Pool
	limit       int
	granularity Granularity
	now         func() time.Time
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgresLedger creates a ledger enforcing limit operations per window.
func NewPostgresLedger(pool *pgxpool.Pool, limit int, granularity Granularity) *PostgresLedger {
	return &PostgresLedger{
		pool:        pool,
		limit:       limit,
		granularity: granularity,
		now:         time.Now,
	}
}

// EnsureSchema creates the counter table if it doesn't exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tts_usage_counts (
			window_key TEXT PRIMARY KEY,
			count      BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("budget: ensure schema: %w", err)
	}
	return nil
}

// Exceeded reports whether the current window has reached the limit.
func (l *PostgresLedger) Exceeded(ctx context.Context) (bool, error) {
	key := WindowKey(l.now(), l.granularity)

	var count int64
	err := l.pool.QueryRow(ctx,
		`SELECT count FROM tts_usage_counts WHERE window_key = $1`, key,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("budget: read counter: %w", err)
	}

	return count >= int64(l.limit), nil
}

// Record counts one admitted operation in the current window.
func (l *PostgresLedger) Record(ctx context.Context) error {
	key := WindowKey(l.now(), l.granularity)

	_, err := l.pool.Exec(ctx, `
		INSERT INTO tts_usage_counts (window_key, count, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (window_key)
		DO UPDATE SET count = tts_usage_counts.count + 1, updated_at = now()
	`, key)
	if err != nil {
		return fmt.Errorf("budget: record operation: %w", err)
	}
	return nil
}
