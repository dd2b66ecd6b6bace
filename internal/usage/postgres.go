package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder writes usage entries to the tts_history table, skipping
// entries the deduper has already seen within the dedup window.
type PostgresRecorder struct {
	pool        *pgxpool.Pool
	deduper     Deduper // nil disables deduplication
	dedupWindow time.Duration
}

var _ Recorder = (*PostgresRecorder)(nil)

// NewPostgresRecorder creates a recorder. deduper may be nil.
func NewPostgresRecorder(pool *pgxpool.Pool, deduper Deduper, dedupWindow time.Duration) *PostgresRecorder {
	return &PostgresRecorder{
		pool:        pool,
		deduper:     deduper,
		dedupWindow: dedupWindow,
	}
}

// EnsureSchema creates the history table if it doesn't exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tts_history (
			id         BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			caller_key TEXT NOT NULL,
			user_id    TEXT,
			text       TEXT NOT NULL,
			voice      TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("usage: ensure schema: %w", err)
	}
	return nil
}

// Record inserts one usage entry. A dedup hit is not an error; a deduper
// failure only disables dedup for this entry.
func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	if r.deduper != nil {
		seen, err := r.deduper.Seen(ctx, Fingerprint(e), r.dedupWindow)
		if err != nil {
			slog.Warn("usage dedup check failed, recording anyway", "error", err)
		} else if seen {
			slog.Debug("skipping duplicate usage entry", "caller_key", e.CallerKey)
			return nil
		}
	}

	var userID any
	if e.UserID != "" {
		userID = e.UserID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tts_history (caller_key, user_id, text, voice)
		VALUES ($1, $2, $3, $4)
	`, e.CallerKey, userID, e.Text, e.Voice)
	if err != nil {
		return fmt.Errorf("usage: record: %w", err)
	}
	return nil
}
