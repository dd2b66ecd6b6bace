package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Postgres-backed Store. Entries are retained after
// processing as usage history; the pending set is always queried through
// the processed flag.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a queue store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the queue table if it doesn't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tts_requests (
			id         BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			caller_key TEXT NOT NULL,
			text       TEXT NOT NULL,
			voice      TEXT NOT NULL,
			processed  BOOLEAN NOT NULL DEFAULT false
		)
	`)
	if err != nil {
		return fmt.Errorf("queue: ensure schema: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS tts_requests_pending_idx
			ON tts_requests (created_at, id) WHERE NOT processed
	`)
	if err != nil {
		return fmt.Errorf("queue: ensure schema: %w", err)
	}
	return nil
}

// Enqueue inserts a new pending entry.
func (s *PostgresStore) Enqueue(ctx context.Context, callerKey, text, voice string) (*Request, error) {
	req := &Request{CallerKey: callerKey, Text: text, Voice: voice}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO tts_requests (caller_key, text, voice, processed)
		VALUES ($1, $2, $3, false)
		RETURNING id, created_at
	`, callerKey, text, voice).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: enqueue: %w", err)
	}

	return req, nil
}

// OldestPending returns the oldest unprocessed entry, or nil if none exist.
func (s *PostgresStore) OldestPending(ctx context.Context) (*Request, error) {
	var req Request
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, caller_key, text, voice, processed
		FROM tts_requests
		WHERE NOT processed
		ORDER BY created_at, id
		LIMIT 1
	`).Scan(&req.ID, &req.CreatedAt, &req.CallerKey, &req.Text, &req.Voice, &req.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: oldest pending: %w", err)
	}
	return &req, nil
}

// MarkProcessed flags the entry as done.
func (s *PostgresStore) MarkProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tts_requests SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("queue: mark processed: %w", err)
	}
	return nil
}

// CountPending returns the number of unprocessed entries.
func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tts_requests WHERE NOT processed`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: count pending: %w", err)
	}
	return n, nil
}

// PositionOf returns the caller's 1-indexed queue position, or 0 if absent.
func (s *PostgresStore) PositionOf(ctx context.Context, callerKey string) (int, error) {
	var oldest Request
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at FROM tts_requests
		WHERE caller_key = $1 AND NOT processed
		ORDER BY created_at, id
		LIMIT 1
	`, callerKey).Scan(&oldest.ID, &oldest.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("queue: position of: %w", err)
	}

	var ahead int
	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM tts_requests
		WHERE NOT processed AND created_at < $1
	`, oldest.CreatedAt).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("queue: position of: %w", err)
	}

	return ahead + 1, nil
}
