package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresVerifier reads verification state from the tts_users table kept
// in sync by the site's profile-sync job. Lookup failures yield unverified
// facts rather than an error: a missing or unreadable row must not grant
// access, and must not take the endpoint down either.
type PostgresVerifier struct {
	pool *pgxpool.Pool
}

var _ Verifier = (*PostgresVerifier)(nil)

// NewPostgresVerifier creates a verifier on the given pool.
func NewPostgresVerifier(pool *pgxpool.Pool) *PostgresVerifier {
	return &PostgresVerifier{pool: pool}
}

// FactsFor resolves facts for the given user ID.
func (v *PostgresVerifier) FactsFor(ctx context.Context, userID string) Facts {
	if userID == "" {
		return Facts{}
	}

	var verified bool
	err := v.pool.QueryRow(ctx,
		`SELECT email_verified FROM tts_users WHERE user_id = $1`, userID,
	).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return Facts{Authenticated: true, UserID: userID}
	}
	if err != nil {
		slog.Error("verification lookup failed", "user_id", userID, "error", err)
		return Facts{Authenticated: true, UserID: userID}
	}

	return Facts{Authenticated: true, EmailVerified: verified, UserID: userID}
}
