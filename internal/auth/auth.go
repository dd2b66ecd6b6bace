// Package auth resolves caller identity facts consumed by the admission
// controller. Authentication itself happens upstream (the site's auth SDK);
// this package only looks up the already-synced verification state.
package auth

import "context"

// Facts are the authorization inputs to an admission decision.
type Facts struct {
	Authenticated bool
	EmailVerified bool
	UserID        string
}

// Verifier resolves a user ID to authorization facts. An empty user ID
// yields anonymous (unauthenticated) facts.
type Verifier interface {
	FactsFor(ctx context.Context, userID string) Facts
}

// StaticVerifier returns fixed facts per user ID. Used in tests and when
// no user store is configured (every authenticated caller counts as
// verified).
type StaticVerifier struct {
	// Verified maps user IDs to their verification state. A nil map
	// treats every non-empty user ID as verified.
	Verified map[string]bool
}

var _ Verifier = (*StaticVerifier)(nil)

// FactsFor resolves facts from the static map.
func (v *StaticVerifier) FactsFor(_ context.Context, userID string) Facts {
	if userID == "" {
		return Facts{}
	}
	if v.Verified == nil {
		return Facts{Authenticated: true, EmailVerified: true, UserID: userID}
	}
	return Facts{
		Authenticated: true,
		EmailVerified: v.Verified[userID],
		UserID:        userID,
	}
}
