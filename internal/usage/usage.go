// Package usage records completed synthesis requests for analytics and
// abuse tracking.
//
// Recording is strictly fire-and-forget: the response path never waits on
// it, and a recorder failure is logged and dropped. Near-identical entries
// submitted within a short window (same caller, text, and voice) are
// deduplicated on a best-effort basis so client retries don't double-count;
// this is a heuristic, not an exactly-once guarantee.
package usage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// submitTimeout bounds a background Record call so an unhealthy store
// can't pile up goroutines.
const submitTimeout = 10 * time.Second

// Entry is one completed synthesis request.
type Entry struct {
	Text      string
	Voice     string
	CallerKey string
	UserID    string
}

// Recorder persists usage entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Deduper suppresses near-duplicate entries. Seen reports whether the
// fingerprint was already recorded within the dedup window, marking it as
// seen if not.
type Deduper interface {
	Seen(ctx context.Context, fingerprint string, window time.Duration) (bool, error)
}

// Submit records the entry on a background goroutine. It returns
// immediately; failures are logged and dropped. A nil recorder is a no-op.
func Submit(rec Recorder, e Entry) {
	if rec == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		if err := rec.Record(ctx, e); err != nil {
			slog.Error("failed to record usage", "caller_key", e.CallerKey, "error", err)
		}
	}()
}

// Fingerprint derives a stable dedup key for an entry. Only the fields
// that identify a retry of the same request participate; the user ID does
// not, since retries may race a login.
func Fingerprint(e Entry) string {
	h := sha256.New()
	h.Write([]byte(e.CallerKey))
	h.Write([]byte{0})
	h.Write([]byte(e.Voice))
	h.Write([]byte{0})
	h.Write([]byte(e.Text))
	return hex.EncodeToString(h.Sum(nil))
}
