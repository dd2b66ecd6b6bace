// Package queue provides the durable FIFO of synthesis requests that could
// not be admitted immediately, and the background drainer that processes
// them as budget becomes available.
package queue

import (
	"context"
	"time"
)

// Request is one queued synthesis request.
type Request struct {
	// ID is assigned by the store and is strictly increasing; it breaks
	// ordering ties between entries with equal CreatedAt.
	ID        int64
	CreatedAt time.Time
	CallerKey string
	Text      string
	Voice     string
	Processed bool
}

// Store is the shared, ordered collection of pending requests. FIFO order
// is defined by CreatedAt ascending with ID as tie-breaker, regardless of
// which process performed the enqueue.
type Store interface {
	// Enqueue inserts a new pending entry and returns it with its
	// assigned ID and timestamp.
	Enqueue(ctx context.Context, callerKey, text, voice string) (*Request, error)

	// OldestPending returns the unprocessed entry with the earliest
	// CreatedAt, or nil if the queue is empty.
	OldestPending(ctx context.Context) (*Request, error)

	// MarkProcessed flags the entry as done. Idempotent: marking an
	// already-processed entry is not an error.
	MarkProcessed(ctx context.Context, id int64) error

	// CountPending returns the number of unprocessed entries.
	CountPending(ctx context.Context) (int, error)

	// PositionOf returns the caller's 1-indexed position in the queue,
	// or 0 if the caller has no pending entry. The position is one plus
	// the number of pending entries strictly older than the caller's
	// oldest pending entry.
	PositionOf(ctx context.Context, callerKey string) (int, error)
}
