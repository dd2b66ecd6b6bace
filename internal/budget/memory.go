package budget

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-memory Ledger for tests and single-instance
// deployments. It provides the same windowing and atomicity guarantees as
// the Postgres ledger, but only within one process.
type MemoryLedger struct {
	mu          sync.Mutex
	counts      map[string]int64
	limit       int
	granularity Granularity

	// Now is the clock used for window-key derivation. Overridable in
	// tests to cross window boundaries deterministically.
	Now func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an in-memory ledger enforcing limit operations per window.
func NewMemoryLedger(limit int, granularity Granularity) *MemoryLedger {
	return &MemoryLedger{
		counts:      make(map[string]int64),
		limit:       limit,
		granularity: granularity,
		Now:         time.Now,
	}
}

// Exceeded reports whether the current window has reached the limit.
func (l *MemoryLedger) Exceeded(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := WindowKey(l.Now(), l.granularity)
	return l.counts[key] >= int64(l.limit), nil
}

// Record counts one admitted operation in the current window.
func (l *MemoryLedger) Record(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := WindowKey(l.Now(), l.granularity)
	l.counts[key]++
	return nil
}

// Count returns the recorded count for the current window.
func (l *MemoryLedger) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counts[WindowKey(l.Now(), l.granularity)]
}
