package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryRecorder collects entries in memory. Used in tests and when no
// Postgres store is configured.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]time.Time

	// DedupWindow, when positive, suppresses duplicate fingerprints
	// recorded within the window.
	DedupWindow time.Duration

	// Now is the clock used for dedup bookkeeping. Overridable in tests.
	Now func() time.Time
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		seen: make(map[string]time.Time),
		Now:  time.Now,
	}
}

// Record appends the entry unless it duplicates one within the dedup window.
func (r *MemoryRecorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DedupWindow > 0 {
		fp := Fingerprint(e)
		if at, ok := r.seen[fp]; ok && r.Now().Sub(at) < r.DedupWindow {
			return nil
		}
		r.seen[fp] = r.Now()
	}

	r.entries = append(r.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
