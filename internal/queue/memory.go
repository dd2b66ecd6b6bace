package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-instance
// deployments. Ordering and position semantics match the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Request
	nextID  int64

	// Now is the clock used for CreatedAt stamps. Overridable in tests.
	Now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, Now: time.Now}
}

// Enqueue inserts a new pending entry.
func (s *MemoryStore) Enqueue(_ context.Context, callerKey, text, voice string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &Request{
		ID:        s.nextID,
		CreatedAt: s.Now(),
		CallerKey: callerKey,
		Text:      text,
		Voice:     voice,
	}
	s.nextID++
	s.entries = append(s.entries, req)

	copied := *req
	return &copied, nil
}

// OldestPending returns the oldest unprocessed entry, or nil if none exist.
func (s *MemoryStore) OldestPending(_ context.Context) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked()
	if len(pending) == 0 {
		return nil, nil
	}
	copied := *pending[0]
	return &copied, nil
}

// MarkProcessed flags the entry as done. Idempotent.
func (s *MemoryStore) MarkProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			e.Processed = true
			return nil
		}
	}
	return nil
}

// CountPending returns the number of unprocessed entries.
func (s *MemoryStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pendingLocked()), nil
}

// PositionOf returns the caller's 1-indexed queue position, or 0 if absent.
func (s *MemoryStore) PositionOf(_ context.Context, callerKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked()

	var own *Request
	for _, e := range pending {
		if e.CallerKey == callerKey {
			own = e
			break
		}
	}
	if own == nil {
		return 0, nil
	}

	ahead := 0
	for _, e := range pending {
		if e.CreatedAt.Before(own.CreatedAt) {
			ahead++
		}
	}
	return ahead + 1, nil
}

// pendingLocked returns unprocessed entries in FIFO order. Callers must
// hold s.mu.
func (s *MemoryStore) pendingLocked() []*Request {
	var pending []*Request
	for _, e := range s.entries {
		if !e.Processed {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending
}
