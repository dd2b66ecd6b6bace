package queue

import "sync"

// Outcome is what a drained request resolves to: synthesized audio on
// success, or the synthesis error.
type Outcome struct {
	Audio       []byte
	ContentType string
	Err         error
}

// Waiters bridges queued HTTP handlers to the drainer within one process.
//
// A handler using the hold policy registers its request ID and blocks on the
// returned channel until the drainer resolves it. The map lives in process
// memory only: a request enqueued by this instance cannot be resolved by a
// drainer running in another instance. Callers on other instances observe
// completion through the queue-status poll endpoint instead.
type Waiters struct {
	mu      sync.Mutex
	pending map[int64]chan Outcome
}

// NewWaiters creates an empty waiter registry.
func NewWaiters() *Waiters {
	return &Waiters{pending: make(map[int64]chan Outcome)}
}

// Register creates a waiter for the given request ID. The channel receives
// exactly one Outcome when the drainer processes the entry.
func (w *Waiters) Register(id int64) <-chan Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Outcome, 1)
	w.pending[id] = ch
	return ch
}

// Resolve delivers the outcome to a locally-held waiter, if any, and
// removes it. Resolving an unknown ID is a no-op: the waiter may have timed
// out and discarded itself, or belong to another instance.
func (w *Waiters) Resolve(id int64, out Outcome) {
	w.mu.Lock()
	ch, ok := w.pending[id]
	delete(w.pending, id)
	w.mu.Unlock()

	if ok {
		ch <- out
	}
}

// Discard removes a waiter without resolving it. Used when the holding
// handler gives up; the queued entry stays valid for later draining and
// status polling.
func (w *Waiters) Discard(id int64) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

// Len returns the number of registered waiters.
func (w *Waiters) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.pending)
}
