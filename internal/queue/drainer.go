package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nadzzz/voxgate/internal/budget"
	"github.com/nadzzz/voxgate/internal/synth"
	"github.com/nadzzz/voxgate/internal/usage"
)

// Drainer converts queued requests into completed syntheses as budget
// becomes available.
//
// One cycle handles at most one entry: check budget, fetch the oldest
// pending request, record the budget operation, synthesize, mark the entry
// processed, and resolve any locally-held waiter. A failed synthesis still
// marks the entry processed so a poison entry can never block the queue;
// the waiting caller, if held by this process, receives the error.
type Drainer struct {
	store    Store
	ledger   budget.Ledger
	synth    synth.Synthesizer
	waiters  *Waiters
	recorder usage.Recorder // may be nil
	interval time.Duration

	kick     chan struct{}
	draining atomic.Bool
}

// NewDrainer creates a drainer that ticks at the given interval.
func NewDrainer(store Store, ledger budget.Ledger, synthesizer synth.Synthesizer, waiters *Waiters, recorder usage.Recorder, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Drainer{
		store:    store,
		ledger:   ledger,
		synth:    synthesizer,
		waiters:  waiters,
		recorder: recorder,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Run executes drain cycles until the context is cancelled. It blocks and
// is intended to run on its own goroutine.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("queue drainer started", "interval", d.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("queue drainer stopped")
			return
		case <-ticker.C:
			d.DrainCycle(ctx)
		case <-d.kick:
			d.DrainCycle(ctx)
		}
	}
}

// Kick requests an immediate drain cycle, e.g. right after an enqueue.
// Non-blocking; coalesces with an already-pending kick.
func (d *Drainer) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// DrainCycle runs one cycle. Only one cycle is ever in flight per process;
// overlapping calls return immediately.
func (d *Drainer) DrainCycle(ctx context.Context) {
	if !d.draining.CompareAndSwap(false, true) {
		return
	}
	defer d.draining.Store(false)

	exceeded, err := d.ledger.Exceeded(ctx)
	if err != nil {
		// Fail open: an unreadable counter should not stall the queue.
		slog.Error("drain budget check failed", "error", err)
	}
	if exceeded {
		return
	}

	req, err := d.store.OldestPending(ctx)
	if err != nil {
		slog.Error("drain fetch failed", "error", err)
		return
	}
	if req == nil {
		return
	}

	logger := slog.With("request_id", req.ID, "caller_key", req.CallerKey)

	if err := d.ledger.Record(ctx); err != nil {
		logger.Error("drain budget record failed", "error", err)
	}

	result, synthErr := d.synth.Synthesize(ctx, req.Text, req.Voice)

	// Mark processed whether synthesis worked or not. If this fails the
	// entry is re-fetched next tick; an occasional duplicate synthesis is
	// preferable to a stuck queue.
	if err := d.store.MarkProcessed(ctx, req.ID); err != nil {
		logger.Error("drain mark processed failed", "error", err)
	}

	if synthErr != nil {
		logger.Error("drained synthesis failed", "error", synthErr)
		d.waiters.Resolve(req.ID, Outcome{Err: synthErr})
		return
	}

	logger.Info("drained queued request", "audio_bytes", len(result.Audio))
	d.waiters.Resolve(req.ID, Outcome{Audio: result.Audio, ContentType: result.ContentType})

	usage.Submit(d.recorder, usage.Entry{
		Text:      req.Text,
		Voice:     req.Voice,
		CallerKey: req.CallerKey,
	})
}
