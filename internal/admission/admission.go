// Package admission implements the decision engine for inbound synthesis
// requests: serve immediately while the global budget lasts, queue when it
// is exhausted, and reject what fails validation or policy.
//
// The controller is an explicit service object constructed once per process
// with injected dependencies. Multiple instances of the daemon may run the
// same logic concurrently; all shared state lives behind the budget ledger
// and queue store, never in this package.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/nadzzz/voxgate/internal/auth"
	"github.com/nadzzz/voxgate/internal/budget"
	"github.com/nadzzz/voxgate/internal/queue"
	"github.com/nadzzz/voxgate/internal/synth"
	"github.com/nadzzz/voxgate/internal/usage"
)

// Policy selects what happens to a request that arrives with the budget
// exhausted.
type Policy string

const (
	// PolicyReject enqueues the request and responds immediately with its
	// queue position; the client polls for completion. Safe under
	// multi-instance deployments.
	PolicyReject Policy = "reject"

	// PolicyHold enqueues the request and keeps the handler waiting for
	// the drainer to resolve it, bounded by HoldTimeout. Only the
	// enqueuing instance can resolve the wait, so this is a
	// single-instance optimization; on timeout the caller falls back to
	// polling.
	PolicyHold Policy = "hold"
)

// Options configure a Controller.
type Options struct {
	MaxTextLength   int
	RequireAuth     bool
	RequireVerified bool
	Policy          Policy
	HoldTimeout     time.Duration

	// Kick, when non-nil, is called after an enqueue to request an
	// immediate drain cycle.
	Kick func()
}

// Request is one inbound synthesis request with its resolved auth facts.
type Request struct {
	CallerKey string
	Text      string
	Voice     string
	Facts     auth.Facts
}

// Outcome classifies an admission result.
type Outcome string

const (
	// OutcomeImmediate: the request was synthesized synchronously (or, under
	// the hold policy, resolved by the drainer before the hold timed out).
	OutcomeImmediate Outcome = "immediate"
	// OutcomeQueued: the request was enqueued and the caller should poll.
	OutcomeQueued Outcome = "queued"
	// OutcomeAlreadyQueued: the caller already has a pending entry.
	OutcomeAlreadyQueued Outcome = "already_queued"
)

// Result is a successful admission decision.
type Result struct {
	Outcome     Outcome
	Audio       []byte
	ContentType string
	Position    int
	QueueLength int
}

// Status is the answer to a queue-status poll.
type Status struct {
	Position            int
	QueueLength         int
	GlobalLimitExceeded bool
}

// Controller is the single decision point for synthesis requests.
type Controller struct {
	ledger   budget.Ledger
	store    queue.Store
	synth    synth.Synthesizer
	waiters  *queue.Waiters
	recorder usage.Recorder // may be nil
	opts     Options
}

// New creates a Controller with the given collaborators.
func New(ledger budget.Ledger, store queue.Store, synthesizer synth.Synthesizer, waiters *queue.Waiters, recorder usage.Recorder, opts Options) *Controller {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 4000
	}
	if opts.Policy == "" {
		opts.Policy = PolicyReject
	}
	if opts.HoldTimeout <= 0 {
		opts.HoldTimeout = 30 * time.Second
	}
	return &Controller{
		ledger:   ledger,
		store:    store,
		synth:    synthesizer,
		waiters:  waiters,
		recorder: recorder,
		opts:     opts,
	}
}

// Admit decides the fate of one synthesis request.
//
// The budget check and the budget record are two store round-trips, so K
// concurrent admissions can overshoot the limit by at most K-1. That is a
// deliberate tradeoff: a couple of extra synthesis calls per window cost
// far less than serializing every admission through a global lock.
func (c *Controller) Admit(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	if c.opts.RequireAuth && !req.Facts.Authenticated {
		return nil, ErrAuthRequired
	}
	if c.opts.RequireVerified && req.Facts.Authenticated && !req.Facts.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	exceeded, err := c.ledger.Exceeded(ctx)
	if err != nil {
		// Fail open: infrastructure trouble should not lock users out.
		slog.Error("budget check failed, admitting", "error", err)
		exceeded = false
	}

	if !exceeded {
		return c.admitImmediate(ctx, req)
	}
	return c.admitQueued(ctx, req)
}

func (c *Controller) validate(req Request) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	if n := utf8.RuneCountInString(req.Text); n > c.opts.MaxTextLength {
		return fmt.Errorf("%w (%d > %d characters)", ErrTextTooLong, n, c.opts.MaxTextLength)
	}
	if req.Voice == "" {
		return ErrMissingVoice
	}
	return nil
}

// admitImmediate records the budget operation and synthesizes synchronously.
func (c *Controller) admitImmediate(ctx context.Context, req Request) (*Result, error) {
	// An increment failure is logged and swallowed: an uncounted
	// admission beats blocking the response path.
	if err := c.ledger.Record(ctx); err != nil {
		slog.Error("budget record failed", "error", err)
	}

	result, err := c.synth.Synthesize(ctx, req.Text, req.Voice)
	if err != nil {
		// The budget operation is not rolled back; the attempt consumed
		// quota, so retry storms can't free-ride on failures.
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	usage.Submit(c.recorder, usage.Entry{
		Text:      req.Text,
		Voice:     req.Voice,
		CallerKey: req.CallerKey,
		UserID:    req.Facts.UserID,
	})

	return &Result{
		Outcome:     OutcomeImmediate,
		Audio:       result.Audio,
		ContentType: result.ContentType,
	}, nil
}

// admitQueued handles a request arriving with the budget exhausted.
func (c *Controller) admitQueued(ctx context.Context, req Request) (*Result, error) {
	// One pending entry per caller: a resubmit reports the existing
	// position instead of queueing again.
	pos, err := c.store.PositionOf(ctx, req.CallerKey)
	if err != nil {
		slog.Error("queue position lookup failed", "caller_key", req.CallerKey, "error", err)
		pos = 0
	}
	if pos > 0 {
		return &Result{
			Outcome:     OutcomeAlreadyQueued,
			Position:    pos,
			QueueLength: c.queueLength(ctx),
		}, nil
	}

	entry, err := c.store.Enqueue(ctx, req.CallerKey, req.Text, req.Voice)
	if err != nil {
		// The caller must not believe they were queued when they weren't.
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var wait <-chan queue.Outcome
	if c.opts.Policy == PolicyHold {
		wait = c.waiters.Register(entry.ID)
	}

	if c.opts.Kick != nil {
		c.opts.Kick()
	}

	if c.opts.Policy != PolicyHold {
		length := c.queueLength(ctx)
		position, err := c.store.PositionOf(ctx, req.CallerKey)
		if err != nil || position == 0 {
			// The new entry is always last.
			position = length
		}
		return &Result{
			Outcome:     OutcomeQueued,
			Position:    position,
			QueueLength: length,
		}, nil
	}

	return c.hold(ctx, entry.ID, wait)
}

// hold blocks until the drainer resolves the entry, the hold timeout fires,
// or the caller goes away. The queued entry stays valid after a timeout;
// the transport reports its position via a follow-up status poll.
func (c *Controller) hold(ctx context.Context, id int64, wait <-chan queue.Outcome) (*Result, error) {
	timer := time.NewTimer(c.opts.HoldTimeout)
	defer timer.Stop()

	select {
	case out := <-wait:
		if out.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSynthesis, out.Err)
		}
		return &Result{
			Outcome:     OutcomeImmediate,
			Audio:       out.Audio,
			ContentType: out.ContentType,
		}, nil

	case <-timer.C:
		c.waiters.Discard(id)
		return nil, ErrQueueTimeout

	case <-ctx.Done():
		c.waiters.Discard(id)
		return nil, ctx.Err()
	}
}

// QueueStatus answers a poll for the caller's queue position. Store read
// errors degrade to an empty status so polling UIs keep working.
func (c *Controller) QueueStatus(ctx context.Context, callerKey string) Status {
	var st Status

	exceeded, err := c.ledger.Exceeded(ctx)
	if err != nil {
		slog.Error("budget check failed in status poll", "error", err)
	} else {
		st.GlobalLimitExceeded = exceeded
	}

	pos, err := c.store.PositionOf(ctx, callerKey)
	if err != nil {
		slog.Error("queue position lookup failed in status poll", "caller_key", callerKey, "error", err)
	} else {
		st.Position = pos
	}

	length, err := c.store.CountPending(ctx)
	if err != nil {
		slog.Error("queue length lookup failed in status poll", "error", err)
	} else {
		st.QueueLength = length
	}

	return st
}

func (c *Controller) queueLength(ctx context.Context) int {
	n, err := c.store.CountPending(ctx)
	if err != nil {
		slog.Error("queue length lookup failed", "error", err)
		return 0
	}
	return n
}
