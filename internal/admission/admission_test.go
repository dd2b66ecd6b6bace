package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voxgate/internal/auth"
	"github.com/nadzzz/voxgate/internal/budget"
	"github.com/nadzzz/voxgate/internal/queue"
	"github.com/nadzzz/voxgate/internal/synth/mock"
	"github.com/nadzzz/voxgate/internal/usage"
)

type fixture struct {
	ledger   *budget.MemoryLedger
	store    *queue.MemoryStore
	synth    *mock.Synthesizer
	waiters  *queue.Waiters
	recorder *usage.MemoryRecorder
}

func newFixture(limit int) *fixture {
	return &fixture{
		ledger:   budget.NewMemoryLedger(limit, budget.PerMinute),
		store:    queue.NewMemoryStore(),
		synth:    mock.New(),
		waiters:  queue.NewWaiters(),
		recorder: usage.NewMemoryRecorder(),
	}
}

func (f *fixture) controller(opts Options) *Controller {
	return New(f.ledger, f.store, f.synth, f.waiters, f.recorder, opts)
}

func verifiedFacts(userID string) auth.Facts {
	return auth.Facts{Authenticated: true, EmailVerified: true, UserID: userID}
}

func TestAdmitValidation(t *testing.T) {
	f := newFixture(5)
	c := f.controller(Options{})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty text", Request{CallerKey: "c", Voice: "nova"}, ErrEmptyText},
		{"missing voice", Request{CallerKey: "c", Text: "hello"}, ErrMissingVoice},
		{"too long", Request{CallerKey: "c", Text: strings.Repeat("a", 4001), Voice: "nova"}, ErrTextTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Admit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Nothing was counted or queued for rejected requests.
	assert.Equal(t, int64(0), f.ledger.Count())
	count, err := f.store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAdmitTextLengthCountsRunes(t *testing.T) {
	f := newFixture(5)
	c := f.controller(Options{MaxTextLength: 10})

	// 10 multi-byte runes are within a 10-character limit.
	res, err := c.Admit(context.Background(), Request{
		CallerKey: "c",
		Text:      strings.Repeat("ü", 10),
		Voice:     "nova",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImmediate, res.Outcome)

	_, err = c.Admit(context.Background(), Request{
		CallerKey: "c",
		Text:      strings.Repeat("ü", 11),
		Voice:     "nova",
	})
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestAdmitRequiresVerifiedEmail(t *testing.T) {
	f := newFixture(5)
	c := f.controller(Options{RequireVerified: true})

	_, err := c.Admit(context.Background(), Request{
		CallerKey: "c",
		Text:      "hello",
		Voice:     "nova",
		Facts:     auth.Facts{Authenticated: true, EmailVerified: false, UserID: "u1"},
	})
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Equal(t, "email_not_verified", CodeOf(err))

	// The rejection happens before any budget or queue touch.
	assert.Equal(t, int64(0), f.ledger.Count())
	assert.Equal(t, int64(0), f.synth.Calls())
}

func TestAdmitRequireAuth(t *testing.T) {
	f := newFixture(5)
	c := f.controller(Options{RequireAuth: true})

	_, err := c.Admit(context.Background(), Request{
		CallerKey: "c", Text: "hello", Voice: "nova",
	})
	assert.ErrorIs(t, err, ErrAuthRequired)

	res, err := c.Admit(context.Background(), Request{
		CallerKey: "c", Text: "hello", Voice: "nova", Facts: verifiedFacts("u1"),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImmediate, res.Outcome)
}

func TestAdmitImmediate(t *testing.T) {
	f := newFixture(5)
	c := f.controller(Options{})

	res, err := c.Admit(context.Background(), Request{
		CallerKey: "caller-a",
		Text:      "hello",
		Voice:     "nova",
		Facts:     verifiedFacts("u1"),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeImmediate, res.Outcome)
	assert.Equal(t, []byte("mock-audio:nova:hello"), res.Audio)
	assert.Equal(t, "audio/mpeg", res.ContentType)
	assert.Equal(t, int64(1), f.ledger.Count())

	require.Eventually(t, func() bool {
		return len(f.recorder.Entries()) == 1
	}, time.Second, 10*time.Millisecond)
	entry := f.recorder.Entries()[0]
	assert.Equal(t, "caller-a", entry.CallerKey)
	assert.Equal(t, "u1", entry.UserID)
}

func TestAdmitSynthesisFailureConsumesBudget(t *testing.T) {
	f := newFixture(5)
	f.synth.Err = errors.New("backend down")
	c := f.controller(Options{})

	_, err := c.Admit(context.Background(), Request{
		CallerKey: "c", Text: "hello", Voice: "nova",
	})
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.Equal(t, "synthesis_failed", CodeOf(err))

	// The attempt counted against the budget; failures don't refund quota.
	assert.Equal(t, int64(1), f.ledger.Count())
}

func TestAdmitQueuesWhenBudgetExhausted(t *testing.T) {
	f := newFixture(0)
	kicked := 0
	c := f.controller(Options{Kick: func() { kicked++ }})

	res, err := c.Admit(context.Background(), Request{
		CallerKey: "caller-a", Text: "hello", Voice: "nova",
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, 1, res.QueueLength)
	assert.Equal(t, 1, kicked)
	assert.Equal(t, int64(0), f.synth.Calls())
}

func TestAdmitReportsExistingQueueEntry(t *testing.T) {
	f := newFixture(0)
	c := f.controller(Options{})
	ctx := context.Background()

	now := time.Date(2026, time.September, 1, 13, 5, 0, 0, time.UTC)
	f.store.Now = func() time.Time { return now }

	_, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "one", Voice: "nova"})
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, err = c.Admit(ctx, Request{CallerKey: "caller-b", Text: "two", Voice: "nova"})
	require.NoError(t, err)

	// A resubmit reports the existing position instead of queueing again.
	res, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "one again", Voice: "nova"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyQueued, res.Outcome)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, 2, res.QueueLength)

	count, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAdmitBudgetSpentExactlyOnSequentialLoad(t *testing.T) {
	f := newFixture(3)
	c := f.controller(Options{})
	ctx := context.Background()

	immediate, queued := 0, 0
	for i := 0; i < 10; i++ {
		res, err := c.Admit(ctx, Request{
			CallerKey: fmt.Sprintf("caller-%d", i),
			Text:      "hello",
			Voice:     "nova",
		})
		require.NoError(t, err)
		switch res.Outcome {
		case OutcomeImmediate:
			immediate++
		case OutcomeQueued:
			queued++
		}
	}

	assert.Equal(t, 3, immediate)
	assert.Equal(t, 7, queued)
	assert.Equal(t, int64(3), f.ledger.Count())
}

func TestAdmitConcurrentOvershootBounded(t *testing.T) {
	const limit = 5
	const callers = 20

	f := newFixture(limit)
	c := f.controller(Options{})
	ctx := context.Background()

	var (
		mu        sync.Mutex
		immediate int
		wg        sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Admit(ctx, Request{
				CallerKey: fmt.Sprintf("caller-%d", i),
				Text:      "hello",
				Voice:     "nova",
			})
			if err != nil {
				return
			}
			if res.Outcome == OutcomeImmediate {
				mu.Lock()
				immediate++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// The check and the record are separate round-trips, so concurrent
	// admissions may overshoot the limit, but they never undershoot it and
	// every immediate admission is counted.
	assert.GreaterOrEqual(t, immediate, limit)
	assert.Equal(t, int64(immediate), f.ledger.Count())
}

func TestAdmitLimitOneWindowRollover(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	now := time.Date(2026, time.September, 1, 13, 5, 0, 0, time.UTC)
	f.ledger.Now = func() time.Time { return now }

	drainer := queue.NewDrainer(f.store, f.ledger, f.synth, f.waiters, f.recorder, time.Hour)
	c := f.controller(Options{})

	// First request fits the budget.
	res, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "one", Voice: "nova"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImmediate, res.Outcome)

	// Second request in the same window queues.
	res, err = c.Admit(ctx, Request{CallerKey: "caller-b", Text: "two", Voice: "nova"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, res.Outcome)

	// The drainer can't serve it until the window rolls over.
	drainer.DrainCycle(ctx)
	count, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	now = now.Add(time.Minute)
	drainer.DrainCycle(ctx)

	count, err = f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	st := c.QueueStatus(ctx, "caller-b")
	assert.Equal(t, 0, st.Position)
}

func TestAdmitHoldTimeout(t *testing.T) {
	f := newFixture(0)
	c := f.controller(Options{
		Policy:      PolicyHold,
		HoldTimeout: 50 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "hello", Voice: "nova"})
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.Equal(t, "rate_limit_exceeded", CodeOf(err))

	// The entry survives the timeout for later draining and polling.
	count, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, f.waiters.Len())
}

func TestAdmitHoldResolvedByDrainer(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	// Exhaust the current window so the request queues.
	require.NoError(t, f.ledger.Record(ctx))

	drainer := queue.NewDrainer(f.store, f.ledger, f.synth, f.waiters, nil, time.Hour)
	c := f.controller(Options{
		Policy:      PolicyHold,
		HoldTimeout: 2 * time.Second,
		Kick: func() {
			// Simulate the window rolling over while the caller holds.
			go func() {
				time.Sleep(20 * time.Millisecond)
				f.ledger.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
				drainer.DrainCycle(ctx)
			}()
		},
	})

	res, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "hello", Voice: "nova"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImmediate, res.Outcome)
	assert.Equal(t, []byte("mock-audio:nova:hello"), res.Audio)

	count, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAdmitHoldCancelledContext(t *testing.T) {
	f := newFixture(0)
	c := f.controller(Options{Policy: PolicyHold, HoldTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "hello", Voice: "nova"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.waiters.Len())
}

func TestQueueStatus(t *testing.T) {
	f := newFixture(0)
	c := f.controller(Options{})
	ctx := context.Background()

	st := c.QueueStatus(ctx, "caller-a")
	assert.True(t, st.GlobalLimitExceeded)
	assert.Equal(t, 0, st.Position)
	assert.Equal(t, 0, st.QueueLength)

	_, err := c.Admit(ctx, Request{CallerKey: "caller-a", Text: "hello", Voice: "nova"})
	require.NoError(t, err)

	st = c.QueueStatus(ctx, "caller-a")
	assert.Equal(t, 1, st.Position)
	assert.Equal(t, 1, st.QueueLength)

	st = c.QueueStatus(ctx, "caller-other")
	assert.Equal(t, 0, st.Position)
	assert.Equal(t, 1, st.QueueLength)
}
