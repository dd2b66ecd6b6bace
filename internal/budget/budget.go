// Package budget tracks how many synthesis operations have been admitted
// within the current time window.
//
// The ledger is the single authority for the global request budget. Every
// instance of the daemon shares one counter store, so "has the budget run
// out" and "count one more admission" must both be safe under concurrent
// callers from multiple processes.
package budget

import (
	"context"
	"fmt"
	"time"
)

// Granularity selects the calendar bucket a budget window spans.
type Granularity string

const (
	// PerMinute buckets admissions by UTC calendar minute.
	PerMinute Granularity = "minute"
	// PerDay buckets admissions by UTC calendar day.
	PerDay Granularity = "day"
)

// Ledger answers whether the current window's budget is exhausted and
// records admitted operations against it.
type Ledger interface {
	// Exceeded reports whether the current window has reached the
	// configured limit. A missing counter counts as zero.
	Exceeded(ctx context.Context) (bool, error)

	// Record counts one admitted operation in the current window. The
	// increment is atomic in the backing store; concurrent callers never
	// lose updates.
	Record(ctx context.Context) error
}

// WindowKey derives the counter key for the given instant.
//
// Keys use the UTC calendar with unpadded components, e.g. "2026-9-1-13-5"
// for minute granularity and "2026-9-1" for day granularity. Check and
// record always derive the key the same way, so a request can never be
// checked against one bucket and recorded in another.
func WindowKey(t time.Time, g Granularity) string {
	t = t.UTC()
	if g == PerDay {
		return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
	}
	return fmt.Sprintf("%d-%d-%d-%d-%d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
