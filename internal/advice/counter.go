// Package advice implements the core pipeline: prompt construction,
// the model call, and response normalization with canned fallbacks.
package advice

import "sync/atomic"

// DefaultDailyLimit is the shared ceiling on model calls per day.
const DefaultDailyLimit = 50

// Counter tracks model calls against the daily budget. It is shared by
// every front-end in a process and is safe for concurrent use. It
// implements the model client's Tally interface, so it is incremented
// by the client itself, exactly once per parsed HTTP response.
type Counter struct {
	n     atomic.Int64
	limit int64
}

// NewCounter creates a counter with the given ceiling. A non-positive
// limit falls back to DefaultDailyLimit.
func NewCounter(limit int64) *Counter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Counter{limit: limit}
}

// Increment adds one completed call and returns the new count.
func (c *Counter) Increment() int64 { return c.n.Add(1) }

// Count returns the number of calls made so far.
func (c *Counter) Count() int64 { return c.n.Load() }

// Limit returns the configured ceiling.
func (c *Counter) Limit() int64 { return c.limit }

// Exceeded reports whether the budget is spent. Front-ends check this
// before invoking the pipeline and reject new questions outright.
func (c *Counter) Exceeded() bool { return c.n.Load() >= c.limit }

// Reset zeroes the counter (start of a new day).
func (c *Counter) Reset() { c.n.Store(0) }
