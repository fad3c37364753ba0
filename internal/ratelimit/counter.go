// Package ratelimit throttles repeated log lines such as a status source that
// keeps failing every poll tick, or a stream of precision-mismatch warnings.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter tracks a total count and the last time a log was emitted.
// It is safe for concurrent use.
type Counter struct {
	interval time.Duration
	now      func() time.Time
	lastLog  atomic.Int64
	total    atomic.Uint64
}

// NewCounter constructs a Counter that allows a log at most once per interval.
// A zero or negative interval disables throttling (always logs).
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval, now: time.Now}
}

// Inc increments the counter and reports whether logging is allowed. The
// returned total includes suppressed events so the emitted line can say how
// many were folded into it.
func (c *Counter) Inc() (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}
	now := c.now().UTC().UnixNano()
	last := c.lastLog.Load()
	if last != 0 && now-last < c.interval.Nanoseconds() {
		return total, false
	}
	if c.lastLog.CompareAndSwap(last, now) {
		return total, true
	}
	return total, false
}

// Total returns the number of Inc calls so far.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}

// Keyed holds one Counter per key, created on first use.
type Keyed struct {
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
	counters map[string]*Counter
}

// NewKeyed builds a Keyed limiter sharing one interval.
func NewKeyed(interval time.Duration) *Keyed {
	return &Keyed{interval: interval, now: time.Now, counters: make(map[string]*Counter)}
}

// Inc increments the counter for key and reports whether logging is allowed.
func (k *Keyed) Inc(key string) (uint64, bool) {
	if k == nil {
		return 0, true
	}
	k.mu.Lock()
	c, ok := k.counters[key]
	if !ok {
		c = &Counter{interval: k.interval, now: k.now}
		k.counters[key] = c
	}
	k.mu.Unlock()
	return c.Inc()
}
