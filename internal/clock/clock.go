// Package clock supplies millisecond timestamps for action bookkeeping.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	NowMillis() int64
}

// Monotonic wraps the wall clock and never goes backwards, so a clock
// rollback can't reorder actions enqueued by this process.
type Monotonic struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{now: time.Now}
}

func (c *Monotonic) NowMillis() int64 {
	ms := c.now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	if ms < c.last {
		ms = c.last
	}
	c.last = ms
	return ms
}

// Manual is a settable clock for tests.
type Manual struct {
	mu  sync.Mutex
	now int64
}

func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

func (c *Manual) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Manual) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ms
}

func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d.Milliseconds()
}
