// Package testutil holds shared test helpers.
package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced clock for deterministic scheduler tests.
// Ticker channels fire once per Advance call regardless of the requested
// interval.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []chan time.Time
}

// NewFakeClock creates a fake clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Ticker returns a channel that fires on Advance. The interval is ignored.
func (c *FakeClock) Ticker(time.Duration) (<-chan time.Time, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 8)
	c.tickers = append(c.tickers, ch)
	return ch, func() {}
}

// Advance moves the clock forward and fires every ticker once.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]chan time.Time(nil), c.tickers...)
	c.mu.Unlock()

	for _, ch := range tickers {
		select {
		case ch <- now:
		default:
		}
	}
}

// Set jumps the clock to an absolute time and fires every ticker once.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	d := t.Sub(c.now)
	c.mu.Unlock()
	c.Advance(d)
}
