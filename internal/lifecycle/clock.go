// Package lifecycle owns the bounded-lifetime session clock for voxlabel.
//
// A session moves Active → Warning → Expired as wall-clock time elapses
// without qualifying user interaction. On expiry the manager — and only the
// manager — purges the speaker registry and the override tracker wholesale.
// The purge is a scheduled, first-class state transition, not an error: a
// just-expired session is "empty and freshly re-initializable", and the next
// qualifying interaction starts a fresh session.
//
// All timing flows through a single [Clock] abstraction so the countdown and
// the warning re-arm timer are deterministic under test and fully
// cancellable on teardown.
package lifecycle

import (
	"sync"
	"time"
)

// Clock is the single time source driving the session countdown.
type Clock interface {
	Now() time.Time
}

// systemClock reads the real wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time [Clock] used in production.
func SystemClock() Clock { return systemClock{} }

// ManualClock is a hand-advanced [Clock] for deterministic time-based tests.
// It is safe for concurrent use.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock returns a [ManualClock] frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{t: start}
}

// Now implements [Clock].
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
