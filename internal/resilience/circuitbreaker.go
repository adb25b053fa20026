// Package resilience shields the labeling session from flaky transcription
// and summarization backends.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// stops hammering a provider that keeps failing. [Group] chains several
// providers of the same kind behind per-provider breakers so a broken primary
// is skipped in favour of a healthy standby. The typed wrappers in this
// package implement the provider interfaces directly, so callers never see
// the failover machinery.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the cool
// down has not elapsed yet.
var ErrOpen = errors.New("provider circuit open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call with [ErrOpen] until the cool down
	// elapses.
	BreakerOpen

	// BreakerHalfOpen lets a bounded number of probe calls through to decide
	// whether the provider has recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trip and recovery defaults.
const (
	defaultTripAfter = 5
	defaultCoolDown  = 30 * time.Second
	defaultProbes    = 3
)

// BreakerConfig tunes a [Breaker]. Zero fields take the package defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// TripAfter is how many consecutive failures open the breaker.
	TripAfter int

	// CoolDown is how long the breaker stays open before probing.
	CoolDown time.Duration

	// Probes is how many half-open calls may run before the breaker decides.
	Probes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.TripAfter <= 0 {
		c.TripAfter = defaultTripAfter
	}
	if c.CoolDown <= 0 {
		c.CoolDown = defaultCoolDown
	}
	if c.Probes <= 0 {
		c.Probes = defaultProbes
	}
	return c
}

// Breaker is a three-state circuit breaker guarding one provider.
type Breaker struct {
	cfg BreakerConfig

	mu         sync.Mutex
	state      BreakerState
	failures   int
	trippedAt  time.Time
	probeCalls int
	probeFails int
}

// NewBreaker returns a closed [Breaker] with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: BreakerClosed}
}

// Do runs fn when the breaker permits it. While open it returns [ErrOpen]
// without invoking fn; in half-open only the probe budget gets through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.trippedAt) < b.cfg.CoolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = BreakerHalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		slog.Info("circuit half-open, probing provider", "name", b.cfg.Name)

	case BreakerHalfOpen:
		if b.probeCalls >= b.cfg.Probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == BreakerHalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure updates failure accounting. Caller holds b.mu.
func (b *Breaker) onFailure(probing bool) {
	b.trippedAt = time.Now()

	if probing {
		b.probeFails++
		b.state = BreakerOpen
		b.failures = b.cfg.TripAfter
		slog.Warn("circuit re-opened, probe failed", "name", b.cfg.Name)
		return
	}

	b.failures++
	if b.failures >= b.cfg.TripAfter {
		b.state = BreakerOpen
		slog.Warn("circuit opened", "name", b.cfg.Name, "consecutive_failures", b.failures)
	}
}

// onSuccess updates success accounting. Caller holds b.mu.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.cfg.Probes {
			b.state = BreakerClosed
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			slog.Info("circuit closed, provider recovered", "name", b.cfg.Name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current mode. An open breaker whose cool down
// has elapsed reports half-open; the actual transition happens on the next
// [Breaker.Do].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.trippedAt) >= b.cfg.CoolDown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
	slog.Info("circuit reset", "name", b.cfg.Name)
}
