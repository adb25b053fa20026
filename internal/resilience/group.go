package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every provider in a [Group] failed or sat
// behind an open breaker.
var ErrExhausted = errors.New("all providers exhausted")

// GroupConfig configures the breaker created for each provider in a [Group].
type GroupConfig struct {
	Breaker BreakerConfig
}

// member pairs one provider with its dedicated breaker.
type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group chains a primary and any number of standby providers of the same
// type. Calls go to the first member whose breaker admits them; a member
// failure moves on to the next in registration order.
//
// Membership is fixed after construction; Call is safe for concurrent use.
type Group[T any] struct {
	members []member[T]
	cfg     GroupConfig
}

// NewGroup creates a [Group] with primary as the first member.
func NewGroup[T any](primary T, name string, cfg GroupConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.add(name, primary)
	return g
}

// AddStandby appends a standby provider, tried after every earlier member.
func (g *Group[T]) AddStandby(name string, standby T) {
	g.add(name, standby)
}

func (g *Group[T]) add(name string, value T) {
	cfg := g.cfg.Breaker
	cfg.Name = name
	g.members = append(g.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Call invokes fn against members in order until one succeeds. Members with
// an open breaker are skipped. When everything fails the last error is
// wrapped in [ErrExhausted].
//
// Call is a package-level function because Go methods cannot introduce their
// own type parameters for the result.
func Call[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(m.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
