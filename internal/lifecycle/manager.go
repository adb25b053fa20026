package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State string

const (
	// StateActive means the session has remaining time above the warning
	// threshold.
	StateActive State = "active"

	// StateWarning means remaining time is at or below the warning
	// threshold but above zero.
	StateWarning State = "warning"

	// StateExpired means the budget ran out and all session data has been
	// purged. The state is sticky until the next qualifying interaction.
	StateExpired State = "expired"
)

// Default timing values, applied when the corresponding Config field is zero.
const (
	DefaultTimeoutBudget    = 30 * time.Minute
	DefaultWarningThreshold = 5 * time.Minute
	DefaultWarningRearm     = 2 * time.Minute
	defaultTickInterval     = time.Second
)

// EventType classifies a lifecycle notification.
type EventType string

const (
	// EventWarning fires on entering Warning, and again every re-arm
	// interval while a dismissed warning remains unresolved.
	EventWarning EventType = "warning"

	// EventExpired fires once when the session expires and its data is
	// purged.
	EventExpired EventType = "expired"

	// EventReset fires when a fresh session replaces an expired or
	// explicitly cleared one.
	EventReset EventType = "reset"
)

// Event is delivered to lifecycle subscribers.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"session_id"`
	Remaining time.Duration `json:"remaining"`
}

// Status is the externally visible session state.
type Status struct {
	SessionID string        `json:"session_id"`
	State     State         `json:"state"`
	Remaining time.Duration `json:"remaining"`
	StartedAt time.Time     `json:"started_at"`
}

// RemainingMinutes reports the remaining budget in whole minutes, rounded up.
func (s Status) RemainingMinutes() int {
	if s.Remaining <= 0 {
		return 0
	}
	return int((s.Remaining + time.Minute - 1) / time.Minute)
}

// Config holds the session timing parameters.
type Config struct {
	// TimeoutBudget is how long the session lives without qualifying
	// interaction.
	TimeoutBudget time.Duration

	// WarningThreshold is the remaining time at which the session enters
	// Warning.
	WarningThreshold time.Duration

	// WarningRearm is how long after a dismissed warning the notification
	// re-surfaces if the session is still in Warning.
	WarningRearm time.Duration

	// TickInterval is the evaluation period of the background loop.
	TickInterval time.Duration
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.TimeoutBudget <= 0 {
		c.TimeoutBudget = DefaultTimeoutBudget
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = DefaultWarningThreshold
	}
	if c.WarningRearm <= 0 {
		c.WarningRearm = DefaultWarningRearm
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	return c
}

// Manager is the wall-clock state machine owning the session's bounded
// lifetime. It is the only component authorised to purge the speaker
// registry and override tracker wholesale; the purge hook wired at
// construction is invoked unconditionally on expiry and cannot be
// intercepted or cancelled by any other component.
//
// State is evaluated lazily from the [Clock] on every read and periodically
// by [Manager.Run], so transitions fire even while no consumer is polling.
//
// All methods are safe for concurrent use.
type Manager struct {
	clock Clock
	cfg   Config
	purge func()

	mu           sync.Mutex
	state        State
	sessionID    string
	startedAt    time.Time
	lastActivity time.Time
	extension    time.Duration
	lastWarned   time.Time
	dismissed    bool

	// pendingEvents queues notifications raised while m.mu is held;
	// drainNotices delivers them outside the lock so listeners can call
	// back into the manager.
	pendingEvents []Event

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock replaces the time source. Tests inject a [ManualClock].
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithPurge wires the hook that empties the speaker registry and override
// tracker. It runs on expiry and on [Manager.Clear].
func WithPurge(fn func()) Option {
	return func(m *Manager) {
		m.purge = fn
	}
}

// NewManager creates a [Manager] with a fresh Active session.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		clock: SystemClock(),
		cfg:   cfg.withDefaults(),
		purge: func() {},
		subs:  make(map[int]func(Event)),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.mu.Lock()
	m.startSessionLocked()
	m.mu.Unlock()
	return m
}

// Run drives periodic state evaluation until ctx is cancelled or
// [Manager.Stop] is called, so expiry purges fire on schedule even when no
// consumer is reading. The loop owns no state: every tick goes through the
// same evaluation as a direct [Manager.Status] call.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.Status()
		}
	}
}

// Stop cancels the background loop. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

// Status evaluates and returns the current session state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := m.evaluateLocked()
	m.mu.Unlock()

	m.drainNotices()
	return st
}

// Touch records a qualifying user interaction: the activity timestamp
// resets, a Warning session returns to Active, and an Expired session is
// replaced by a fresh one (its data was already purged at expiry).
func (m *Manager) Touch() {
	m.mu.Lock()
	m.evaluateLocked()

	if m.state == StateExpired {
		m.startSessionLocked()
		m.queueNoticeLocked(EventReset)
	} else {
		m.lastActivity = m.clock.Now()
		if m.state == StateWarning {
			m.state = StateActive
			m.dismissed = false
			m.lastWarned = time.Time{}
		}
	}
	m.mu.Unlock()

	m.drainNotices()
}

// Extend adds d to the session's effective budget and re-evaluates: an
// extension during Warning returns the session to Active when the new
// remaining time clears the threshold. The extension lasts until the
// session is reset.
func (m *Manager) Extend(d time.Duration) Status {
	m.mu.Lock()
	if d > 0 {
		st := m.evaluateLocked()
		if st.State == StateExpired {
			// Too late: expiry already purged; start fresh instead.
			m.startSessionLocked()
			m.queueNoticeLocked(EventReset)
		} else {
			m.extension += d
			if st := m.evaluateLocked(); st.State == StateActive {
				m.dismissed = false
				m.lastWarned = time.Time{}
			}
			slog.Info("session extended", "session_id", m.sessionID, "by", d)
		}
	}
	st := m.evaluateLocked()
	m.mu.Unlock()

	m.drainNotices()
	return st
}

// Clear immediately purges all session data and starts a fresh Active
// session — functionally an instantaneous Expired → reinitialised-Active
// transition, triggered by the user instead of the clock.
func (m *Manager) Clear() Status {
	m.mu.Lock()
	m.purge()
	slog.Info("session data cleared", "session_id", m.sessionID)
	m.startSessionLocked()
	m.queueNoticeLocked(EventReset)
	st := m.evaluateLocked()
	m.mu.Unlock()

	m.drainNotices()
	return st
}

// Dismiss acknowledges the current warning notification without resolving
// the session. The warning re-surfaces after the configured re-arm interval
// if the session is still in Warning by then.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateWarning {
		m.dismissed = true
	}
}

// Subscribe registers a listener for lifecycle events and returns an
// unsubscribe function.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// ─── Internal state machine ──────────────────────────────────────────────────

// queueNoticeLocked appends an event for later delivery. Must hold m.mu.
func (m *Manager) queueNoticeLocked(t EventType) {
	remaining := m.remainingLocked()
	if remaining < 0 {
		remaining = 0
	}
	m.pendingEvents = append(m.pendingEvents, Event{
		Type:      t,
		SessionID: m.sessionID,
		Remaining: remaining,
	})
}

// startSessionLocked resets to a fresh Active session. Must hold m.mu.
func (m *Manager) startSessionLocked() {
	now := m.clock.Now()
	m.sessionID = uuid.NewString()
	m.startedAt = now
	m.lastActivity = now
	m.extension = 0
	m.state = StateActive
	m.dismissed = false
	m.lastWarned = time.Time{}
	slog.Info("session started", "session_id", m.sessionID, "budget", m.cfg.TimeoutBudget)
}

// remainingLocked computes the remaining budget. Must hold m.mu.
func (m *Manager) remainingLocked() time.Duration {
	deadline := m.lastActivity.Add(m.cfg.TimeoutBudget + m.extension)
	return deadline.Sub(m.clock.Now())
}

// evaluateLocked advances the state machine against the clock and returns
// the resulting status. Transitions are strictly monotonic with elapsed
// time: Active → Warning → Expired. Must hold m.mu.
func (m *Manager) evaluateLocked() Status {
	if m.state != StateExpired {
		remaining := m.remainingLocked()
		now := m.clock.Now()

		switch {
		case remaining <= 0:
			m.state = StateExpired
			m.purge()
			slog.Info("session expired, data purged", "session_id", m.sessionID)
			m.queueNoticeLocked(EventExpired)

		case remaining <= m.cfg.WarningThreshold:
			if m.state != StateWarning {
				m.state = StateWarning
				m.lastWarned = now
				m.queueNoticeLocked(EventWarning)
			} else if m.dismissed && now.Sub(m.lastWarned) >= m.cfg.WarningRearm {
				m.lastWarned = now
				m.dismissed = false
				m.queueNoticeLocked(EventWarning)
			}

		default:
			m.state = StateActive
		}
	}

	remaining := m.remainingLocked()
	if m.state == StateExpired || remaining < 0 {
		remaining = 0
	}
	return Status{
		SessionID: m.sessionID,
		State:     m.state,
		Remaining: remaining,
		StartedAt: m.startedAt,
	}
}

// drainNotices delivers queued events to subscribers outside m.mu.
func (m *Manager) drainNotices() {
	m.mu.Lock()
	events := m.pendingEvents
	m.pendingEvents = nil
	m.mu.Unlock()

	if len(events) == 0 {
		return
	}

	m.subMu.Lock()
	listeners := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}
