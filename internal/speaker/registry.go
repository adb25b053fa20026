package speaker

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType classifies a registry change notification.
type EventType string

const (
	// EventInitialized fires after Initialize merges the detected speaker set.
	EventInitialized EventType = "initialized"

	// EventCommitted fires after a successful atomic commit.
	EventCommitted EventType = "committed"

	// EventPurged fires after the lifecycle manager wipes the registry.
	EventPurged EventType = "purged"
)

// Event is delivered synchronously to every subscriber after a registry
// mutation completes. Entries is a snapshot: all consumers observe the same
// state, never a torn intermediate.
type Event struct {
	Type    EventType
	Entries []Entry
}

// Listener receives registry change events.
type Listener func(Event)

// Registry is the canonical, shared, mutable list of speaker entries for the
// current transcript. It is implemented as a single subscribable store:
// every UI surface reads committed snapshots from here and is notified of
// every mutation before control returns to the mutator, so no per-consumer
// copies can diverge.
//
// Writes only land through [Registry.Initialize], [Registry.Commit], and
// [Registry.Purge]; the per-entry edit lifecycle lives in [EditSession].
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry

	subMu   sync.Mutex
	subs    map[int]Listener
	nextSub int

	// now is the time source for OverriddenAt stamps.
	now func() time.Time
}

// NewRegistry returns an empty, initialised [Registry].
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[int]Listener),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Initialize merges the diarizer's detected speaker IDs with any existing
// entries. Existing entries keep their recorded source and identity fields;
// detected IDs without an existing entry get a fresh auto-detected entry
// with empty name and role. The result is de-duplicated by speaker ID and
// every detected ID is guaranteed exactly one entry.
func (r *Registry) Initialize(detectedIDs []string, existing []Entry) {
	merged := make([]Entry, 0, len(detectedIDs)+len(existing))
	seen := make(map[string]struct{}, len(detectedIDs)+len(existing))

	for _, e := range existing {
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		if !e.Source.IsValid() {
			e.Source = SourceAutoDetected
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}

	for _, id := range detectedIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, Entry{
			ID:     id,
			Source: SourceAutoDetected,
		})
	}

	r.mu.Lock()
	r.entries = merged
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventInitialized, Entries: snapshot})
}

// Entries returns an ordered snapshot of the committed registry.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get retrieves the committed entry for the given speaker ID.
// Returns [ErrNotFound] when the ID is not registered.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("registry: %q: %w", id, ErrNotFound)
}

// Len returns the number of committed entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Commit atomically replaces the whole registry with entries. The set is
// validated as a whole first: on failure nothing changes and the full
// ordered [ValidationErrors] list is returned. A commit that would leave the
// registry empty is rejected with [ErrLastSpeaker].
//
// Auto-detected entries whose name or role now differs from their recorded
// originals are stamped IsOverridden with the commit time; entries edited
// back to their originals lose the stamp again.
//
// All subscribers are notified synchronously before Commit returns.
func (r *Registry) Commit(entries []Entry) error {
	if len(entries) == 0 {
		return ErrLastSpeaker
	}
	if errs := ValidateCommit(entries); len(errs) > 0 {
		return errs
	}

	committed := make([]Entry, len(entries))
	copy(committed, entries)
	now := r.now()
	for i := range committed {
		stampOverride(&committed[i], now)
	}

	r.mu.Lock()
	r.entries = committed
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventCommitted, Entries: snapshot})
	return nil
}

// Purge wipes every entry. It exists solely for the session lifecycle
// manager's expiry and explicit-clear transitions; nothing else may destroy
// the registry wholesale.
func (r *Registry) Purge() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()

	r.notify(Event{Type: EventPurged, Entries: nil})
}

// Counts reports how many detected speakers are mapped and unmapped.
// An entry counts as mapped only if it is one of the originally detected
// speakers and either carries a non-empty committed name or has an active
// override (overridden is the set of speaker IDs with one). Manually added
// entries take part in neither count.
func (r *Registry) Counts(overridden map[string]struct{}) (mapped, unmapped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if !e.IsDetected() {
			continue
		}
		_, hasOverride := overridden[e.ID]
		if strings.TrimSpace(e.Name) != "" || hasOverride {
			mapped++
		} else {
			unmapped++
		}
	}
	return mapped, unmapped
}

// Subscribe registers a listener for registry change events and returns an
// unsubscribe function. Listeners are invoked synchronously, outside the
// registry lock, after every successful mutation.
func (r *Registry) Subscribe(l Listener) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = l
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

// ValidateCommit runs the commit-time checks over a candidate entry set:
// speaker ID uniqueness plus the full per-entry rule set from validate.go.
func ValidateCommit(entries []Entry) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			errs = append(errs, ValidationError{
				SpeakerID: e.ID,
				Field:     FieldName,
				Message:   fmt.Sprintf("duplicate speaker id %q", e.ID),
			})
		}
		seen[e.ID] = struct{}{}
	}
	errs = append(errs, ValidateAll(entries)...)
	return errs
}

// NextOrdinal returns the next unused ordinal suffix (max+1) across the
// given entries' speaker IDs, so a manually added "Speaker N" never collides
// with a detected label. IDs without a trailing integer are ignored.
func NextOrdinal(entries []Entry) int {
	max := 0
	for _, e := range entries {
		fields := strings.Fields(e.ID)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1
}

// snapshotLocked copies the entry slice. Callers must hold r.mu.
func (r *Registry) snapshotLocked() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// notify delivers ev to all current subscribers, synchronously and outside
// the registry lock so listeners can safely read back from the registry.
func (r *Registry) notify(ev Event) {
	r.subMu.Lock()
	listeners := make([]Listener, 0, len(r.subs))
	for _, l := range r.subs {
		listeners = append(listeners, l)
	}
	r.subMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// stampOverride derives the IsOverridden flag for an auto-detected entry by
// comparing its current fields to the recorded originals.
func stampOverride(e *Entry, now time.Time) {
	if e.Source != SourceAutoDetected {
		return
	}
	changed := strings.TrimSpace(e.Name) != strings.TrimSpace(e.OriginalName) ||
		strings.TrimSpace(e.Role) != strings.TrimSpace(e.OriginalRole)
	switch {
	case changed && !e.IsOverridden:
		e.IsOverridden = true
		e.OverriddenAt = now
	case !changed && e.IsOverridden:
		e.IsOverridden = false
		e.OverriddenAt = time.Time{}
	}
}
