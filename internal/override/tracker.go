// Package override provides the session-scoped log of segment-level speaker
// reassignments.
//
// An override is a lighter-weight correction than formally renaming a
// registry entry: it rebinds every segment carrying a speaker label to a new
// display name without mutating the speaker registry at all. A revert
// neutralises the override and resolution falls back to the registry.
//
// The tracker is owned exclusively by the current session. The only write
// paths are [Tracker.Apply], [Tracker.Revert], and the removal hook
// [Tracker.PurgeSpeaker]; the lifecycle manager alone clears it wholesale on
// expiry or explicit clear. Nothing here is ever written outside the current
// session's memory.
//
// All methods are safe for concurrent use.
package override

import (
	"sync"
	"time"
)

// Action classifies a tracker log record.
type Action string

const (
	// ActionOverride records a segment-level reassignment.
	ActionOverride Action = "override"

	// ActionRevert records the neutralisation of a prior override.
	ActionRevert Action = "revert"
)

// Record is one entry in the tracker's action log.
type Record struct {
	// SpeakerID is the original diarizer label the action targets.
	SpeakerID string `json:"speaker_id"`

	// Act is the kind of action taken.
	Act Action `json:"action"`

	// OriginalValue is the display value in effect before the action.
	OriginalValue string `json:"original_value"`

	// NewValue is the display value in effect after the action.
	// Empty for reverts.
	NewValue string `json:"new_value"`

	// Timestamp is when the action was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Tracker holds the active overrides and the session action log.
// The zero value is not ready to use; call [New].
type Tracker struct {
	mu     sync.RWMutex
	active map[string]Record
	log    []Record

	// now is the record time source.
	now func() time.Time
}

// New returns an initialised, empty [Tracker].
func New() *Tracker {
	return &Tracker{
		active: make(map[string]Record),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply records an override binding speakerID to newName. originalValue is
// the display value the caller resolved before applying, kept so the log can
// show what the override replaced. Applying over an existing override
// replaces it.
func (t *Tracker) Apply(speakerID, originalValue, newName string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		SpeakerID:     speakerID,
		Act:           ActionOverride,
		OriginalValue: originalValue,
		NewValue:      newName,
		Timestamp:     t.now(),
	}
	t.active[speakerID] = rec
	t.log = append(t.log, rec)
	return rec
}

// Revert neutralises the active override for speakerID, restoring resolution
// to the registry or raw-label fallback, and records the revert in the log.
// Reverting a speaker without an active override is a no-op and reports false.
func (t *Tracker) Revert(speakerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.active[speakerID]
	if !ok {
		return false
	}
	delete(t.active, speakerID)
	t.log = append(t.log, Record{
		SpeakerID:     speakerID,
		Act:           ActionRevert,
		OriginalValue: prev.NewValue,
		Timestamp:     t.now(),
	})
	return true
}

// PurgeSpeaker silently discards any active override for speakerID. It backs
// the registry's removal flow: deleting a speaker entry also drops the
// override keyed to it, without logging a revert the user never asked for.
func (t *Tracker) PurgeSpeaker(speakerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, speakerID)
}

// Get returns the active override record for speakerID.
func (t *Tracker) Get(speakerID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.active[speakerID]
	return rec, ok
}

// Overrides returns the active overrides as an O(1)-lookup map keyed by
// speaker ID. The map is a copy; mutating it does not affect the tracker.
func (t *Tracker) Overrides() map[string]Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Record, len(t.active))
	for id, rec := range t.active {
		out[id] = rec
	}
	return out
}

// ActiveIDs returns the set of speaker IDs with an active override, in the
// shape the registry's mapped/unmapped counting expects.
func (t *Tracker) ActiveIDs() map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]struct{}, len(t.active))
	for id := range t.active {
		out[id] = struct{}{}
	}
	return out
}

// HasActive reports whether any override is currently in effect.
func (t *Tracker) HasActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active) > 0
}

// Log returns a copy of the full session action log in recording order.
func (t *Tracker) Log() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, len(t.log))
	copy(out, t.log)
	return out
}

// ClearAll wipes both the active overrides and the action log. Invoked only
// by the session lifecycle manager on expiry or an explicit clear-all.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[string]Record)
	t.log = nil
}
