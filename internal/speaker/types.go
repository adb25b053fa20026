// Package speaker provides the session-scoped speaker identity registry for
// voxlabel.
//
// The upstream diarizer labels speakers generically ("Speaker 1", "Speaker 2",
// …). This package holds the canonical, shared, mutable list of speaker
// entries that binds those labels to human identities (name, role), the pure
// validation rules that keep the list consistent, and the per-entry edit
// lifecycle through which all changes flow.
//
// The [Registry] is the single source of truth for every UI surface (mapping
// dialog, summary panel, transcript panel): consumers read committed
// snapshots and subscribe to change notifications rather than keeping their
// own copies. Mutations only reach the registry through [EditSession.Save],
// which is an atomic validate-then-commit.
//
// Nothing in this package is ever persisted. All state lives in the current
// session's memory and is wiped wholesale by the lifecycle manager.
//
// All store operations are safe for concurrent use.
package speaker

import (
	"errors"
	"time"
)

// Source records how a speaker entry came into existence.
type Source string

const (
	// SourceAutoDetected marks entries seeded from the diarizer's output.
	SourceAutoDetected Source = "auto_detected"

	// SourceManuallyAdded marks entries the user created by hand.
	SourceManuallyAdded Source = "manually_added"
)

// IsValid reports whether s is a recognised entry source.
func (s Source) IsValid() bool {
	return s == SourceAutoDetected || s == SourceManuallyAdded
}

// Entry is a registry record binding a diarizer speaker label to a human
// identity.
type Entry struct {
	// ID is the stable speaker label the diarizer assigned (e.g. "Speaker 1").
	// Unique within a registry.
	ID string `json:"speaker_id"`

	// Name is the human name bound to the label. Empty means unmapped.
	Name string `json:"name"`

	// Role is an optional descriptor ("Interviewer", "Host", …).
	Role string `json:"role"`

	// Source records whether the entry was auto-detected or manually added.
	Source Source `json:"source"`

	// OriginalName and OriginalRole snapshot the values the entry carried
	// when it was first committed, used to detect manual correction.
	OriginalName string `json:"original_name"`
	OriginalRole string `json:"original_role"`

	// IsOverridden is true once a committed edit changed an auto-detected
	// entry away from its original values.
	IsOverridden bool `json:"is_overridden"`

	// OverriddenAt is when IsOverridden first became true. Zero otherwise.
	OverriddenAt time.Time `json:"overridden_at,omitzero"`
}

// IsDetected reports whether the entry is one of the diarizer's original
// speakers. Only detected entries participate in mapped/unmapped counts.
func (e Entry) IsDetected() bool {
	return e.Source == SourceAutoDetected
}

// Field identifies which entry field a validation error refers to.
type Field string

const (
	FieldName Field = "name"
	FieldRole Field = "role"
)

// ValidationError describes a single field-scoped validation failure.
// Errors are ephemeral: recomputed on every relevant input change and never
// persisted.
type ValidationError struct {
	// SpeakerID is the entry the error belongs to.
	SpeakerID string `json:"speaker_id"`

	// Field is the offending field.
	Field Field `json:"field"`

	// Message is the user-facing description.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return string(e.Field) + ": " + e.Message
}

// ValidationErrors is the ordered list of failures produced by a validation
// pass. An empty (or nil) list means valid.
type ValidationErrors []ValidationError

// Error implements the error interface by joining all messages.
func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return msg
}

// ErrNotFound is returned when the requested speaker entry does not exist.
var ErrNotFound = errors.New("speaker entry not found")

// ErrLastSpeaker is returned when a removal would leave the registry empty.
// This is a policy rejection with a user-facing message, not a fault.
var ErrLastSpeaker = errors.New("at least one speaker must remain; the last entry cannot be removed")

// ErrEntryEditing is returned when a global save is attempted while one or
// more entries are still in edit mode.
var ErrEntryEditing = errors.New("confirm or discard the entries still being edited before saving")

// ErrNotEditing is returned by edit-lifecycle operations targeting an entry
// that is not currently in edit mode.
var ErrNotEditing = errors.New("speaker entry is not being edited")
