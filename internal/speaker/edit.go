package speaker

import (
	"fmt"
	"strings"
	"sync"
)

// OverridePurger is the single hook the edit lifecycle needs from the
// override tracker: a confirmed entry removal also discards any segment
// override keyed to that speaker.
type OverridePurger interface {
	PurgeSpeaker(speakerID string)
}

// RemovalPrompt is the confirmation step surfaced by [EditSession.RequestRemove].
// The UI shows DisplayName and calls [EditSession.ConfirmRemove] to proceed.
type RemovalPrompt struct {
	SpeakerID   string `json:"speaker_id"`
	DisplayName string `json:"display_name"`
}

// fieldSnapshot holds the values captured when an entry enters edit mode,
// restored verbatim on cancel.
type fieldSnapshot struct {
	name string
	role string
}

// EditSession is the per-entry edit lifecycle layered over a [Registry].
// It works on a draft copy of the committed entries: adds, removes, and
// field edits accumulate in the draft and only reach the registry through
// [EditSession.Save], an atomic validate-then-commit. [EditSession.Cancel]
// discards everything and leaves the committed registry untouched.
//
// Each entry moves independently through Committed → Editing →
// (Committed | still Editing on rejection). Concurrent edits on different
// entries are allowed; a global save is blocked while any entry is mid-edit
// so every in-flight change is explicitly confirmed or discarded first.
//
// All methods are safe for concurrent use.
type EditSession struct {
	mu        sync.Mutex
	reg       *Registry
	overrides OverridePurger

	draft   []Entry
	editing map[string]fieldSnapshot
	errors  map[string]ValidationErrors
	dirty   bool
}

// EditOption configures an [EditSession].
type EditOption func(*EditSession)

// WithOverridePurger wires the override tracker hook invoked when a removal
// is confirmed. Without it, confirmed removals leave overrides untouched.
func WithOverridePurger(p OverridePurger) EditOption {
	return func(s *EditSession) {
		s.overrides = p
	}
}

// NewEditSession opens an editing session over reg, seeding the draft from
// the currently committed entries.
func NewEditSession(reg *Registry, opts ...EditOption) *EditSession {
	s := &EditSession{
		reg:     reg,
		draft:   reg.Entries(),
		editing: make(map[string]fieldSnapshot),
		errors:  make(map[string]ValidationErrors),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Draft returns an ordered snapshot of the working entry set.
func (s *EditSession) Draft() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.draft))
	copy(out, s.draft)
	return out
}

// AddSpeaker creates a manually added entry with an empty name and role and
// inserts it at position 0 so new speakers surface at the top of the list.
// The new ID uses the next unused ordinal suffix across the whole draft
// (detected labels included) to avoid collisions. The draft is marked as
// having pending changes.
func (s *EditSession) AddSpeaker() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		ID:     fmt.Sprintf("Speaker %d", NextOrdinal(s.draft)),
		Source: SourceManuallyAdded,
	}
	s.draft = append([]Entry{entry}, s.draft...)
	s.dirty = true
	return entry
}

// RequestRemove begins the two-phase removal of an entry. It returns the
// confirmation prompt carrying the entry's display name, or
// [ErrLastSpeaker] when the draft holds a single entry — the registry must
// never drop to zero.
func (s *EditSession) RequestRemove(id string) (RemovalPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return RemovalPrompt{}, fmt.Errorf("edit: %q: %w", id, ErrNotFound)
	}
	if len(s.draft) <= 1 {
		return RemovalPrompt{}, ErrLastSpeaker
	}

	name := strings.TrimSpace(s.draft[idx].Name)
	if name == "" {
		name = s.draft[idx].ID
	}
	return RemovalPrompt{SpeakerID: id, DisplayName: name}, nil
}

// ConfirmRemove completes a removal previously surfaced by RequestRemove.
// The same last-entry guard applies. Any override keyed to the removed
// speaker is purged immediately, even before the draft is saved.
func (s *EditSession) ConfirmRemove(id string) error {
	s.mu.Lock()

	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("edit: %q: %w", id, ErrNotFound)
	}
	if len(s.draft) <= 1 {
		s.mu.Unlock()
		return ErrLastSpeaker
	}

	s.draft = append(s.draft[:idx], s.draft[idx+1:]...)
	delete(s.editing, id)
	delete(s.errors, id)
	s.dirty = true
	purger := s.overrides
	s.mu.Unlock()

	if purger != nil {
		purger.PurgeSpeaker(id)
	}
	return nil
}

// StartEdit puts the entry into edit mode, snapshotting its current name and
// role for a later cancel. Starting an edit that is already in progress is a
// no-op. Edits on different entries may run concurrently.
func (s *EditSession) StartEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("edit: %q: %w", id, ErrNotFound)
	}
	if _, already := s.editing[id]; already {
		return nil
	}
	s.editing[id] = fieldSnapshot{
		name: s.draft[idx].Name,
		role: s.draft[idx].Role,
	}
	return nil
}

// UpdateDraft replaces the entry's draft name and role while it is in edit
// mode and recomputes the cached field errors for real-time feedback.
// Returns [ErrNotEditing] when the entry is not being edited.
func (s *EditSession) UpdateDraft(id, name, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("edit: %q: %w", id, ErrNotFound)
	}
	if _, ok := s.editing[id]; !ok {
		return fmt.Errorf("edit: %q: %w", id, ErrNotEditing)
	}

	s.draft[idx].Name = name
	s.draft[idx].Role = role
	s.cacheErrorsLocked(id, idx)
	return nil
}

// Errors returns the cached validation errors for the entry, recomputed on
// every draft change. Nil means the current draft values are valid.
func (s *EditSession) Errors(id string) ValidationErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors[id]
}

// ConfirmEdit validates the entry's draft values and, on success, takes the
// entry out of edit mode and drops its snapshot. On failure the entry stays
// in edit mode and the ordered error list is both cached and returned, so
// the rest of the registry is never corrupted by a bad draft.
func (s *EditSession) ConfirmEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("edit: %q: %w", id, ErrNotFound)
	}
	if _, ok := s.editing[id]; !ok {
		return fmt.Errorf("edit: %q: %w", id, ErrNotEditing)
	}

	if errs := s.cacheErrorsLocked(id, idx); len(errs) > 0 {
		return errs
	}

	delete(s.editing, id)
	delete(s.errors, id)
	return nil
}

// CancelEdit restores the entry's fields from the snapshot taken at
// StartEdit and clears its edit flag and cached errors.
func (s *EditSession) CancelEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.editing[id]
	if !ok {
		return fmt.Errorf("edit: %q: %w", id, ErrNotEditing)
	}
	if idx := s.indexOf(id); idx >= 0 {
		s.draft[idx].Name = snap.name
		s.draft[idx].Role = snap.role
	}
	delete(s.editing, id)
	delete(s.errors, id)
	return nil
}

// IsEditing reports whether the entry is currently in edit mode.
func (s *EditSession) IsEditing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.editing[id]
	return ok
}

// AnyEditing reports whether any entry is still mid-edit. While true, a
// global save is rejected.
func (s *EditSession) AnyEditing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.editing) > 0
}

// HasPendingChanges reports whether the draft differs from the committed
// registry. Entries currently in edit mode are excluded from the comparison:
// their in-flight field values do not count as unsaved changes until the
// edit is confirmed.
func (s *EditSession) HasPendingChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		return true
	}

	committed := s.reg.Entries()
	if len(committed) != len(s.draft) {
		return true
	}
	byID := make(map[string]Entry, len(committed))
	for _, e := range committed {
		byID[e.ID] = e
	}
	for _, d := range s.draft {
		if _, editing := s.editing[d.ID]; editing {
			continue
		}
		c, ok := byID[d.ID]
		if !ok || c.Name != d.Name || c.Role != d.Role {
			return true
		}
	}
	return false
}

// Save commits the draft atomically: either every entry passes validation
// and the whole set replaces the registry, or nothing changes and the caller
// receives the error. [ErrEntryEditing] is returned while any entry is still
// mid-edit — every in-flight change must be confirmed or discarded first.
//
// On success the draft is refreshed from the committed state (including the
// override stamps derived at commit time) and the pending-changes mark is
// cleared.
func (s *EditSession) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.editing) > 0 {
		return ErrEntryEditing
	}
	if err := s.reg.Commit(s.draft); err != nil {
		return err
	}

	s.draft = s.reg.Entries()
	s.dirty = false
	return nil
}

// Cancel discards all pending adds, removes, and edits, reloading the draft
// from the committed registry.
func (s *EditSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = s.reg.Entries()
	s.editing = make(map[string]fieldSnapshot)
	s.errors = make(map[string]ValidationErrors)
	s.dirty = false
}

// cacheErrorsLocked revalidates the entry at idx against the draft and
// stores the result in the error cache. Must be called with s.mu held.
func (s *EditSession) cacheErrorsLocked(id string, idx int) ValidationErrors {
	errs := ValidateName(s.draft[idx].Name, s.draft, id)
	errs = append(errs, ValidateRole(s.draft[idx].Role, id)...)
	if len(errs) == 0 {
		delete(s.errors, id)
		return nil
	}
	s.errors[id] = errs
	return errs
}

// indexOf returns the draft index of id, or -1. Must be called with s.mu held.
func (s *EditSession) indexOf(id string) int {
	for i, e := range s.draft {
		if e.ID == id {
			return i
		}
	}
	return -1
}
