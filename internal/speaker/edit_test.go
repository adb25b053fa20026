package speaker_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/voxlabel/voxlabel/internal/speaker"
)

// recordingPurger implements speaker.OverridePurger and records calls.
type recordingPurger struct {
	mu     sync.Mutex
	purged []string
}

func (p *recordingPurger) PurgeSpeaker(speakerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, speakerID)
}

func newEditSession(t *testing.T, ids ...string) (*speaker.Registry, *speaker.EditSession) {
	t.Helper()
	reg := speaker.NewRegistry()
	reg.Initialize(ids, nil)
	return reg, speaker.NewEditSession(reg)
}

func TestEditSession_AddSpeaker(t *testing.T) {
	t.Parallel()

	_, es := newEditSession(t, "Speaker 1", "Speaker 2")

	added := es.AddSpeaker()
	if added.ID != "Speaker 3" {
		t.Errorf("added ID = %q, want Speaker 3", added.ID)
	}
	if added.Source != speaker.SourceManuallyAdded {
		t.Errorf("added source = %q, want %q", added.Source, speaker.SourceManuallyAdded)
	}

	draft := es.Draft()
	if len(draft) != 3 {
		t.Fatalf("draft len = %d, want 3", len(draft))
	}
	if draft[0].ID != added.ID {
		t.Errorf("new entry at index %q, want position 0", draft[0].ID)
	}
	if !es.HasPendingChanges() {
		t.Error("adding a speaker should mark pending changes")
	}
}

func TestEditSession_AddSpeakerOrdinalSkipsUsed(t *testing.T) {
	t.Parallel()

	_, es := newEditSession(t, "speaker_1")
	first := es.AddSpeaker()
	second := es.AddSpeaker()
	if first.ID == second.ID {
		t.Errorf("consecutive adds produced the same ID %q", first.ID)
	}
}

func TestEditSession_RemoveLastSpeakerRejected(t *testing.T) {
	t.Parallel()

	_, es := newEditSession(t, "speaker_1")

	if _, err := es.RequestRemove("speaker_1"); !errors.Is(err, speaker.ErrLastSpeaker) {
		t.Errorf("RequestRemove error = %v, want ErrLastSpeaker", err)
	}
	if err := es.ConfirmRemove("speaker_1"); !errors.Is(err, speaker.ErrLastSpeaker) {
		t.Errorf("ConfirmRemove error = %v, want ErrLastSpeaker", err)
	}
}

func TestEditSession_RemovalPromptDisplayName(t *testing.T) {
	t.Parallel()

	reg := speaker.NewRegistry()
	reg.Initialize(nil, []speaker.Entry{
		{ID: "speaker_1", Name: "Alice", Source: speaker.SourceAutoDetected},
		{ID: "speaker_2", Name: "", Source: speaker.SourceAutoDetected},
	})
	es := speaker.NewEditSession(reg)

	prompt, err := es.RequestRemove("speaker_1")
	if err != nil {
		t.Fatalf("RequestRemove: %v", err)
	}
	if prompt.DisplayName != "Alice" {
		t.Errorf("display name = %q, want Alice", prompt.DisplayName)
	}

	// Unnamed entries fall back to the speaker ID.
	prompt, err = es.RequestRemove("speaker_2")
	if err != nil {
		t.Fatalf("RequestRemove: %v", err)
	}
	if prompt.DisplayName != "speaker_2" {
		t.Errorf("display name = %q, want speaker_2", prompt.DisplayName)
	}
}

func TestEditSession_ConfirmRemovePurgesOverride(t *testing.T) {
	t.Parallel()

	reg := speaker.NewRegistry()
	reg.Initialize([]string{"speaker_1", "speaker_2"}, nil)
	purger := &recordingPurger{}
	es := speaker.NewEditSession(reg, speaker.WithOverridePurger(purger))

	if err := es.ConfirmRemove("speaker_2"); err != nil {
		t.Fatalf("ConfirmRemove: %v", err)
	}

	if len(purger.purged) != 1 || purger.purged[0] != "speaker_2" {
		t.Errorf("purged = %v, want [speaker_2]", purger.purged)
	}
	if len(es.Draft()) != 1 {
		t.Errorf("draft len = %d, want 1", len(es.Draft()))
	}
	// Removal is draft-only until saved.
	if reg.Len() != 2 {
		t.Errorf("registry len = %d, want 2 before save", reg.Len())
	}
}

func TestEditSession_EditCycle(t *testing.T) {
	t.Parallel()

	_, es := newEditSession(t, "speaker_1", "speaker_2")

	if err := es.UpdateDraft("speaker_1", "Alice", ""); !errors.Is(err, speaker.ErrNotEditing) {
		t.Errorf("UpdateDraft before StartEdit error = %v, want ErrNotEditing", err)
	}

	if err := es.StartEdit("speaker_1"); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if !es.IsEditing("speaker_1") {
		t.Error("IsEditing = false after StartEdit")
	}

	if err := es.UpdateDraft("speaker_1", "Alice", "Moderator"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if errs := es.Errors("speaker_1"); len(errs) != 0 {
		t.Errorf("Errors = %v, want none for valid values", errs)
	}

	if err := es.ConfirmEdit("speaker_1"); err != nil {
		t.Fatalf("ConfirmEdit: %v", err)
	}
	if es.IsEditing("speaker_1") {
		t.Error("IsEditing = true after ConfirmEdit")
	}

	draft := es.Draft()
	if draft[0].Name != "Alice" || draft[0].Role != "Moderator" {
		t.Errorf("draft entry = %+v, want Alice/Moderator", draft[0])
	}
}

func TestEditSession_ConfirmEditStaysEditingOnInvalid(t *testing.T) {
	t.Parallel()

	_, es := newEditSession(t, "speaker_1", "speaker_2")

	if err := es.StartEdit("speaker_1"); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := es.UpdateDraft("speaker_1", "X", ""); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	err := es.ConfirmEdit("speaker_1")
	var verrs speaker.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("ConfirmEdit error = %v, want ValidationErrors", err)
	}
	if !es.IsEditing("speaker_1") {
		t.Error("entry should stay in edit mode after a rejected confirm")
	}
	if errs := es.Errors("speaker_1"); len(errs) == 0 {
		t.Error("Errors should stay cached after a rejected confirm")
	}
}

func TestEditSession_CancelEditRestoresSnapshot(t *testing.T) {
	t.Parallel()

	reg := speaker.NewRegistry()
	reg.Initialize(nil, []speaker.Entry{
		{ID: "speaker_1", Name: "Alice", Role: "Host", Source: speaker.SourceAutoDetected},
		{ID: "speaker_2", Source: speaker.SourceAutoDetected},
	})
	es := speaker.NewEditSession(reg)

	if err := es.StartEdit("speaker_1"); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := es.UpdateDraft("speaker_1", "Wrong", "Wrong"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if err := es.CancelEdit("speaker_1"); err != nil {
		t.Fatalf("CancelEdit: %v", err)
	}

	draft := es.Draft()
	if draft[0].Name != "Alice" || draft[0].Role != "Host" {
		t.Errorf("draft entry = %+v, want restored Alice/Host", draft[0])
	}
	if es.IsEditing("speaker_1") {
		t.Error("IsEditing = true after CancelEdit")
	}
}

func TestEditSession_SaveBlockedWhileEditing(t *testing.T) {
	t.Parallel()

	reg, es := newEditSession(t, "speaker_1", "speaker_2")

	if err := es.StartEdit("speaker_1"); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := es.UpdateDraft("speaker_1", "Alice", ""); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	if err := es.Save(); !errors.Is(err, speaker.ErrEntryEditing) {
		t.Errorf("Save() error = %v, want ErrEntryEditing", err)
	}
	if got, _ := reg.Get("speaker_1"); got.Name != "" {
		t.Errorf("registry modified by blocked save: name = %q", got.Name)
	}

	if err := es.ConfirmEdit("speaker_1"); err != nil {
		t.Fatalf("ConfirmEdit: %v", err)
	}
	if err := es.Save(); err != nil {
		t.Fatalf("Save() after confirm: %v", err)
	}
	if got, _ := reg.Get("speaker_1"); got.Name != "Alice" {
		t.Errorf("committed name = %q, want Alice", got.Name)
	}
	if es.HasPendingChanges() {
		t.Error("HasPendingChanges = true after successful save")
	}
}

func TestEditSession_SaveAtomicAcrossEntries(t *testing.T) {
	t.Parallel()

	reg, es := newEditSession(t, "speaker_1", "speaker_2")

	for id, name := range map[string]string{"speaker_1": "Alice", "speaker_2": "B"} {
		if err := es.StartEdit(id); err != nil {
			t.Fatalf("StartEdit(%s): %v", id, err)
		}
		if err := es.UpdateDraft(id, name, ""); err != nil {
			t.Fatalf("UpdateDraft(%s): %v", id, err)
		}
	}
	if err := es.ConfirmEdit("speaker_1"); err != nil {
		t.Fatalf("ConfirmEdit: %v", err)
	}
	// speaker_2 is invalid; confirm fails and it stays editing, so the save
	// stays blocked and nothing reaches the registry.
	if err := es.ConfirmEdit("speaker_2"); err == nil {
		t.Fatal("ConfirmEdit(speaker_2) should fail")
	}
	if err := es.Save(); !errors.Is(err, speaker.ErrEntryEditing) {
		t.Errorf("Save() error = %v, want ErrEntryEditing", err)
	}
	if got, _ := reg.Get("speaker_1"); got.Name != "" {
		t.Errorf("speaker_1 committed prematurely: name = %q", got.Name)
	}
}

func TestEditSession_CancelDiscardsEverything(t *testing.T) {
	t.Parallel()

	reg, es := newEditSession(t, "speaker_1", "speaker_2")

	es.AddSpeaker()
	if err := es.ConfirmRemove("speaker_2"); err != nil {
		t.Fatalf("ConfirmRemove: %v", err)
	}
	es.Cancel()

	draft := es.Draft()
	if len(draft) != reg.Len() {
		t.Errorf("draft len = %d, want %d after cancel", len(draft), reg.Len())
	}
	if es.HasPendingChanges() {
		t.Error("HasPendingChanges = true after cancel")
	}
}

func TestEditSession_HasPendingChangesExcludesMidEdit(t *testing.T) {
	t.Parallel()

	_, es := newEditSession(t, "speaker_1", "speaker_2")

	if es.HasPendingChanges() {
		t.Fatal("fresh session should have no pending changes")
	}
	if err := es.StartEdit("speaker_1"); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := es.UpdateDraft("speaker_1", "Alice", ""); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	// In-flight values do not count until confirmed.
	if es.HasPendingChanges() {
		t.Error("mid-edit values should not count as pending changes")
	}
	if err := es.ConfirmEdit("speaker_1"); err != nil {
		t.Fatalf("ConfirmEdit: %v", err)
	}
	if !es.HasPendingChanges() {
		t.Error("confirmed edit should count as pending changes")
	}
}
