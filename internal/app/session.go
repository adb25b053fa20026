// Package app wires the speaker registry, override tracker, transcript
// resolver, and session lifecycle into a single labeling session facade.
// The HTTP server and CLI talk to this package only.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxlabel/voxlabel/internal/lifecycle"
	"github.com/voxlabel/voxlabel/internal/observe"
	"github.com/voxlabel/voxlabel/internal/override"
	"github.com/voxlabel/voxlabel/internal/speaker"
	"github.com/voxlabel/voxlabel/internal/transcript"
	"github.com/voxlabel/voxlabel/pkg/provider/summarize"
	"github.com/voxlabel/voxlabel/pkg/provider/transcribe"
)

// ErrNoSegments is returned when an operation needs a transcript but none
// has been loaded yet.
var ErrNoSegments = errors.New("no transcript segments loaded")

// ErrNoSummarizer is returned when summary generation is requested but no
// summarization provider is configured.
var ErrNoSummarizer = errors.New("no summarizer provider configured")

// ErrNoTranscriber is returned when audio ingestion is requested but no
// transcription provider is configured.
var ErrNoTranscriber = errors.New("no transcriber provider configured")

// UpdateKind identifies what part of the session an [Update] describes.
type UpdateKind string

const (
	UpdateSpeakers  UpdateKind = "speakers"
	UpdateOverrides UpdateKind = "overrides"
	UpdateSegments  UpdateKind = "segments"
	UpdateSession   UpdateKind = "session"
	UpdateSummary   UpdateKind = "summary"
)

// Update is a change notification pushed to subscribed clients. Payload
// shape depends on Kind; it is marshalled to JSON as-is.
type Update struct {
	Kind    UpdateKind `json:"kind"`
	Payload any        `json:"payload,omitempty"`
}

// SpeakersPayload is the payload for UpdateSpeakers notifications.
type SpeakersPayload struct {
	Entries  []speaker.Entry `json:"entries"`
	Mapped   int             `json:"mapped"`
	Unmapped int             `json:"unmapped"`
}

// Config holds all dependencies for a [Session].
type Config struct {
	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Metrics records instrumentation. Optional; nil disables recording.
	Metrics *observe.Metrics

	// Lifecycle tunes session expiry timing. Zero values use defaults.
	Lifecycle lifecycle.Config

	// Clock overrides the lifecycle time source. Nil means wall clock.
	Clock lifecycle.Clock

	// Transcriber ingests audio into diarized segments. Optional.
	Transcriber transcribe.Provider

	// Summarizer produces transcript summaries. Optional.
	Summarizer summarize.Provider
}

// Session is the root object for one labeling session. Only one session is
// live per process; expiry purges its data and re-arms a fresh one.
// All exported methods are safe for concurrent use.
type Session struct {
	log *slog.Logger
	met *observe.Metrics

	reg       *speaker.Registry
	overrides *override.Tracker
	resolver  *transcript.Resolver
	inv       *transcript.Invalidator
	life      *lifecycle.Manager

	transcriber transcribe.Provider
	summarizer  summarize.Provider

	mu       sync.RWMutex
	segments []transcript.Segment
	summary  string

	editMu sync.Mutex
	edit   *speaker.EditSession

	subMu   sync.Mutex
	subs    map[int]func(Update)
	nextSub int
}

// New creates a Session with the given dependencies.
func New(cfg Config) *Session {
	s := &Session{
		log:         cfg.Logger,
		met:         cfg.Metrics,
		reg:         speaker.NewRegistry(),
		overrides:   override.New(),
		transcriber: cfg.Transcriber,
		summarizer:  cfg.Summarizer,
		subs:        make(map[int]func(Update)),
	}
	s.resolver = transcript.NewResolver(s.reg, s.overrides)
	s.inv = transcript.NewInvalidator(s.reg, s.overrides)

	lifeOpts := []lifecycle.Option{lifecycle.WithPurge(s.purgeAll)}
	if cfg.Clock != nil {
		lifeOpts = append(lifeOpts, lifecycle.WithClock(cfg.Clock))
	}
	s.life = lifecycle.NewManager(cfg.Lifecycle, lifeOpts...)

	s.reg.Subscribe(func(ev speaker.Event) {
		s.broadcastSpeakers()
	})
	s.life.Subscribe(func(ev lifecycle.Event) {
		if ev.Type == lifecycle.EventExpired && s.met != nil {
			s.met.Purges.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("reason", "expired")))
		}
		s.broadcast(Update{Kind: UpdateSession, Payload: s.life.Status()})
	})

	if s.met != nil {
		s.met.ActiveSessions.Add(context.Background(), 1)
	}
	return s
}

// Run drives the lifecycle ticker until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.life.Run(ctx)
}

// Stop terminates the lifecycle ticker. Safe to call more than once.
func (s *Session) Stop() {
	s.life.Stop()
	if s.met != nil {
		s.met.ActiveSessions.Add(context.Background(), -1)
	}
}

// ─── Transcript ingestion ───

// Transcribe runs the configured transcription provider over audio and
// loads the resulting diarized segments into the session.
func (s *Session) Transcribe(ctx context.Context, audio io.Reader, filename, language string) error {
	if s.transcriber == nil {
		return ErrNoTranscriber
	}

	start := time.Now()
	result, err := s.transcriber.Transcribe(ctx, transcribe.Request{
		Audio:    audio,
		Filename: filename,
		Language: language,
	})
	if s.met != nil {
		s.met.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("transcribe %q: %w", filename, err)
	}

	segments := make([]transcript.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, transcript.Segment{
			SpeakerID:  seg.SpeakerID,
			Text:       seg.Text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: seg.Confidence,
		})
	}
	s.SetSegments(segments)

	s.log.Info("transcript ingested",
		"filename", filename,
		"segments", len(segments),
		"speakers", len(result.SpeakerIDs),
	)
	return nil
}

// SetSegments replaces the session transcript and seeds the speaker
// registry with every distinct speaker identifier, in order of first
// appearance. Existing committed entries for known identifiers survive.
func (s *Session) SetSegments(segments []transcript.Segment) {
	var ids []string
	seen := make(map[string]struct{})
	for _, seg := range segments {
		if _, ok := seen[seg.SpeakerID]; ok || seg.SpeakerID == "" {
			continue
		}
		seen[seg.SpeakerID] = struct{}{}
		ids = append(ids, seg.SpeakerID)
	}

	s.mu.Lock()
	s.segments = make([]transcript.Segment, len(segments))
	copy(s.segments, segments)
	s.summary = ""
	s.mu.Unlock()

	s.reg.Initialize(ids, s.reg.Entries())

	// An in-flight edit session was seeded from the registry before this
	// import and would commit a draft missing the new speakers. Discard it;
	// the next edit starts from the fresh registry.
	s.editMu.Lock()
	s.edit = nil
	s.editMu.Unlock()

	s.life.Touch()
	s.broadcast(Update{Kind: UpdateSegments, Payload: len(segments)})
}

// Segments returns the transcript with display names and confidence flags
// resolved against the current registry and override state.
func (s *Session) Segments() []transcript.ResolvedSegment {
	s.mu.RLock()
	segments := make([]transcript.Segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.RUnlock()

	resolved := make([]transcript.ResolvedSegment, len(segments))
	for i, seg := range segments {
		resolved[i] = s.resolver.ResolveSegment(seg, s.inv)
	}
	return resolved
}

// ─── Speaker editing ───

// editSession returns the live edit session, creating one seeded from the
// committed registry when none exists.
func (s *Session) editSession() *speaker.EditSession {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if s.edit == nil {
		s.edit = speaker.NewEditSession(s.reg, speaker.WithOverridePurger(s.overrides))
	}
	return s.edit
}

// Speakers returns the committed registry entries.
func (s *Session) Speakers() []speaker.Entry {
	return s.reg.Entries()
}

// DraftSpeakers returns the working copy of the registry, including
// unsaved additions, removals, and field edits.
func (s *Session) DraftSpeakers() []speaker.Entry {
	return s.editSession().Draft()
}

// DraftErrors returns the cached validation errors for one draft entry.
func (s *Session) DraftErrors(id string) speaker.ValidationErrors {
	return s.editSession().Errors(id)
}

// IsEditing reports whether the entry is in per-entry edit mode.
func (s *Session) IsEditing(id string) bool {
	return s.editSession().IsEditing(id)
}

// HasPendingChanges reports whether the draft differs from the committed
// registry.
func (s *Session) HasPendingChanges() bool {
	return s.editSession().HasPendingChanges()
}

// AddSpeaker appends a manually added entry at the top of the draft.
func (s *Session) AddSpeaker() speaker.Entry {
	e := s.editSession().AddSpeaker()
	s.life.Touch()
	s.log.Info("speaker added to draft", "speaker_id", e.ID, "name", e.Name)
	return e
}

// RequestRemoveSpeaker returns the confirmation prompt for removing an
// entry, without modifying anything.
func (s *Session) RequestRemoveSpeaker(id string) (speaker.RemovalPrompt, error) {
	return s.editSession().RequestRemove(id)
}

// ConfirmRemoveSpeaker removes the entry from the draft and drops any
// active override for it.
func (s *Session) ConfirmRemoveSpeaker(id string) error {
	if err := s.editSession().ConfirmRemove(id); err != nil {
		return err
	}
	s.life.Touch()
	s.log.Info("speaker removed from draft", "speaker_id", id)
	s.broadcast(Update{Kind: UpdateOverrides, Payload: s.overrides.Overrides()})
	return nil
}

// StartEdit puts one draft entry into edit mode.
func (s *Session) StartEdit(id string) error {
	if err := s.editSession().StartEdit(id); err != nil {
		return err
	}
	s.life.Touch()
	return nil
}

// UpdateDraft replaces the name and role of an entry in edit mode and
// returns the validation errors for its current values.
func (s *Session) UpdateDraft(id, name, role string) (speaker.ValidationErrors, error) {
	es := s.editSession()
	if err := es.UpdateDraft(id, name, role); err != nil {
		return nil, err
	}
	s.life.Touch()
	return es.Errors(id), nil
}

// ConfirmEdit leaves edit mode for the entry, keeping its values. The
// entry stays in edit mode when validation fails.
func (s *Session) ConfirmEdit(id string) error {
	err := s.editSession().ConfirmEdit(id)
	if err != nil {
		var verrs speaker.ValidationErrors
		if errors.As(err, &verrs) && s.met != nil {
			for _, ve := range verrs {
				s.met.ValidationFailures.Add(context.Background(), 1,
					metric.WithAttributes(attribute.String("field", string(ve.Field))))
			}
		}
		return err
	}
	s.life.Touch()
	return nil
}

// CancelEdit leaves edit mode for the entry, restoring the values it had
// when editing started.
func (s *Session) CancelEdit(id string) error {
	if err := s.editSession().CancelEdit(id); err != nil {
		return err
	}
	s.life.Touch()
	return nil
}

// SaveSpeakers atomically validates and commits the draft to the registry.
// It fails without committing anything while any entry is in edit mode or
// any entry is invalid.
func (s *Session) SaveSpeakers() error {
	start := time.Now()
	err := s.editSession().Save()

	if s.met != nil {
		ctx := context.Background()
		s.met.SaveDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "rejected"
		}
		s.met.Commits.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
		var verrs speaker.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				s.met.ValidationFailures.Add(ctx, 1,
					metric.WithAttributes(attribute.String("field", string(ve.Field))))
			}
		}
	}
	if err != nil {
		return err
	}

	s.life.Touch()
	s.log.Info("speaker registry saved", "entries", s.reg.Len())
	return nil
}

// DiscardEdits throws away the draft and re-seeds it from the committed
// registry.
func (s *Session) DiscardEdits() {
	s.editSession().Cancel()
	s.life.Touch()
	s.broadcastSpeakers()
}

// Counts returns how many detected entries are mapped (committed non-empty
// name or active override) and how many remain unmapped.
func (s *Session) Counts() (mapped, unmapped int) {
	return s.reg.Counts(s.overrides.ActiveIDs())
}

// ─── Overrides ───

// ApplyOverride relabels every segment attributed to speakerID with
// newName, without touching the registry. The recorded original value is
// whatever the segments currently display.
func (s *Session) ApplyOverride(speakerID, newName string) (override.Record, error) {
	if errs := speaker.ValidateName(newName, nil, ""); len(errs) > 0 {
		if s.met != nil {
			s.met.ValidationFailures.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("field", string(speaker.FieldName))))
		}
		return override.Record{}, errs
	}

	original := s.resolver.Resolve(speakerID)
	rec := s.overrides.Apply(speakerID, original, strings.TrimSpace(newName))

	if s.met != nil {
		s.met.OverrideActions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("action", string(override.ActionOverride))))
	}
	s.life.Touch()
	s.log.Info("segment override applied",
		"speaker_id", speakerID,
		"original", original,
		"new", rec.NewValue,
	)
	s.broadcast(Update{Kind: UpdateOverrides, Payload: s.overrides.Overrides()})
	s.broadcastSpeakers()
	return rec, nil
}

// RevertOverride removes the active override for speakerID, restoring the
// registry-driven display name. Reports whether an override was active.
func (s *Session) RevertOverride(speakerID string) bool {
	reverted := s.overrides.Revert(speakerID)
	if !reverted {
		return false
	}

	if s.met != nil {
		s.met.OverrideActions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("action", string(override.ActionRevert))))
	}
	s.life.Touch()
	s.log.Info("segment override reverted", "speaker_id", speakerID)
	s.broadcast(Update{Kind: UpdateOverrides, Payload: s.overrides.Overrides()})
	s.broadcastSpeakers()
	return true
}

// Overrides returns the active override records keyed by speaker ID.
func (s *Session) Overrides() map[string]override.Record {
	return s.overrides.Overrides()
}

// OverrideLog returns the append-only history of override activity.
func (s *Session) OverrideLog() []override.Record {
	return s.overrides.Log()
}

// ResolveDisplayName returns the display name for a segment speaker ID:
// active override first, then committed registry name, then the
// unassigned placeholder.
func (s *Session) ResolveDisplayName(speakerID string) string {
	return s.resolver.Resolve(speakerID)
}

// ─── Summary ───

// Summarize produces a prose summary of the loaded transcript using an
// immutable snapshot of the currently resolved display names.
func (s *Session) Summarize(ctx context.Context, instructions string, maxWords int) (string, error) {
	if s.summarizer == nil {
		return "", ErrNoSummarizer
	}

	s.mu.RLock()
	segments := make([]transcript.Segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.RUnlock()
	if len(segments) == 0 {
		return "", ErrNoSegments
	}

	// Resolve names once up front so a concurrent relabel cannot produce a
	// summary with mixed attribution.
	ids := make([]string, len(segments))
	for i, seg := range segments {
		ids[i] = seg.SpeakerID
	}
	names := s.resolver.Snapshot(ids)

	utterances := make([]summarize.Utterance, len(segments))
	for i, seg := range segments {
		utterances[i] = summarize.Utterance{
			Speaker: names[seg.SpeakerID],
			Text:    seg.Text,
		}
	}

	start := time.Now()
	summary, err := s.summarizer.Summarize(ctx, summarize.Request{
		Utterances:   utterances,
		Instructions: instructions,
		MaxWords:     maxWords,
	})
	if s.met != nil {
		s.met.SummarizeDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}

	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()

	s.life.Touch()
	s.broadcast(Update{Kind: UpdateSummary, Payload: summary})
	return summary, nil
}

// ResolvedNames captures the display name of every speaker appearing in the
// loaded transcript, as an immutable snapshot taken at call time. Export and
// summary consumers use it so concurrent relabels cannot alter a document
// mid-generation.
func (s *Session) ResolvedNames() map[string]string {
	s.mu.RLock()
	ids := make([]string, len(s.segments))
	for i, seg := range s.segments {
		ids[i] = seg.SpeakerID
	}
	s.mu.RUnlock()
	return s.resolver.Snapshot(ids)
}

// Summary returns the last generated summary, or empty when none exists.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// ─── Lifecycle ───

// Status returns the current lifecycle state of the session.
func (s *Session) Status() lifecycle.Status {
	return s.life.Status()
}

// Touch records user activity, resetting the inactivity countdown.
func (s *Session) Touch() {
	s.life.Touch()
}

// Extend adds d to the remaining inactivity budget.
func (s *Session) Extend(d time.Duration) lifecycle.Status {
	st := s.life.Extend(d)
	if s.met != nil {
		s.met.SessionExtensions.Add(context.Background(), 1)
	}
	s.log.Info("session extended", "by", d, "remaining", st.Remaining)
	return st
}

// ClearSession purges all session data and starts a fresh session.
func (s *Session) ClearSession() lifecycle.Status {
	st := s.life.Clear()
	if s.met != nil {
		s.met.Purges.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", "cleared")))
	}
	s.log.Info("session cleared", "session_id", st.SessionID)
	return st
}

// DismissWarning acknowledges the expiry warning; it may re-fire after the
// configured re-arm interval if the session stays inactive.
func (s *Session) DismissWarning() {
	s.life.Dismiss()
}

// ─── Subscriptions ───

// Subscribe registers fn for change notifications. The returned function
// unsubscribes. fn is called synchronously; do not block.
func (s *Session) Subscribe(fn func(Update)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) broadcast(u Update) {
	s.subMu.Lock()
	fns := make([]func(Update), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (s *Session) broadcastSpeakers() {
	mapped, unmapped := s.Counts()
	s.broadcast(Update{Kind: UpdateSpeakers, Payload: SpeakersPayload{
		Entries:  s.reg.Entries(),
		Mapped:   mapped,
		Unmapped: unmapped,
	}})
}

// purgeAll discards all session-scoped data. Runs when the inactivity
// budget is exhausted and on explicit clears.
func (s *Session) purgeAll() {
	s.mu.Lock()
	s.segments = nil
	s.summary = ""
	s.mu.Unlock()

	s.editMu.Lock()
	s.edit = nil
	s.editMu.Unlock()

	s.overrides.ClearAll()
	s.reg.Purge()

	s.log.Info("session data purged")
}
