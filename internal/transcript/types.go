// Package transcript derives display-level views of the transcript from the
// speaker registry and the override tracker: the resolved speaker name shown
// on each segment, and the signal that a segment's original diarization
// confidence is no longer trustworthy.
//
// Segments themselves are read-only seed data from the transcription
// boundary. Nothing in this package mutates them: deleting a speaker entry
// or applying an override only changes how the label resolves, never the
// text or timing underneath it.
package transcript

import "time"

// Unassigned is the literal display label used when a segment's speaker
// resolves to neither an override nor a named registry entry.
const Unassigned = "Unassigned"

// Segment is one diarized utterance from the transcription provider.
type Segment struct {
	// SpeakerID is the diarizer's generic label (e.g. "Speaker 1").
	SpeakerID string `json:"speaker_id"`

	// Text is the transcribed content. Immutable for the session.
	Text string `json:"text"`

	// Start and End bound the utterance relative to the recording start.
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`

	// Confidence is the diarizer's original confidence score (0.0–1.0).
	Confidence float64 `json:"confidence"`
}

// ResolvedSegment is a segment decorated with its current display name and
// confidence flags, as rendered by the transcript panel.
type ResolvedSegment struct {
	Segment
	DisplayName string          `json:"display_name"`
	Flags       ConfidenceFlags `json:"confidence_flags"`
}
