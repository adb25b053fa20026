// Package transcribe defines the Provider interface for batch transcription
// backends.
//
// A transcriber turns a recorded audio file into a diarized transcript: a
// flat list of time-ordered segments, each attributed to an opaque speaker
// identifier such as "speaker_1". The identifiers carry no human meaning;
// mapping them to display names happens downstream in the labeling session.
//
// Implementations must be safe for concurrent use.
package transcribe

import (
	"context"
	"io"
	"time"
)

// Segment is a single diarized utterance in a transcription result.
type Segment struct {
	// SpeakerID is the opaque diarization identifier (e.g., "speaker_1").
	SpeakerID string

	// Text is the transcribed utterance.
	Text string

	// Start and End bound the utterance within the recording.
	Start time.Duration
	End   time.Duration

	// Confidence is the provider's recognition confidence in [0, 1].
	// Zero means the provider does not report confidence.
	Confidence float64
}

// Request describes an audio transcription job.
type Request struct {
	// Audio is the recorded audio payload.
	Audio io.Reader

	// Filename hints the container format to the provider (e.g., "call.wav").
	Filename string

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Prompt optionally biases recognition towards expected vocabulary such
	// as uncommon proper nouns.
	Prompt string
}

// Result is the outcome of a transcription job.
type Result struct {
	// Text is the full transcript without speaker attribution.
	Text string

	// Segments is the diarized transcript in recording order. Providers
	// without diarization support return a single segment covering the
	// whole recording.
	Segments []Segment

	// SpeakerIDs lists the distinct speaker identifiers found, in order of
	// first appearance.
	SpeakerIDs []string
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe runs a transcription job and returns its diarized result.
	// It blocks until the provider finishes or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
