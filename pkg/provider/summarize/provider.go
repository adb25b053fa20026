// Package summarize defines the Provider interface for transcript
// summarization backends.
//
// A summarizer receives resolved utterances, each already attributed to a
// display name, and produces a prose summary. Name resolution happens before
// the call so the summarizer never sees raw diarization identifiers.
//
// Implementations must be safe for concurrent use.
package summarize

import "context"

// Utterance is a single resolved transcript line.
type Utterance struct {
	// Speaker is the resolved display name (e.g., "Alice", "Unassigned").
	Speaker string

	// Text is the transcribed utterance.
	Text string
}

// Request describes a summarization job.
type Request struct {
	// Utterances is the resolved transcript in recording order.
	Utterances []Utterance

	// Instructions optionally steers tone and focus (e.g., "action items
	// only"). Empty means the provider's default summary style.
	Instructions string

	// MaxWords caps the summary length. Zero means no cap.
	MaxWords int
}

// Provider is the abstraction over any summarization backend.
type Provider interface {
	// Summarize produces a prose summary of the given transcript. It blocks
	// until the provider finishes or ctx is cancelled.
	Summarize(ctx context.Context, req Request) (string, error)
}
