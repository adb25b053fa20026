package resilience

import (
	"context"

	"github.com/voxlabel/voxlabel/pkg/provider/summarize"
	"github.com/voxlabel/voxlabel/pkg/provider/transcribe"
)

// TranscribeGroup implements [transcribe.Provider] with breaker-guarded
// failover across transcription backends.
type TranscribeGroup struct {
	group *Group[transcribe.Provider]
}

var _ transcribe.Provider = (*TranscribeGroup)(nil)

// NewTranscribeGroup wraps primary as the preferred transcription backend.
func NewTranscribeGroup(primary transcribe.Provider, name string, cfg GroupConfig) *TranscribeGroup {
	return &TranscribeGroup{group: NewGroup(primary, name, cfg)}
}

// AddStandby registers an additional transcription backend.
func (t *TranscribeGroup) AddStandby(name string, p transcribe.Provider) {
	t.group.AddStandby(name, p)
}

// Transcribe runs the request against the first healthy backend.
//
// The audio reader may already be partially consumed when a backend fails
// mid-upload; callers that need retry-safe uploads should pass a seekable
// reader wrapped per attempt.
func (t *TranscribeGroup) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	return Call(t.group, func(p transcribe.Provider) (*transcribe.Result, error) {
		return p.Transcribe(ctx, req)
	})
}

// SummarizeGroup implements [summarize.Provider] with breaker-guarded
// failover across summarization backends.
type SummarizeGroup struct {
	group *Group[summarize.Provider]
}

var _ summarize.Provider = (*SummarizeGroup)(nil)

// NewSummarizeGroup wraps primary as the preferred summarization backend.
func NewSummarizeGroup(primary summarize.Provider, name string, cfg GroupConfig) *SummarizeGroup {
	return &SummarizeGroup{group: NewGroup(primary, name, cfg)}
}

// AddStandby registers an additional summarization backend.
func (s *SummarizeGroup) AddStandby(name string, p summarize.Provider) {
	s.group.AddStandby(name, p)
}

// Summarize runs the request against the first healthy backend.
func (s *SummarizeGroup) Summarize(ctx context.Context, req summarize.Request) (string, error) {
	return Call(s.group, func(p summarize.Provider) (string, error) {
		return p.Summarize(ctx, req)
	})
}
