// Package mock provides a test double for the summarize package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/voxlabel/voxlabel/pkg/provider/summarize"
)

// SummarizeCall records a single invocation of Provider.Summarize.
type SummarizeCall struct {
	// Ctx is the context passed to Summarize.
	Ctx context.Context
	// Req is a copy of the request passed to Summarize.
	Req summarize.Request
}

// Provider is a mock implementation of summarize.Provider.
type Provider struct {
	mu sync.Mutex

	// Summary is returned by Summarize.
	Summary string

	// Err, if non-nil, is returned as the error from Summarize.
	Err error

	// SummarizeCalls records every call to Summarize.
	SummarizeCalls []SummarizeCall
}

// Summarize records the call and returns Summary, Err.
func (p *Provider) Summarize(ctx context.Context, req summarize.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := req
	cp.Utterances = make([]summarize.Utterance, len(req.Utterances))
	copy(cp.Utterances, req.Utterances)
	p.SummarizeCalls = append(p.SummarizeCalls, SummarizeCall{Ctx: ctx, Req: cp})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Summary, nil
}

// CallCount returns the number of Summarize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SummarizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SummarizeCalls = nil
}

// Ensure Provider implements summarize.Provider at compile time.
var _ summarize.Provider = (*Provider)(nil)
