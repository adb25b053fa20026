package transcript

import (
	"strings"

	"github.com/voxlabel/voxlabel/internal/override"
	"github.com/voxlabel/voxlabel/internal/speaker"
)

// Resolver derives the display name for a transcript segment from the
// override tracker and the speaker registry. It holds no state of its own:
// every call reads the current shared stores, so a resolution is idempotent
// absent intervening mutation.
type Resolver struct {
	reg       *speaker.Registry
	overrides *override.Tracker
}

// NewResolver returns a [Resolver] over the given shared stores.
func NewResolver(reg *speaker.Registry, overrides *override.Tracker) *Resolver {
	return &Resolver{reg: reg, overrides: overrides}
}

// Resolve returns the display name for a segment's speaker label, applying
// strict priority:
//
//  1. an active override in the tracker;
//  2. a registry entry with a non-empty name;
//  3. the literal label "Unassigned".
//
// A deleted registry entry therefore degrades the label to "Unassigned"
// without touching the segment's text or timing.
func (r *Resolver) Resolve(segmentSpeakerID string) string {
	if rec, ok := r.overrides.Get(segmentSpeakerID); ok {
		return rec.NewValue
	}
	if entry, err := r.reg.Get(segmentSpeakerID); err == nil {
		if name := strings.TrimSpace(entry.Name); name != "" {
			return name
		}
	}
	return Unassigned
}

// ResolveSegment decorates seg with its display name and confidence flags.
func (r *Resolver) ResolveSegment(seg Segment, inv *Invalidator) ResolvedSegment {
	return ResolvedSegment{
		Segment:     seg,
		DisplayName: r.Resolve(seg.SpeakerID),
		Flags:       inv.Flags(seg),
	}
}

// Snapshot captures the current resolution of every given speaker ID as an
// immutable map. The summarization/export boundary consumes this at
// generation time so later registry mutations cannot leak into a document
// already being produced.
func (r *Resolver) Snapshot(speakerIDs []string) map[string]string {
	out := make(map[string]string, len(speakerIDs))
	for _, id := range speakerIDs {
		if _, done := out[id]; done {
			continue
		}
		out[id] = r.Resolve(id)
	}
	return out
}
