package transcript

import (
	"github.com/voxlabel/voxlabel/internal/override"
	"github.com/voxlabel/voxlabel/internal/speaker"
)

// ConfidenceFlags is the two-tier trustworthiness signal for a segment's
// original diarization confidence score.
//
// The signal is deliberately aggressive: the specifically touched segment
// gets the explicit ManuallyReassigned indicator, while Tainted flips for
// EVERY segment the moment any speaker data has been touched anywhere —
// an override applied, a committed rename, or a manually added speaker —
// because the diarizer computed its confidence under assumptions that any
// manual correction partially invalidates. The transcript panel renders
// tainted scores struck through.
type ConfidenceFlags struct {
	// ManuallyReassigned is true when this segment's own speaker label has
	// an active override.
	ManuallyReassigned bool `json:"manually_reassigned"`

	// Tainted is true when any speaker data in the session has been
	// manually touched at all.
	Tainted bool `json:"tainted"`
}

// Invalidated reports whether the segment's confidence score should be
// flagged as unreliable.
func (f ConfidenceFlags) Invalidated() bool {
	return f.ManuallyReassigned || f.Tainted
}

// Invalidator is the derived, read-only view computing confidence flags
// from the shared stores.
type Invalidator struct {
	reg       *speaker.Registry
	overrides *override.Tracker
}

// NewInvalidator returns an [Invalidator] over the given shared stores.
func NewInvalidator(reg *speaker.Registry, overrides *override.Tracker) *Invalidator {
	return &Invalidator{reg: reg, overrides: overrides}
}

// Flags computes the confidence flags for seg.
func (v *Invalidator) Flags(seg Segment) ConfidenceFlags {
	_, reassigned := v.overrides.Get(seg.SpeakerID)
	return ConfidenceFlags{
		ManuallyReassigned: reassigned,
		Tainted:            v.tainted(),
	}
}

// IsInvalidated reports whether seg's original confidence score should be
// treated as unreliable: its own speaker has an active override, or any
// speaker data anywhere in the session has been manually touched.
func (v *Invalidator) IsInvalidated(seg Segment) bool {
	return v.Flags(seg).Invalidated()
}

// tainted reports whether any manual speaker edit exists in the session.
func (v *Invalidator) tainted() bool {
	if v.overrides.HasActive() {
		return true
	}
	for _, e := range v.reg.Entries() {
		if e.IsOverridden || e.Source == speaker.SourceManuallyAdded {
			return true
		}
	}
	return false
}
