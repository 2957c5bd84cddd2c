package highlights

import (
	"math"
	"sort"
)

// Validate keeps the highlights satisfying 0 <= start < end <= duration and
// not overlapping an already accepted one. Input is ordered by start first;
// an exact duplicate of an accepted window is reported as a duplicate rather
// than an overlap. Offending entries are rejected, never clamped.
func Validate(candidates []Highlight, duration float64) ([]Highlight, []Rejection) {
	ordered := make([]Highlight, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var accepted []Highlight
	var rejected []Rejection
	for _, h := range ordered {
		if !inRange(h, duration) {
			rejected = append(rejected, Rejection{Highlight: h, Reason: ReasonRange})
			continue
		}
		if reason, clash := conflicts(accepted, h); clash {
			rejected = append(rejected, Rejection{Highlight: h, Reason: reason})
			continue
		}
		accepted = append(accepted, h)
	}
	return accepted, rejected
}

func inRange(h Highlight, duration float64) bool {
	for _, v := range []float64{h.Start, h.End} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return h.Start >= 0 && h.Start < h.End && h.End <= duration
}

func conflicts(accepted []Highlight, h Highlight) (string, bool) {
	for _, a := range accepted {
		if a.Start == h.Start && a.End == h.End {
			return ReasonDuplicate, true
		}
		if h.Start < a.End && a.Start < h.End {
			return ReasonOverlap, true
		}
	}
	return "", false
}
