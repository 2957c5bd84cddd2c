package highlights

import "fmt"

const (
	fallbackClipSeconds = 18.0
	fallbackGapSeconds  = 2.0
	fallbackTailSeconds = 5.0
)

// TargetCount is how many clips a source of the given duration should yield.
func TargetCount(duration float64) int {
	switch {
	case duration <= 30:
		return 2
	case duration <= 60:
		return 3
	case duration <= 120:
		return 4
	default:
		return 5
	}
}

// Fallback spaces TargetCount 18 second clips 2 seconds apart from the
// start of the source. A clip that would run past the end is pulled back
// to finish at the end; generation stops once a clip would begin within
// the last five seconds.
func Fallback(duration float64) []Highlight {
	var out []Highlight
	for i := 0; i < TargetCount(duration); i++ {
		start := float64(i) * (fallbackClipSeconds + fallbackGapSeconds)
		end := start + fallbackClipSeconds
		if end > duration {
			end = duration
			start = end - fallbackClipSeconds
			if start < 0 {
				start = 0
			}
		}
		if start >= duration-fallbackTailSeconds {
			break
		}
		if len(out) > 0 && start < out[len(out)-1].End {
			break
		}
		out = append(out, Highlight{
			Start:       start,
			End:         end,
			Title:       fmt.Sprintf("Clip %d", i+1),
			Description: "Automatically selected clip",
			Keywords:    []string{},
		})
	}
	return out
}
