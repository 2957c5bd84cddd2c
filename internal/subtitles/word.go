package subtitles

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Word is one transcribed token with absolute timestamps in seconds.
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Duration returns the spoken span of the word.
func (w Word) Duration() float64 {
	if w.End <= w.Start {
		return 0
	}
	return w.End - w.Start
}

// NormalizeWords returns a cleaned copy of words ordered by start time.
// Text is NFC-normalized and trimmed, empty tokens are dropped, and words whose
// end precedes their start are collapsed to their start.
func NormalizeWords(words []Word) []Word {
	out := make([]Word, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(norm.NFC.String(w.Text))
		if text == "" {
			continue
		}
		if w.Start < 0 {
			w.Start = 0
		}
		if w.End < w.Start {
			w.End = w.Start
		}
		w.Text = text
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ClipWords selects the words overlapping [start, end), clamps them to the
// window and rebases their timestamps so the window starts at zero.
func ClipWords(words []Word, start, end float64) []Word {
	if end <= start {
		return nil
	}
	var out []Word
	for _, w := range words {
		if w.End <= start || w.Start >= end {
			continue
		}
		clipped := w
		if clipped.Start < start {
			clipped.Start = start
		}
		if clipped.End > end {
			clipped.End = end
		}
		clipped.Start -= start
		clipped.End -= start
		out = append(out, clipped)
	}
	return out
}
