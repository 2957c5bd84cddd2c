package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// WriteSRT renders groups as SubRip cues, one cue per phrase.
func WriteSRT(w io.Writer, groups []PhraseGroup) error {
	bw := bufio.NewWriter(w)
	for i, g := range groups {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, SRTTimestamp(g.Start), SRTTimestamp(g.End), g.Text())
	}
	return bw.Flush()
}

// SRTTimestamp formats seconds as HH:MM:SS,mmm.
func SRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	m := (ms / 60000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
