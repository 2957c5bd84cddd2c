package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// Resolution sets PlayResX/PlayResY. The zero value leaves them unset so the
// renderer falls back to its own script resolution.
type Resolution struct {
	Width  int
	Height int
}

const assStyleFormat = "Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, " +
	"Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, " +
	"Alignment, MarginL, MarginR, MarginV, Encoding"

const assEventFormat = "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text"

// WriteASS renders directives as an Advanced SubStation Alpha script with
// one karaoke Dialogue line per directive. An empty directive list produces a
// valid script with no events.
func WriteASS(w io.Writer, directives []Directive, style Style, res Resolution) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "[Script Info]")
	fmt.Fprintln(bw, "Title: clipforge karaoke")
	fmt.Fprintln(bw, "ScriptType: v4.00+")
	fmt.Fprintln(bw, "WrapStyle: 0")
	fmt.Fprintln(bw, "ScaledBorderAndShadow: yes")
	if res.Width > 0 && res.Height > 0 {
		fmt.Fprintf(bw, "PlayResX: %d\n", res.Width)
		fmt.Fprintf(bw, "PlayResY: %d\n", res.Height)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "[V4+ Styles]")
	fmt.Fprintln(bw, assStyleFormat)
	fmt.Fprintln(bw, assStyleLine(style))
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "[Events]")
	fmt.Fprintln(bw, assEventFormat)
	for _, d := range directives {
		// The end is derived from the start so the line lasts exactly as
		// long as its \k durations add up to.
		start := assCentis(d.Start)
		fmt.Fprintf(bw, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n",
			formatASSCentis(start), formatASSCentis(start+int64(d.DurationCentis())), style.Name, karaokeText(d.Words))
	}
	return bw.Flush()
}

func assStyleLine(s Style) string {
	bold := 0
	if s.Bold {
		bold = -1
	}
	return fmt.Sprintf("Style: %s,%s,%d,%s,%s,%s,%s,%d,0,0,0,100,100,0,0,1,%d,%d,%d,%d,%d,%d,1",
		s.Name, s.Font, s.Size, s.PrimaryColor, s.HighlightColor, s.OutlineColor, s.BackColor,
		bold, s.Outline, s.Shadow, s.Alignment, s.MarginL, s.MarginR, s.MarginV)
}

// karaokeText builds `{\kNN}word {\kNN}word` using the per-word deltas.
func karaokeText(words []KaraokeWord) string {
	deltas := Deltas(words)
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, `{\k%d}%s`, deltas[i], escapeASS(w.Word))
	}
	return b.String()
}

var assEscaper = strings.NewReplacer("{", "(", "}", ")", "\\", "/", "\n", " ", "\r", "")

func escapeASS(text string) string {
	return assEscaper.Replace(text)
}

// ASSTimestamp formats seconds as H:MM:SS.CC.
func ASSTimestamp(seconds float64) string {
	return formatASSCentis(assCentis(seconds))
}

func assCentis(seconds float64) int64 {
	if seconds < 0 {
		seconds = 0
	}
	return int64(math.Round(seconds * 100))
}

func formatASSCentis(cs int64) string {
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}
