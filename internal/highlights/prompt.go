package highlights

import (
	"fmt"
	"strings"

	"clipforge/internal/subtitles"
)

// maxTranscriptChars bounds the transcript text embedded in the prompt.
const maxTranscriptChars = 12000

// SystemPrompt is the system message for highlight selection.
const SystemPrompt = `You select the most engaging moments of a video transcript for short vertical clips.

Rules:
- Each clip must be 15-20 seconds long.
- Clips must not overlap in time.
- Prefer vivid, emotional or informative moments; if content is sparse, spread clips evenly across the video.
- Every clip must lie within the video duration.

You must respond ONLY with JSON:
{"highlights": [{"start_time": 0, "end_time": 18, "title": "Short title", "description": "What happens", "keywords": ["word"]}]}`

// UserPrompt renders the transcript and duration into the user message. Each
// line is prefixed with the start time of its first word so the model can
// locate moments.
func UserPrompt(words []subtitles.Word, duration float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Video duration: %.1f seconds.\n", duration)
	fmt.Fprintf(&b, "Select exactly %d clips.\n\nTranscript:\n", TargetCount(duration))

	var line strings.Builder
	written := 0
	flush := func() {
		if line.Len() == 0 {
			return
		}
		b.WriteString(line.String())
		b.WriteByte('\n')
		written += line.Len()
		line.Reset()
	}
	lineStart := -1.0
	for _, w := range words {
		if written >= maxTranscriptChars {
			break
		}
		if line.Len() == 0 {
			lineStart = w.Start
			fmt.Fprintf(&line, "[%.1f] ", lineStart)
		}
		line.WriteString(w.Text)
		line.WriteByte(' ')
		if w.End-lineStart >= 10 {
			flush()
		}
	}
	flush()
	return strings.TrimSpace(b.String())
}
