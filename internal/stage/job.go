package stage

import (
	"path/filepath"

	"clipforge/internal/highlights"
	"clipforge/internal/media"
	"clipforge/internal/queue"
	"clipforge/internal/subtitles"
)

// Job is the scratch state a task accumulates while its stages run. Each
// stage reads what earlier stages wrote and fills in its own fields.
type Job struct {
	Task    *queue.Task
	WorkDir string

	SourcePath string
	Duration   float64
	Width      int
	Height     int

	// Language is the ISO 639-1 hint passed to transcription; empty lets
	// the engine detect it.
	Language  string
	AudioPath string
	Words     []subtitles.Word
	Engine    string
	Fallback  bool

	Analysis highlights.Analysis

	Format media.Format
	Style  subtitles.StyleID
	Clips  []Clip

	// Progress receives 0-100 updates; nil discards them.
	Progress func(percent int)
}

// Clip is one highlight carried through extraction, subtitles and burn-in.
type Clip struct {
	Index        int                  `json:"index"`
	Highlight    highlights.Highlight `json:"highlight"`
	Format       string               `json:"format_id"`
	Style        subtitles.StyleID    `json:"style_id"`
	Path         string               `json:"clip_path,omitempty"`
	SubtitlePath string               `json:"subtitle_path,omitempty"`
	SRTPath      string               `json:"srt_path,omitempty"`
	FinalPath    string               `json:"final_path,omitempty"`
	Artifact     string               `json:"artifact,omitempty"`
	Phrases      int                  `json:"phrases"`

	Words      []subtitles.Word      `json:"-"`
	Directives []subtitles.Directive `json:"-"`
}

// Scratch joins name onto the job work directory.
func (j *Job) Scratch(name string) string {
	return filepath.Join(j.WorkDir, name)
}

// ReportProgress forwards percent to the Progress callback, clamped to 0-100.
func (j *Job) ReportProgress(percent int) {
	if j == nil || j.Progress == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.Progress(percent)
}
