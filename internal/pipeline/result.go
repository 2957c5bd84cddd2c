package pipeline

import (
	"fmt"

	"clipforge/internal/highlights"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/subtitles"
)

// AnalyzeResult is the result document of an analyze task.
type AnalyzeResult struct {
	VideoID         string                  `json:"video_id"`
	Duration        float64                 `json:"duration"`
	Language        string                  `json:"language,omitempty"`
	Engine          string                  `json:"engine"`
	FallbackEngine  bool                    `json:"fallback_engine"`
	Words           []subtitles.Word        `json:"words"`
	Phrases         []subtitles.PhraseGroup `json:"phrases"`
	Highlights      []highlights.Highlight  `json:"highlights"`
	Rejected        []highlights.Rejection  `json:"rejected,omitempty"`
	Quality         highlights.Quality      `json:"quality"`
	HighlightSource string                  `json:"highlight_source"`
}

// Summary is a one-line description for notifications.
func (r AnalyzeResult) Summary() string {
	return fmt.Sprintf("%d words, %d highlights (%s)", len(r.Words), len(r.Highlights), r.Quality.Overall)
}

// ClipsResult is the result document of a generate_clips task.
type ClipsResult struct {
	VideoID         string                 `json:"video_id"`
	FormatID        string                 `json:"format_id"`
	StyleID         subtitles.StyleID      `json:"style_id"`
	Engine          string                 `json:"engine"`
	FallbackEngine  bool                   `json:"fallback_engine"`
	Clips           []stage.Clip           `json:"clips"`
	Rejected        []highlights.Rejection `json:"rejected,omitempty"`
	Quality         highlights.Quality     `json:"quality"`
	HighlightSource string                 `json:"highlight_source"`
}

func (r ClipsResult) Summary() string {
	return fmt.Sprintf("%d clips in %s with %s subtitles", len(r.Clips), r.FormatID, r.StyleID)
}

// BurnResult is the result document of a burn_subtitles task.
type BurnResult struct {
	VideoID string            `json:"video_id"`
	StyleID subtitles.StyleID `json:"style_id"`
	Engine  string            `json:"engine"`
	Clip    stage.Clip        `json:"clip"`
}

func (r BurnResult) Summary() string {
	return fmt.Sprintf("%d phrases burned into %s", r.Clip.Phrases, r.Clip.Artifact)
}

func (p *Pipeline) result(job *stage.Job) any {
	videoID := job.Task.Payload.String(queue.FieldVideoID)
	switch job.Task.Kind {
	case queue.KindGenerateClips:
		return ClipsResult{
			VideoID:         videoID,
			FormatID:        job.Format.ID,
			StyleID:         job.Style,
			Engine:          job.Engine,
			FallbackEngine:  job.Fallback,
			Clips:           job.Clips,
			Rejected:        job.Analysis.Rejected,
			Quality:         job.Analysis.Quality,
			HighlightSource: job.Analysis.Source,
		}
	case queue.KindBurnSubtitles:
		res := BurnResult{VideoID: videoID, StyleID: job.Style, Engine: job.Engine}
		if len(job.Clips) > 0 {
			res.Clip = job.Clips[0]
		}
		return res
	default:
		return AnalyzeResult{
			VideoID:         videoID,
			Duration:        job.Duration,
			Language:        job.Language,
			Engine:          job.Engine,
			FallbackEngine:  job.Fallback,
			Words:           job.Words,
			Phrases:         p.phrases(job),
			Highlights:      job.Analysis.Highlights,
			Rejected:        job.Analysis.Rejected,
			Quality:         job.Analysis.Quality,
			HighlightSource: job.Analysis.Source,
		}
	}
}

func (p *Pipeline) phrases(job *stage.Job) []subtitles.PhraseGroup {
	sync, err := subtitles.NewSynchronizer(subtitles.Options{
		MaxWords:    p.deps.MaxWords,
		MaxDuration: p.deps.MaxDuration,
		Style:       job.Style,
	})
	if err != nil {
		return nil
	}
	return sync.Group(job.Words)
}
