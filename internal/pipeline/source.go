package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"clipforge/internal/highlights"
	"clipforge/internal/language"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/subtitles"
)

const (
	stageProbe     = "probe"
	stageClipInput = "clip_input"
)

type probeStage struct {
	probe   Prober
	uploads string
}

func (s *probeStage) Name() string { return stageProbe }

// Execute resolves the source file and records its duration and frame size.
// A source without audio cannot be transcribed and is rejected here.
func (s *probeStage) Execute(ctx context.Context, job *stage.Job) error {
	path, err := s.resolve(job.Task)
	if err != nil {
		return err
	}
	info, err := s.probe.Inspect(ctx, path)
	if err != nil {
		return services.Wrap(services.ErrStage, stageProbe, "inspect", path, err)
	}
	duration := info.DurationSeconds()
	if duration <= 0 {
		return services.Wrap(services.ErrStage, stageProbe, "inspect", "source reports no duration", nil)
	}
	if info.AudioStreamCount() == 0 {
		return services.Wrap(services.ErrValidation, stageProbe, "inspect", "source has no audio stream", nil)
	}
	job.SourcePath = path
	job.Duration = duration
	job.Language = language.ToISO2(job.Task.Payload.String(queue.FieldLanguage))
	for _, stream := range info.Streams {
		switch {
		case strings.EqualFold(stream.CodecType, "video") && stream.Width > 0 && job.Width == 0:
			job.Width, job.Height = stream.Width, stream.Height
		case strings.EqualFold(stream.CodecType, "audio") && job.Language == "":
			job.Language = language.FromStreamTags(stream.Tags)
		}
	}
	return nil
}

func (s *probeStage) resolve(task *queue.Task) (string, error) {
	field := queue.FieldSourcePath
	if task.Kind == queue.KindBurnSubtitles {
		field = queue.FieldClipPath
	}
	path := task.Payload.String(field)
	if path == "" && field == queue.FieldSourcePath {
		path = s.findUpload(task.Payload.String(queue.FieldVideoID))
	}
	if path == "" {
		return "", services.Wrap(services.ErrValidation, stageProbe, "resolve source",
			fmt.Sprintf("%s missing and no upload found", field), nil)
	}
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrValidation, stageProbe, "resolve source", path, err)
	}
	return path, nil
}

func (s *probeStage) findUpload(videoID string) string {
	if s.uploads == "" || videoID == "" || strings.ContainsAny(videoID, `/\*?[`) {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(s.uploads, videoID+".*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// clipInputStage turns a burn_subtitles payload into a single full-length clip.
type clipInputStage struct{}

func (clipInputStage) Name() string { return stageClipInput }

func (clipInputStage) Execute(_ context.Context, job *stage.Job) error {
	var words []subtitles.Word
	if _, err := job.Task.Payload.Decode(queue.FieldWords, &words); err != nil {
		return services.Wrap(services.ErrValidation, stageClipInput, "decode words", "", err)
	}
	if len(words) > 0 {
		job.Words = subtitles.NormalizeWords(words)
		job.Engine = highlights.SourceSupplied
	}
	name := strings.TrimSuffix(filepath.Base(job.SourcePath), filepath.Ext(job.SourcePath))
	job.Clips = []stage.Clip{{
		Index:     1,
		Highlight: highlights.Highlight{Start: 0, End: job.Duration, Title: name},
		Style:     job.Style,
		Path:      job.SourcePath,
	}}
	return nil
}
