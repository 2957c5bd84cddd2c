package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"clipforge/internal/artifacts"
	"clipforge/internal/highlights"
	"clipforge/internal/logging"
	"clipforge/internal/media"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/subtitles"
	"clipforge/internal/transcription"
)

// Prober inspects a media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// ProbeFunc adapts a function into a Prober.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Inspect implements Prober.
func (f ProbeFunc) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return f(ctx, path)
}

// Renderer produces audio tracks, clips and burned clips.
type Renderer interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	ExtractClip(ctx context.Context, source, dest string, start, end float64, format media.Format) error
	Burn(ctx context.Context, clip, assPath, dest string) error
}

// Transcriber turns audio into words.
type Transcriber interface {
	Transcribe(ctx context.Context, sourcePath string, req transcription.Request) (transcription.Result, error)
	Engines() []string
}

// HighlightAnalyzer selects highlight windows.
type HighlightAnalyzer interface {
	Analyze(ctx context.Context, words []subtitles.Word, duration float64) (highlights.Analysis, error)
	Supplied(ctx context.Context, proposed []highlights.Highlight, duration float64) highlights.Analysis
}

// Deps are the collaborators the stages call.
type Deps struct {
	Probe       Prober
	Renderer    Renderer
	Transcriber Transcriber
	Analyzer    HighlightAnalyzer
	Store       artifacts.Store

	MaxWords     int
	MaxDuration  time.Duration
	DefaultStyle subtitles.StyleID

	ScratchDir string
	// UploadsDir is searched for <video_id>.* when a payload has no source_path.
	UploadsDir string
	// ClipWorkers bounds parallel ffmpeg invocations within one task.
	ClipWorkers int
	Logger      *slog.Logger
}

// Pipeline maps task kinds to stage sequences.
type Pipeline struct {
	deps      Deps
	opts      stage.Options
	logger    *slog.Logger
	sequences map[queue.Kind]*stage.Sequence
}

// New validates deps and builds the default sequence for every kind.
func New(deps Deps, opts stage.Options) (*Pipeline, error) {
	switch {
	case deps.Probe == nil:
		return nil, fmt.Errorf("pipeline: prober required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("pipeline: renderer required")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("pipeline: transcriber required")
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("pipeline: highlight analyzer required")
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline: artifact store required")
	case deps.ScratchDir == "":
		return nil, fmt.Errorf("pipeline: scratch dir required")
	}
	if !deps.DefaultStyle.Valid() {
		return nil, fmt.Errorf("pipeline: %w", subtitles.ErrUnknownStyle)
	}
	if deps.ClipWorkers <= 0 {
		deps.ClipWorkers = 2
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	deps.Logger = logging.NewComponentLogger(logger, "pipeline")
	if opts.Logger == nil {
		opts.Logger = deps.Logger
	}

	p := &Pipeline{deps: deps, opts: opts, logger: deps.Logger, sequences: make(map[queue.Kind]*stage.Sequence)}

	probe := &probeStage{probe: deps.Probe, uploads: deps.UploadsDir}
	audio := &audioStage{renderer: deps.Renderer}
	transcribe := &transcribeStage{transcriber: deps.Transcriber}
	selectHL := &highlightStage{analyzer: deps.Analyzer}
	clips := &clipStage{renderer: deps.Renderer, workers: deps.ClipWorkers, logger: deps.Logger}
	subs := &subtitleStage{maxWords: deps.MaxWords, maxDuration: deps.MaxDuration}
	burn := &burnStage{renderer: deps.Renderer, workers: deps.ClipWorkers}
	publish := &publishStage{store: deps.Store}

	p.Replace(queue.KindAnalyze, probe, audio, transcribe, selectHL)
	p.Replace(queue.KindGenerateClips, probe, audio, transcribe, selectHL, clips, subs, burn, publish)
	p.Replace(queue.KindBurnSubtitles, probe, clipInputStage{}, audio, transcribe, subs, burn, publish)
	return p, nil
}

// Replace installs handlers as the sequence for kind.
func (p *Pipeline) Replace(kind queue.Kind, handlers ...stage.Handler) {
	p.sequences[kind] = stage.NewSequence(string(kind), p.opts, handlers...)
}

// Sequence returns the sequence registered for kind.
func (p *Pipeline) Sequence(kind queue.Kind) (*stage.Sequence, bool) {
	seq, ok := p.sequences[kind]
	return seq, ok
}

// Health reports every stage dependency that can check itself.
func (p *Pipeline) Health(ctx context.Context) []stage.Health {
	seen := make(map[string]bool)
	var out []stage.Health
	for _, kind := range queue.Kinds() {
		seq, ok := p.sequences[kind]
		if !ok {
			continue
		}
		for _, h := range seq.Handlers() {
			checker, ok := h.(stage.HealthChecker)
			if !ok || seen[h.Name()] {
				continue
			}
			seen[h.Name()] = true
			out = append(out, checker.HealthCheck(ctx))
		}
	}
	return out
}

// Execute runs the sequence for task.Kind and returns the kind's result
// document. progress receives stage-level completion percentages.
func (p *Pipeline) Execute(ctx context.Context, task *queue.Task, progress func(int)) (any, error) {
	seq, ok := p.sequences[task.Kind]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "execute", fmt.Sprintf("no stages for kind %q", task.Kind), nil)
	}
	job, err := p.newJob(task, progress)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStage, "pipeline", "create scratch dir", job.WorkDir, err)
	}
	if err := seq.Run(ctx, job); err != nil {
		return nil, err
	}
	return p.result(job), nil
}

func (p *Pipeline) newJob(task *queue.Task, progress func(int)) (*stage.Job, error) {
	job := &stage.Job{
		Task:     task,
		WorkDir:  filepath.Join(p.deps.ScratchDir, task.ID),
		Format:   media.DefaultFormat,
		Style:    p.deps.DefaultStyle,
		Progress: progress,
	}
	if raw := task.Payload.String(queue.FieldFormatID); raw != "" {
		format, err := media.ParseFormat(raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "format", raw, err)
		}
		job.Format = format
	}
	if raw := task.Payload.String(queue.FieldStyleID); raw != "" {
		style, err := subtitles.ParseStyle(raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "style", raw, err)
		}
		job.Style = style
	}
	return job, nil
}
