package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"clipforge/internal/highlights"
	"clipforge/internal/logging"
	"clipforge/internal/media"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/subtitles"
)

const (
	stageHighlights = "highlights"
	stageClips      = "clips"
	stageSubtitles  = "subtitles"
	stageBurn       = "burn"
)

type highlightStage struct {
	analyzer HighlightAnalyzer
}

func (s *highlightStage) Name() string { return stageHighlights }

// Execute validates caller-supplied highlights when present and asks the
// analyzer otherwise.
func (s *highlightStage) Execute(ctx context.Context, job *stage.Job) error {
	var proposed []highlights.Highlight
	if _, err := job.Task.Payload.Decode(queue.FieldHighlights, &proposed); err != nil {
		return services.Wrap(services.ErrValidation, stageHighlights, "decode highlights", "", err)
	}
	if len(proposed) > 0 {
		job.Analysis = s.analyzer.Supplied(ctx, proposed, job.Duration)
		return nil
	}
	analysis, err := s.analyzer.Analyze(ctx, job.Words, job.Duration)
	if err != nil {
		return err
	}
	job.Analysis = analysis
	return nil
}

type clipStage struct {
	renderer Renderer
	workers  int
	logger   *slog.Logger
}

func (s *clipStage) Name() string { return stageClips }

// Execute cuts one clip per accepted highlight, at most workers at a time.
func (s *clipStage) Execute(ctx context.Context, job *stage.Job) error {
	accepted := job.Analysis.Highlights
	if len(accepted) == 0 {
		return services.Wrap(services.ErrStage, stageClips, "select", "no valid highlights", nil)
	}
	logger := logging.WithContext(ctx, s.logger)

	clips := make([]stage.Clip, len(accepted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, h := range accepted {
		h := h
		clips[i] = stage.Clip{
			Index:     i + 1,
			Highlight: h,
			Format:    job.Format.ID,
			Style:     job.Style,
			Path:      job.Scratch(fmt.Sprintf("clip_%02d.mp4", i+1)),
		}
		clip := &clips[i]
		g.Go(func() error {
			started := time.Now()
			if err := s.renderer.ExtractClip(gctx, job.SourcePath, clip.Path, h.Start, h.End, job.Format); err != nil {
				return fmt.Errorf("clip %d (%.2f-%.2f): %w", clip.Index, h.Start, h.End, err)
			}
			logger.Debug("clip extracted",
				logging.Int("clip", clip.Index),
				logging.Float64("start", h.Start),
				logging.Float64("end", h.End),
				logging.Duration("elapsed", time.Since(started)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	job.Clips = clips
	return nil
}

type subtitleStage struct {
	maxWords    int
	maxDuration time.Duration
}

func (s *subtitleStage) Name() string { return stageSubtitles }

// Execute writes an ASS karaoke track and an SRT export for every clip.
// A clip with no speech still gets a valid, empty ASS file so burn-in runs.
func (s *subtitleStage) Execute(_ context.Context, job *stage.Job) error {
	if len(job.Clips) == 0 {
		return services.Wrap(services.ErrStage, stageSubtitles, "render", "no clips to subtitle", nil)
	}
	for i := range job.Clips {
		clip := &job.Clips[i]
		sync, err := subtitles.NewSynchronizer(subtitles.Options{
			MaxWords:    s.maxWords,
			MaxDuration: s.maxDuration,
			Style:       clip.Style,
		})
		if err != nil {
			return services.Wrap(services.ErrValidation, stageSubtitles, "style", clip.Style.String(), err)
		}
		style, err := subtitles.Lookup(clip.Style)
		if err != nil {
			return err
		}

		clip.Words = subtitles.ClipWords(job.Words, clip.Highlight.Start, clip.Highlight.End)
		groups := sync.Group(clip.Words)
		clip.Directives = sync.Directives(clip.Words)
		clip.Phrases = len(groups)

		clip.SubtitlePath = job.Scratch(fmt.Sprintf("clip_%02d.ass", clip.Index))
		if err := writeFile(clip.SubtitlePath, func(f *os.File) error {
			return subtitles.WriteASS(f, clip.Directives, style, resolutionFor(*clip, job))
		}); err != nil {
			return services.Wrap(services.ErrStage, stageSubtitles, "write ass", clip.SubtitlePath, err)
		}
		clip.SRTPath = job.Scratch(fmt.Sprintf("clip_%02d.srt", clip.Index))
		if err := writeFile(clip.SRTPath, func(f *os.File) error {
			return subtitles.WriteSRT(f, groups)
		}); err != nil {
			return services.Wrap(services.ErrStage, stageSubtitles, "write srt", clip.SRTPath, err)
		}
	}
	return nil
}

func resolutionFor(clip stage.Clip, job *stage.Job) subtitles.Resolution {
	if f, err := media.ParseFormat(clip.Format); err == nil {
		return subtitles.Resolution{Width: f.Width, Height: f.Height}
	}
	return subtitles.Resolution{Width: job.Width, Height: job.Height}
}

type burnStage struct {
	renderer Renderer
	workers  int
}

func (s *burnStage) Name() string { return stageBurn }

func (s *burnStage) Execute(ctx context.Context, job *stage.Job) error {
	for _, clip := range job.Clips {
		if clip.SubtitlePath == "" {
			return services.Wrap(services.ErrStage, stageBurn, "burn", fmt.Sprintf("clip %d has no subtitle track", clip.Index), nil)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range job.Clips {
		clip := &job.Clips[i]
		dest := job.Scratch(fmt.Sprintf("final_%02d.mp4", clip.Index))
		g.Go(func() error {
			if err := s.renderer.Burn(gctx, clip.Path, clip.SubtitlePath, dest); err != nil {
				return fmt.Errorf("clip %d: %w", clip.Index, err)
			}
			clip.FinalPath = dest
			return nil
		})
	}
	return g.Wait()
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
