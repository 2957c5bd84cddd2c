package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/artifacts"
	"clipforge/internal/config"
	"clipforge/internal/highlights"
	"clipforge/internal/media"
	"clipforge/internal/media/ffmpeg"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/services/llm"
	"clipforge/internal/subtitles"
	"clipforge/internal/transcription"
)

// DepsFromConfig wires the production collaborators: ffprobe and ffmpeg from
// the configured binaries, the WhisperX chain, the LLM analyzer and store.
// rdb may be nil, in which case transcripts are cached in memory.
func DepsFromConfig(cfg *config.Config, rdb redis.Cmdable, store artifacts.Store, logger *slog.Logger) (Deps, error) {
	style, err := subtitles.ParseStyle(cfg.Subtitles.DefaultStyle)
	if err != nil {
		return Deps{}, err
	}
	ffprobeBinary := cfg.FFprobeBinary()
	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	return Deps{
		Probe: ProbeFunc(func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, ffprobeBinary, path)
		}),
		Renderer:     ffmpeg.New(cfg.FFmpegBinary(), media.ExecRunner),
		Transcriber:  transcription.FromConfig(cfg, rdb, logger),
		Analyzer:     highlights.NewAnalyzer(client, logger),
		Store:        store,
		MaxWords:     cfg.Subtitles.MaxWords,
		MaxDuration:  cfg.Subtitles.MaxDuration(),
		DefaultStyle: style,
		ScratchDir:   cfg.Paths.ScratchDir,
		UploadsDir:   cfg.Paths.UploadsDir,
		ClipWorkers:  cfg.Workflow.Concurrency + 1,
		Logger:       logger,
	}, nil
}
