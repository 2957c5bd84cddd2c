package pipeline

import (
	"context"
	"strings"

	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/transcription"
)

const (
	stageAudio      = "audio"
	stageTranscribe = "transcribe"
)

type audioStage struct {
	renderer Renderer
}

func (s *audioStage) Name() string { return stageAudio }

// Execute extracts a 16 kHz mono track. Jobs that already carry words skip it.
func (s *audioStage) Execute(ctx context.Context, job *stage.Job) error {
	if len(job.Words) > 0 {
		return nil
	}
	dest := job.Scratch("audio.wav")
	if err := s.renderer.ExtractAudio(ctx, job.SourcePath, dest); err != nil {
		return services.Wrap(services.ErrStage, stageAudio, "extract", job.SourcePath, err)
	}
	job.AudioPath = dest
	return nil
}

type transcribeStage struct {
	transcriber Transcriber
}

func (s *transcribeStage) Name() string { return stageTranscribe }

func (s *transcribeStage) Execute(ctx context.Context, job *stage.Job) error {
	if len(job.Words) > 0 {
		return nil
	}
	res, err := s.transcriber.Transcribe(ctx, job.SourcePath, transcription.Request{
		AudioPath: job.AudioPath,
		WorkDir:   job.Scratch("transcript"),
		Language:  job.Language,
	})
	if err != nil {
		return err
	}
	job.Words = res.Words
	job.Engine = res.Engine
	job.Fallback = res.Fallback
	return nil
}

// HealthCheck lists the configured engines in fallback order.
func (s *transcribeStage) HealthCheck(context.Context) stage.Health {
	engines := s.transcriber.Engines()
	if len(engines) == 0 {
		return stage.Unhealthy(stageTranscribe, "no transcription engines configured")
	}
	h := stage.Healthy(stageTranscribe)
	h.Detail = strings.Join(engines, " -> ")
	return h
}
