package transcription

import (
	"context"
	"strings"

	"clipforge/internal/services/whisperapi"
	"clipforge/internal/services/whisperx"
	"clipforge/internal/subtitles"
)

// Request is the input shared by every provider.
type Request struct {
	AudioPath string
	WorkDir   string
	Language  string
}

// Provider is one transcription engine.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, req Request) ([]subtitles.Word, error)
}

// WhisperX adapts the WhisperX command line engine.
type WhisperX struct {
	Service *whisperx.Service
}

// Name implements Provider.
func (p WhisperX) Name() string { return p.Service.Name() }

// Transcribe implements Provider. Words WhisperX could not align carry no
// timing and are dropped.
func (p WhisperX) Transcribe(ctx context.Context, req Request) ([]subtitles.Word, error) {
	transcript, err := p.Service.Transcribe(ctx, req.AudioPath, req.WorkDir, req.Language)
	if err != nil {
		return nil, err
	}
	var words []subtitles.Word
	for _, seg := range transcript.Segments {
		for _, w := range seg.Words {
			if w.End <= w.Start {
				continue
			}
			words = append(words, subtitles.Word{
				Text:       strings.TrimSpace(w.Word),
				Start:      w.Start,
				End:        w.End,
				Confidence: w.Score,
			})
		}
	}
	return words, nil
}

// WhisperAPI adapts the OpenAI-compatible HTTP endpoint.
type WhisperAPI struct {
	Client *whisperapi.Client
}

// Name implements Provider.
func (p WhisperAPI) Name() string { return p.Client.Name() }

// Transcribe implements Provider.
func (p WhisperAPI) Transcribe(ctx context.Context, req Request) ([]subtitles.Word, error) {
	resp, err := p.Client.Transcribe(ctx, req.AudioPath, req.Language)
	if err != nil {
		return nil, err
	}
	words := make([]subtitles.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		if w.End <= w.Start {
			continue
		}
		words = append(words, subtitles.Word{Text: strings.TrimSpace(w.Word), Start: w.Start, End: w.End})
	}
	return words, nil
}
