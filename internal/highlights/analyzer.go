package highlights

import (
	"context"
	"errors"
	"log/slog"

	"clipforge/internal/logging"
	"clipforge/internal/services/llm"
	"clipforge/internal/subtitles"
)

// Completer is the language model contract the analyzer needs.
type Completer interface {
	Configured() bool
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Source names where a selection came from.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
	SourceSupplied = "supplied"
)

// Analysis is the outcome of highlight selection.
type Analysis struct {
	Highlights []Highlight `json:"highlights"`
	Rejected   []Rejection `json:"rejected,omitempty"`
	Quality    Quality     `json:"quality"`
	Source     string      `json:"source"`
}

// Analyzer selects highlights.
type Analyzer struct {
	llm    Completer
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil client always uses the fallback.
func NewAnalyzer(client Completer, logger *slog.Logger) *Analyzer {
	return &Analyzer{llm: client, logger: logging.NewComponentLogger(logger, "highlights")}
}

type modelResponse struct {
	Highlights []Highlight `json:"highlights"`
}

// Analyze asks the model for highlights and validates the answer. Model
// failures are absorbed by the fallback generator; the only error returned
// is context cancellation.
func (a *Analyzer) Analyze(ctx context.Context, words []subtitles.Word, duration float64) (Analysis, error) {
	logger := logging.WithContext(ctx, a.logger)

	if a.llm != nil && a.llm.Configured() && len(words) > 0 {
		proposed, err := a.ask(ctx, words, duration)
		if err != nil && ctx.Err() != nil {
			return Analysis{}, ctx.Err()
		}
		if err == nil {
			accepted, rejected := Validate(proposed, duration)
			a.logRejections(logger, rejected)
			if len(accepted) > 0 {
				return a.finish(logger, Analysis{Highlights: accepted, Rejected: rejected, Source: SourceLLM}, duration), nil
			}
			err = errors.New("no valid highlights in model response")
		}
		logging.WarnWithContext(logger, "highlight analysis failed; using fallback", "highlight_fallback",
			logging.String(logging.FieldImpact, "clips are evenly spaced instead of content selected"),
			logging.String(logging.FieldErrorHint, "check llm api key and model"),
			logging.Error(err))
	}

	return a.finish(logger, Analysis{Highlights: Fallback(duration), Source: SourceFallback}, duration), nil
}

// Supplied validates caller-provided highlights with the same policy used
// for model output.
func (a *Analyzer) Supplied(ctx context.Context, proposed []Highlight, duration float64) Analysis {
	logger := logging.WithContext(ctx, a.logger)
	accepted, rejected := Validate(proposed, duration)
	a.logRejections(logger, rejected)
	return a.finish(logger, Analysis{Highlights: accepted, Rejected: rejected, Source: SourceSupplied}, duration)
}

func (a *Analyzer) ask(ctx context.Context, words []subtitles.Word, duration float64) ([]Highlight, error) {
	content, err := a.llm.CompleteJSON(ctx, SystemPrompt, UserPrompt(words, duration))
	if err != nil {
		return nil, err
	}
	var parsed modelResponse
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return nil, err
	}
	return parsed.Highlights, nil
}

func (a *Analyzer) finish(logger *slog.Logger, analysis Analysis, duration float64) Analysis {
	analysis.Quality = Measure(analysis.Highlights, duration)
	logger.Info("highlights selected",
		logging.String("source", analysis.Source),
		logging.Int("accepted", len(analysis.Highlights)),
		logging.Int("rejected", len(analysis.Rejected)),
		logging.Float64("coverage", analysis.Quality.Coverage),
		logging.String("quality", analysis.Quality.Overall))
	return analysis
}

func (a *Analyzer) logRejections(logger *slog.Logger, rejected []Rejection) {
	for _, r := range rejected {
		logging.WarnWithContext(logger, "highlight rejected", "highlight_rejected",
			logging.String("reason", r.Reason),
			logging.Float64("start", r.Highlight.Start),
			logging.Float64("end", r.Highlight.End),
			logging.String("title", r.Highlight.Title),
			logging.String(logging.FieldImpact, "highlight skipped; remaining highlights still processed"))
	}
}
