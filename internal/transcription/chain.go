package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/subtitles"
)

// Result is a transcript plus the diagnostics callers may surface.
type Result struct {
	Words    []subtitles.Word `json:"words"`
	Engine   string           `json:"engine"`
	Fallback bool             `json:"fallback"`
	Cached   bool             `json:"cached"`
}

// Chain tries providers in order until one succeeds.
type Chain struct {
	providers []Provider
	cache     Cache
	logger    *slog.Logger
}

// NewChain builds a chain. A nil cache disables caching.
func NewChain(logger *slog.Logger, cache Cache, providers ...Provider) *Chain {
	var kept []Provider
	for _, p := range providers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Chain{
		providers: kept,
		cache:     cache,
		logger:    logging.NewComponentLogger(logger, "transcription"),
	}
}

// Engines lists provider names in the order they are tried.
func (c *Chain) Engines() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Transcribe returns the words for req. When sourcePath is non-empty its
// fingerprint keys the cache. An empty word list from a provider counts as
// a failure so the next engine gets a chance.
func (c *Chain) Transcribe(ctx context.Context, sourcePath string, req Request) (Result, error) {
	logger := logging.WithContext(ctx, c.logger)
	if len(c.providers) == 0 {
		return Result{}, services.Wrap(services.ErrEngineUnavailable, "transcribe", "", "no transcription engine configured", nil)
	}

	var key string
	if c.cache != nil && strings.TrimSpace(sourcePath) != "" {
		fp, err := Fingerprint(sourcePath)
		if err != nil {
			logger.Debug("transcript fingerprint failed", logging.Error(err))
		} else {
			key = fp
			cached, ok, err := c.cache.Get(ctx, key)
			switch {
			case err != nil:
				logging.WarnWithContext(logger, "transcript cache read failed", "transcript_cache_error",
					logging.String(logging.FieldImpact, "transcribing without cache"),
					logging.Error(err))
			case ok:
				logger.Info("transcript cache hit",
					logging.String("engine", cached.Engine),
					logging.Int("words", len(cached.Words)))
				cached.Cached = true
				return cached, nil
			}
		}
	}

	var errs []error
	for i, provider := range c.providers {
		started := time.Now()
		words, err := provider.Transcribe(ctx, req)
		if err == nil {
			words = subtitles.NormalizeWords(words)
			if len(words) == 0 {
				err = errors.New("transcript contains no timed words")
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			if i < len(c.providers)-1 {
				logging.WarnWithContext(logger, "transcription engine failed; trying next", "transcription_fallback",
					logging.String("engine", provider.Name()),
					logging.String("next_engine", c.providers[i+1].Name()),
					logging.String(logging.FieldImpact, "transcript produced by fallback engine"),
					logging.Error(err))
			}
			continue
		}

		result := Result{Words: words, Engine: provider.Name(), Fallback: i > 0}
		logger.Info("transcription complete",
			logging.String("engine", result.Engine),
			logging.Bool("fallback", result.Fallback),
			logging.Int("words", len(words)),
			logging.Duration("elapsed", time.Since(started)))
		if key != "" {
			if err := c.cache.Set(ctx, key, result); err != nil {
				logger.Debug("transcript cache write failed", logging.Error(err))
			}
		}
		return result, nil
	}
	return Result{}, services.Wrap(services.ErrEngineUnavailable, "transcribe", "", "all engines failed", errors.Join(errs...))
}
