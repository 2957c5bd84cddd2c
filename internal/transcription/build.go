package transcription

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/config"
	"clipforge/internal/services/whisperapi"
	"clipforge/internal/services/whisperx"
)

// FromConfig assembles the WhisperX then HTTP chain. The HTTP fallback is
// only added when an API key is configured. A non-nil rdb selects the shared
// redis cache; otherwise transcripts are cached in memory.
func FromConfig(cfg *config.Config, rdb redis.Cmdable, logger *slog.Logger) *Chain {
	providers := []Provider{
		WhisperX{Service: whisperx.NewService(whisperx.Config{
			Model:       cfg.Transcription.WhisperXModel,
			CUDAEnabled: cfg.Transcription.CUDA,
			VADMethod:   cfg.Transcription.VADMethod,
			HFToken:     cfg.Transcription.HuggingFace,
		})},
	}
	if cfg.Transcription.FallbackAPIKey != "" {
		providers = append(providers, WhisperAPI{Client: whisperapi.NewClient(whisperapi.Config{
			URL:    cfg.Transcription.FallbackURL,
			APIKey: cfg.Transcription.FallbackAPIKey,
			Model:  cfg.Transcription.FallbackModel,
		}, nil)})
	}

	var cache Cache
	if rdb != nil {
		cache = NewRedisCache(rdb, cfg.Queue.KeyPrefix, cfg.Transcription.CacheTTL())
	} else {
		cache = NewMemoryCache(cfg.Transcription.CacheTTL())
	}
	return NewChain(logger, cache, providers...)
}
