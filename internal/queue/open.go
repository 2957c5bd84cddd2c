package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"clipforge/internal/config"
	"clipforge/internal/logging"
)

// Open builds the queue described by cfg. A configured redis URL is tried
// first; when it cannot be reached the queue degrades to local storage and
// keeps going. Only a failure of the local store itself is returned.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "queue")

	opts := Options{
		Retries:      cfg.Queue.OperationRetries,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		LeaseTimeout: cfg.Workflow.LeaseTimeout(),
		Logger:       logger,
	}

	if cfg.Queue.URL != "" {
		client, err := NewRedisClient(ctx, cfg.Queue.URL, cfg.Queue.DialTimeout())
		if err == nil {
			backend := NewRedisBackend(client, cfg.Queue.KeyPrefix, cfg.Queue.ResultTTL())
			results := NewRedisResults(client, cfg.Queue.KeyPrefix, cfg.Queue.ResultTTL())
			logger.Info("queue backend selected", logging.String("backend", backend.Name()))
			return New(backend, results, opts), nil
		}
		logging.WarnWithContext(logger, "queue backend unreachable; falling back to local storage", "queue_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue.url and that the redis server is running"),
			logging.String(logging.FieldImpact, "queue is not shared with other processes"),
		)
		opts.Degraded = true
	}

	backend, results, err := openLocal(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("queue backend selected", logging.String("backend", backend.Name()), logging.Bool("degraded", opts.Degraded))
	return New(backend, results, opts), nil
}

func openLocal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, ResultStore, error) {
	if !cfg.Queue.DurableMemory {
		return NewMemoryBackend(), NewMemoryResults(), nil
	}
	path := cfg.StatePath("queue.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	store, err := OpenSQLite(ctx, path, cfg.Queue.ResultTTL())
	if err != nil {
		logging.WarnWithContext(logger, "durable queue unavailable; using process memory", "queue_fallback",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldImpact, "queued tasks are lost on restart"),
		)
		return NewMemoryBackend(), NewMemoryResults(), nil
	}
	return store, store.Results(), nil
}
