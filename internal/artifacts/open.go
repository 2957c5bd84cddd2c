package artifacts

import (
	"context"
	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/logging"
)

// Open returns the MinIO store when configured and reachable, otherwise the
// local store under the artifacts directory.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg.Storage.MinioEnabled() {
		store, err := NewMinioStore(ctx, MinioConfigFrom(cfg.Storage))
		if err == nil {
			return store, nil
		}
		logging.WarnWithContext(logger, "minio unavailable; storing artifacts locally", "artifact_store_fallback",
			logging.String(logging.FieldImpact, "clips are kept on the worker's disk"),
			logging.String(logging.FieldErrorHint, "check storage.minio_endpoint and credentials"),
			logging.Error(err))
	}
	return NewLocalStore(cfg.Paths.ArtifactsDir)
}
