// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, worker identities and
//     correlation identifiers for logging and tracing.
//   - The error taxonomy (validation, transient backend, engine unavailable,
//     stage and fatal worker markers) plus the Wrap helper that tags lower
//     level causes so the worker pool can classify failures.
//
// Use these helpers when wiring new stage logic so failure handling and
// observability stay uniform across the pipeline.
package services
