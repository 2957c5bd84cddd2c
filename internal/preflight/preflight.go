package preflight

import (
	"context"

	"clipforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes every applicable check for cfg. Integrations without
// configuration are skipped.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckDirectoryAccess("Uploads directory", cfg.Paths.UploadsDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if !cfg.Storage.MinioEnabled() {
		results = append(results, CheckDirectoryAccess("Artifacts directory", cfg.Paths.ArtifactsDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Command
		}
		results = append(results, result)
	}

	results = append(results, CheckQueue(ctx, cfg.Queue))
	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "Highlight LLM", cfg.LLM))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
