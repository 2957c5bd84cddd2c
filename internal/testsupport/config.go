package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory with zero
// backoffs, memory queue mode and no integrations enabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.UploadsDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ArtifactsDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Queue.URL = ""
	cfgVal.Queue.DialTimeoutSeconds = 1
	cfgVal.Queue.OperationRetries = 0
	cfgVal.Workflow.WorkerID = "test-worker"
	cfgVal.Workflow.PollIntervalMillis = 0
	cfgVal.Workflow.ErrorBackoffMillis = 0
	cfgVal.Workflow.HeartbeatIntervalSeconds = 1
	cfgVal.Workflow.LeaseTimeoutSeconds = 30
	cfgVal.Workflow.StageTimeoutSeconds = 30
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = ""
	cfgVal.Transcription.FallbackAPIKey = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithQueueURL points the queue at a networked backend.
func WithQueueURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.URL = url
	}
}

// WithDurableMemory persists the local queue to sqlite under the state dir.
func WithDurableMemory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.DurableMemory = true
	}
}

// WithConcurrency sets the per-worker task concurrency.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Concurrency = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg, ffprobe and uvx are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ScratchDir)
}
