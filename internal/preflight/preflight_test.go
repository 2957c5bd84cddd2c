package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"clipforge/internal/config"
	"clipforge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLM{APIKey: "good-key", BaseURL: srv.URL})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLM{APIKey: "bad-key", BaseURL: srv.URL})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "LLM", config.LLM{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %#v", result)
	}
}

func TestCheckQueue(t *testing.T) {
	if r := CheckQueue(context.Background(), config.Queue{}); !r.Passed || r.Detail != "in-memory" {
		t.Fatalf("unexpected memory result %#v", r)
	}
	if r := CheckQueue(context.Background(), config.Queue{DurableMemory: true}); !r.Passed {
		t.Fatalf("unexpected durable result %#v", r)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	if r := CheckQueue(context.Background(), config.Queue{URL: "redis://" + addr}); !r.Passed {
		t.Fatalf("expected redis pass, got %#v", r)
	}
	mr.Close()
	if r := CheckQueue(context.Background(), config.Queue{URL: "redis://" + addr, DialTimeoutSeconds: 1}); r.Passed {
		t.Fatal("expected failure once redis is down")
	}
}

func TestCheckSystemDepsUVXOptionalWithFallback(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := config.Default()

	for _, s := range CheckSystemDeps(&cfg) {
		if s.Name == "uvx" && s.Optional {
			t.Fatal("uvx must be required without a fallback engine")
		}
	}
	cfg.Transcription.FallbackAPIKey = "key"
	for _, s := range CheckSystemDeps(&cfg) {
		if s.Name == "uvx" && !s.Optional {
			t.Fatal("uvx must be optional with a fallback engine")
		}
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsMissingBinaries(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := config.Default()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.UploadsDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.ArtifactsDir = t.TempDir()
	cfg.LLM.APIKey = ""

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	names := map[string]bool{}
	for _, r := range failed {
		names[r.Name] = true
	}
	for _, want := range []string{"FFmpeg", "FFprobe", "uvx"} {
		if !names[want] {
			t.Fatalf("expected %s in failed checks, got %#v", want, failed)
		}
	}
	if names["Scratch directory"] || names["Task queue"] {
		t.Fatalf("unexpected failures %#v", failed)
	}
}

func TestRunAll_PassesWithStubbedBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected no failures, got %#v", failed)
	}
	for _, r := range results {
		if r.Name == "FFmpeg" && filepath.Dir(r.Detail) != filepath.Join(testsupport.BaseDir(cfg), "bin") {
			t.Fatalf("ffmpeg resolved to %q", r.Detail)
		}
	}
}
