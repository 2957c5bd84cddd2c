package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/api"
	"clipforge/internal/queue"
)

type cliEnv struct {
	queue      *queue.Queue
	server     *httptest.Server
	configPath string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("OPENROUTER_API_KEY", "")

	q := queue.NewMemory(queue.Options{})
	srv, err := api.New(api.Dependencies{Queue: q})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &cliEnv{
		queue:      q,
		server:     ts,
		configPath: filepath.Join(base, "missing.toml"),
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--config", e.configPath, "--api", e.server.URL}, args...)
	return runCLI(t, full...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnqueueAnalyze(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := env.run(t, "enqueue", "analyze", "v1", "--id", "job-1", "--language", "en")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "Queued analyze task job-1") {
		t.Fatalf("unexpected output %q", out)
	}
	task, err := env.queue.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Payload.String(queue.FieldLanguage) != "en" {
		t.Fatalf("language not forwarded: %#v", task.Payload)
	}
	if task.Payload.String(queue.FieldFormatID) != "" {
		t.Fatalf("analyze payload must not carry a format: %#v", task.Payload)
	}
}

func TestEnqueueClipsReportsValidationField(t *testing.T) {
	env := setupCLIEnv(t)

	_, err := env.run(t, "enqueue", "clips", "v1", "--format", "3:2")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "format_id") {
		t.Fatalf("expected field in error, got %v", err)
	}
}

func TestEnqueueClipsWithHighlightsFile(t *testing.T) {
	env := setupCLIEnv(t)
	path := filepath.Join(t.TempDir(), "highlights.json")
	if err := os.WriteFile(path, []byte(`[{"start":1,"end":20,"title":"a"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := env.run(t, "enqueue", "clips", "v1", "--id", "c1", "--highlights", path, "--style", "NEON"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, err := env.queue.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Payload.String(queue.FieldStyleID) != "neon" || task.Payload.String(queue.FieldFormatID) != "9:16" {
		t.Fatalf("unexpected payload %#v", task.Payload)
	}
	var hl []map[string]any
	if ok, err := task.Payload.Decode(queue.FieldHighlights, &hl); err != nil || !ok || len(hl) != 1 {
		t.Fatalf("highlights not forwarded: ok=%v err=%v %#v", ok, err, hl)
	}
}

func TestStatusAndStats(t *testing.T) {
	env := setupCLIEnv(t)
	if _, err := env.run(t, "enqueue", "analyze", "v1", "--id", "s1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, err := env.run(t, "status", "s1", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, `"status": "queued"`) {
		t.Fatalf("unexpected status output %q", out)
	}

	out, err = env.run(t, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"Backend", "memory", "Queued"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q: %q", want, out)
		}
	}
}

func TestStylesListsRegistry(t *testing.T) {
	out, err := runCLI(t, "styles")
	if err != nil {
		t.Fatalf("styles: %v", err)
	}
	for _, want := range []string{"modern", "Neon", "Georgia", "9:16", "720x1280"} {
		if !strings.Contains(out, want) {
			t.Fatalf("styles output missing %q:\n%s", want, out)
		}
	}
}

func TestSubtitlesPreviewSRT(t *testing.T) {
	env := setupCLIEnv(t)
	path := filepath.Join(t.TempDir(), "words.json")
	words := `[{"text":"hello","start":0,"end":0.4},{"text":"big","start":0.5,"end":0.8},{"text":"world","start":0.9,"end":1.3},{"text":"again","start":1.4,"end":1.8}]`
	if err := os.WriteFile(path, []byte(words), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run(t, "subtitles", "preview", path, "-o", "srt", "--max-words", "3")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "1\n00:00:00,000 --> 00:00:01,300\nhello big world") {
		t.Fatalf("unexpected srt:\n%s", out)
	}
	if !strings.Contains(out, "2\n00:00:01,400 --> 00:00:01,800\nagain") {
		t.Fatalf("missing second cue:\n%s", out)
	}

	out, err = env.run(t, "subtitles", "preview", path, "--format", "16:9")
	if err != nil {
		t.Fatalf("ass preview: %v", err)
	}
	if !strings.Contains(out, "PlayResX: 1280") || !strings.Contains(out, `{\k`) {
		t.Fatalf("unexpected ass:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "clipforge.toml")

	if _, err := runCLI(t, "config", "init", "--path", target); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists")
	}

	out, err := runCLI(t, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, target) {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestNewAPIClientNormalizesAddress(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:7480":      "http://127.0.0.1:7480",
		":9000":               "http://127.0.0.1:9000",
		"https://worker:443/": "https://worker:443",
	}
	for in, want := range cases {
		if got := newAPIClient(in, "").base; got != want {
			t.Fatalf("newAPIClient(%q) base = %q, want %q", in, got, want)
		}
	}
}
