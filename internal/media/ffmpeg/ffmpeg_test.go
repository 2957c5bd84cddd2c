package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/media"
)

// fakeRunner records invocations and writes a placeholder output file.
type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return []byte("encoder exploded"), f.err
	}
	dest := args[len(args)-1]
	return nil, os.WriteFile(dest, []byte("data"), 0o644)
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestClipArgsUseFormatFilter(t *testing.T) {
	format, err := media.ParseFormat("9:16")
	if err != nil {
		t.Fatalf("ParseFormat: %v", err)
	}
	joined := strings.Join(ClipArgs("in.mp4", "out.mp4", 10, 28.5, format), " ")
	for _, want := range []string{
		"-ss 10.000",
		"-t 18.500",
		"-vf scale=720:1280:force_original_aspect_ratio=increase,crop=720:1280",
		"-c:v libx264 -preset fast -crf 23",
		"-c:a aac -b:a 128k",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("clip args missing %q: %s", want, joined)
		}
	}
}

func TestExtractAudioIsMono16k(t *testing.T) {
	joined := strings.Join(ExtractAudioArgs("in.mp4", "out.wav"), " ")
	if !strings.Contains(joined, "-vn -ac 1 -ar 16000") {
		t.Fatalf("unexpected audio args: %s", joined)
	}
}

func TestBurnEscapesSubtitlePath(t *testing.T) {
	args := BurnArgs("clip.mp4", `/tmp/a:b/it's.ass`, "final.mp4")
	var filter string
	for i, arg := range args {
		if arg == "-vf" {
			filter = args[i+1]
		}
	}
	if filter != `ass='/tmp/a\:b/it\'s.ass'` {
		t.Fatalf("unexpected filter %q", filter)
	}
}

func TestRendererRunsAndChecksOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeInput(t, dir, "src.mp4")
	fake := &fakeRunner{}
	r := New("", fake.run)

	dest := filepath.Join(dir, "clips", "clip_1.mp4")
	if err := r.ExtractClip(context.Background(), src, dest, 0, 18, media.DefaultFormat); err != nil {
		t.Fatalf("ExtractClip: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0][0] != "ffmpeg" {
		t.Fatalf("unexpected calls %v", fake.calls)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected output: %v", err)
	}
}

func TestRendererReportsFailureOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeInput(t, dir, "src.mp4")
	r := New("ffmpeg", (&fakeRunner{err: errors.New("exit status 1")}).run)

	err := r.ExtractAudio(context.Background(), src, filepath.Join(dir, "audio.wav"))
	if err == nil || !strings.Contains(err.Error(), "encoder exploded") {
		t.Fatalf("expected wrapped output, got %v", err)
	}
}

func TestRendererRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	r := New("ffmpeg", (&fakeRunner{}).run)
	if err := r.ExtractClip(context.Background(), filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "o.mp4"), 0, 5, media.DefaultFormat); err == nil {
		t.Fatal("expected missing input error")
	}
	src := writeInput(t, dir, "src.mp4")
	if err := r.ExtractClip(context.Background(), src, filepath.Join(dir, "o.mp4"), 5, 5, media.DefaultFormat); err == nil {
		t.Fatal("expected empty range error")
	}
}
