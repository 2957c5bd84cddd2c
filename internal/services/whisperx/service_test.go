package whisperx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/services"
)

func TestTranscribeParsesWordTimings(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")

	var gotArgs []string
	svc := NewService(Config{Model: "small", VADMethod: VADMethodPyannote, HFToken: "hf"}).
		WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
			if name != UVXCommand {
				t.Fatalf("unexpected command %s", name)
			}
			gotArgs = args
			out := `{"language":"en","segments":[{"text":"hello there","start":0.1,"end":0.9,"words":[{"word":"hello","start":0.1,"end":0.4,"score":0.9},{"word":"there","start":0.5,"end":0.9,"score":0.8}]}]}`
			return nil, os.WriteFile(filepath.Join(dir, "audio.json"), []byte(out), 0o644)
		})

	transcript, err := svc.Transcribe(context.Background(), audio, dir, "EN")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(transcript.Segments) != 1 || len(transcript.Segments[0].Words) != 2 {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
	if w := transcript.Segments[0].Words[1]; w.Word != "there" || w.Start != 0.5 || w.End != 0.9 {
		t.Fatalf("unexpected word %+v", w)
	}

	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"--model small", "--vad_method pyannote", "--hf_token hf", "--language en", "--device cpu", "--output_format json"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
}

func TestTranscribeFailureIsEngineUnavailable(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{}).WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("loading model\nCUDA out of memory"), errors.New("exit status 1")
	})
	_, err := svc.Transcribe(context.Background(), filepath.Join(dir, "a.wav"), dir, "")
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected last output line in error, got %v", err)
	}
}

func TestAvailableWithoutUVX(t *testing.T) {
	svc := NewService(Config{})
	svc.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if err := svc.Available(); !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestBuildArgsCUDA(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true})
	joined := strings.Join(svc.buildArgs("in.wav", "out", ""), " ")
	if !strings.Contains(joined, "--index-url "+CUDAIndexURL) || !strings.Contains(joined, "--device cuda --compute_type float16") {
		t.Fatalf("unexpected CUDA args: %s", joined)
	}
	if strings.Contains(joined, "--language") {
		t.Fatalf("language should be omitted when unknown: %s", joined)
	}
}
