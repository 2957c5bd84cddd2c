package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"clipforge/internal/services"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service provides WhisperX transcription.
type Service struct {
	cfg      Config
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, runner: execRunner, lookPath: exec.LookPath}
}

// WithCommandRunner swaps the process runner, for tests.
func (s *Service) WithCommandRunner(runner CommandRunner) *Service {
	if runner != nil {
		s.runner = runner
		s.lookPath = func(name string) (string, error) { return name, nil }
	}
	return s
}

// Name identifies the engine in diagnostics.
func (s *Service) Name() string { return "whisperx" }

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Available reports whether uvx can be found.
func (s *Service) Available() error {
	if _, err := s.lookPath(UVXCommand); err != nil {
		return services.Wrap(services.ErrEngineUnavailable, "transcribe", "whisperx", "uvx not found in PATH", err)
	}
	return nil
}

// Word is a single aligned word from WhisperX output. Words WhisperX could
// not align carry no timing and are zero here.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

// Segment is a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

// Transcript is the parsed WhisperX JSON file.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcribe runs WhisperX on audioPath, writing into outputDir, and parses
// the resulting JSON.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir, language string) (Transcript, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Transcript{}, fmt.Errorf("whisperx: audio path required")
	}
	if err := s.Available(); err != nil {
		return Transcript{}, err
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Transcript{}, fmt.Errorf("whisperx: ensure output dir: %w", err)
	}

	args := s.buildArgs(audioPath, outputDir, language)
	if output, err := s.runner(ctx, UVXCommand, args...); err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, services.Wrap(services.ErrEngineUnavailable, "transcribe", "whisperx",
			strings.TrimSpace(lastLine(string(output))), err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return LoadTranscript(filepath.Join(outputDir, base+".json"))
}

func (s *Service) buildArgs(source, outputDir, language string) []string {
	args := make([]string, 0, 40)
	if s.cfg.CUDAEnabled {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := strings.ToLower(strings.TrimSpace(language)); len(lang) == 2 {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice, "--compute_type", CUDAComputeType)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// LoadTranscript parses a WhisperX JSON output file.
func LoadTranscript(jsonPath string) (Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("read whisperx json: %w", err)
	}
	var payload Transcript
	if err := json.Unmarshal(data, &payload); err != nil {
		return Transcript{}, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load to weights_only=true, which breaks the
	// pyannote checkpoints WhisperX loads.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return cmd.CombinedOutput()
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return lines[len(lines)-1]
}
