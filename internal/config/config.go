package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ScratchDir   string `toml:"scratch_dir"`
	UploadsDir   string `toml:"uploads_dir"`
	ArtifactsDir string `toml:"artifacts_dir"`
	LogDir       string `toml:"log_dir"`
	StateDir     string `toml:"state_dir"`
}

// Queue selects and tunes the task queue backend. An empty URL keeps the
// queue in process memory.
type Queue struct {
	URL                string `toml:"url"`
	KeyPrefix          string `toml:"key_prefix"`
	ResultTTLSeconds   int    `toml:"result_ttl_seconds"`
	DialTimeoutSeconds int    `toml:"dial_timeout_seconds"`
	OperationRetries   int    `toml:"operation_retries"`
	DurableMemory      bool   `toml:"durable_memory"`
	MaxAttempts        int    `toml:"max_attempts"`
}

// Workflow contains worker pool timing and concurrency settings.
type Workflow struct {
	WorkerID                 string `toml:"worker_id"`
	Concurrency              int    `toml:"concurrency"`
	PollIntervalMillis       int    `toml:"poll_interval_ms"`
	ErrorBackoffMillis       int    `toml:"error_backoff_ms"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	LeaseTimeoutSeconds      int    `toml:"lease_timeout_seconds"`
	StageTimeoutSeconds      int    `toml:"stage_timeout_seconds"`
}

// Subtitles contains phrase grouping limits and the default style id.
type Subtitles struct {
	MaxWords           int     `toml:"max_words"`
	MaxDurationSeconds float64 `toml:"max_duration_seconds"`
	DefaultStyle       string  `toml:"default_style"`
}

// Transcription configures the primary WhisperX engine and the HTTP fallback.
type Transcription struct {
	WhisperXModel  string `toml:"whisperx_model"`
	CUDA           bool   `toml:"cuda"`
	VADMethod      string `toml:"vad_method"`
	HuggingFace    string `toml:"hf_token"`
	FallbackURL    string `toml:"fallback_url"`
	FallbackAPIKey string `toml:"fallback_api_key"`
	FallbackModel  string `toml:"fallback_model"`
	CacheTTLHours  int    `toml:"cache_ttl_hours"`
}

// LLM contains connection settings for the highlight analysis model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage configures the optional MinIO artifact bucket.
type Storage struct {
	MinioEndpoint  string `toml:"minio_endpoint"`
	MinioAccessKey string `toml:"minio_access_key"`
	MinioSecretKey string `toml:"minio_secret_key"`
	MinioBucket    string `toml:"minio_bucket"`
	MinioUseSSL    bool   `toml:"minio_use_ssl"`
	MinioBasePath  string `toml:"minio_base_path"`
}

// Events configures NATS JetStream lifecycle publication.
type Events struct {
	NATSURL       string `toml:"nats_url"`
	Stream        string `toml:"stream"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// API contains the HTTP listener settings for the worker daemon.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Tracing configures OTLP span export. Empty endpoint disables export.
type Tracing struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
	Insecure     bool   `toml:"insecure"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnCompleted    bool   `toml:"on_completed"`
	OnFailed       bool   `toml:"on_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
//
// Configuration sections by subsystem:
//   - Paths: scratch, upload, artifact, log and state directories
//   - Queue: backend selection (memory, redis, durable sqlite) and result retention
//   - Workflow: worker identity, concurrency, backoffs, leases and stage timeouts
//   - Subtitles: phrase grouping limits and default style
//   - Transcription: WhisperX primary engine and HTTP fallback
//   - LLM: highlight analysis model
//   - Storage, Events, API, Tracing, Notifications: optional integrations
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Workflow      Workflow      `toml:"workflow"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Storage       Storage       `toml:"storage"`
	Events        Events        `toml:"events"`
	API           API           `toml:"api"`
	Tracing       Tracing       `toml:"tracing"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the worker writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ScratchDir, c.Paths.UploadsDir, c.Paths.ArtifactsDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// PollInterval is the empty-queue backoff. Zero is allowed.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMillis) * time.Millisecond
}

// ErrorBackoff is the wait applied after a failed task or a queue error.
func (w Workflow) ErrorBackoff() time.Duration {
	return time.Duration(w.ErrorBackoffMillis) * time.Millisecond
}

// HeartbeatInterval is how often a worker refreshes the lease on its task.
func (w Workflow) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatIntervalSeconds) * time.Second
}

// LeaseTimeout is the heartbeat age after which a claim is considered abandoned.
func (w Workflow) LeaseTimeout() time.Duration {
	return time.Duration(w.LeaseTimeoutSeconds) * time.Second
}

// StageTimeout bounds each external stage call.
func (w Workflow) StageTimeout() time.Duration {
	return time.Duration(w.StageTimeoutSeconds) * time.Second
}

// MaxDuration returns the phrase group duration limit.
func (s Subtitles) MaxDuration() time.Duration {
	return time.Duration(s.MaxDurationSeconds * float64(time.Second))
}

// ResultTTL is how long terminal results stay in a networked result store.
func (q Queue) ResultTTL() time.Duration {
	return time.Duration(q.ResultTTLSeconds) * time.Second
}

// DialTimeout bounds the startup reachability probe of the networked backend.
func (q Queue) DialTimeout() time.Duration {
	return time.Duration(q.DialTimeoutSeconds) * time.Second
}

// CacheTTL is the lifetime of cached transcripts.
func (t Transcription) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLHours) * time.Hour
}

// MinioEnabled reports whether artifacts should be uploaded to an object store.
func (s Storage) MinioEnabled() bool {
	return strings.TrimSpace(s.MinioEndpoint) != "" && strings.TrimSpace(s.MinioBucket) != ""
}

// StatePath joins name onto the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.Paths.StateDir, name)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
