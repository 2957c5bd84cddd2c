package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeWorkflow()
	c.normalizeSubtitles()
	c.normalizeTranscription()
	c.normalizeLLM()
	c.normalizeIntegrations()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.scratch_dir", &c.Paths.ScratchDir, defaultScratchDir},
		{"paths.uploads_dir", &c.Paths.UploadsDir, defaultUploadsDir},
		{"paths.artifacts_dir", &c.Paths.ArtifactsDir, defaultArtifactsDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.URL = strings.TrimSpace(c.Queue.URL)
	if c.Queue.URL == "" {
		c.Queue.URL = lookupEnv("CLIPFORGE_QUEUE_URL", "REDIS_URL")
	}
	c.Queue.KeyPrefix = strings.Trim(strings.TrimSpace(c.Queue.KeyPrefix), ":")
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = defaultQueueKeyPrefix
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.WorkerID = strings.TrimSpace(c.Workflow.WorkerID)
	if c.Workflow.WorkerID == "" {
		c.Workflow.WorkerID = lookupEnv("WORKER_ID")
	}
	if c.Workflow.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || strings.TrimSpace(host) == "" {
			host = "worker"
		}
		c.Workflow.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.DefaultStyle = strings.ToLower(strings.TrimSpace(c.Subtitles.DefaultStyle))
	if c.Subtitles.DefaultStyle == "" {
		c.Subtitles.DefaultStyle = defaultStyle
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.WhisperXModel = strings.TrimSpace(c.Transcription.WhisperXModel)
	if c.Transcription.WhisperXModel == "" {
		c.Transcription.WhisperXModel = defaultWhisperXModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	c.Transcription.HuggingFace = strings.TrimSpace(c.Transcription.HuggingFace)
	if c.Transcription.HuggingFace == "" {
		c.Transcription.HuggingFace = lookupEnv("HUGGING_FACE_HUB_TOKEN", "HF_TOKEN")
	}
	c.Transcription.FallbackURL = strings.TrimSpace(c.Transcription.FallbackURL)
	c.Transcription.FallbackAPIKey = strings.TrimSpace(c.Transcription.FallbackAPIKey)
	if c.Transcription.FallbackAPIKey == "" {
		c.Transcription.FallbackAPIKey = lookupEnv("OPENAI_API_KEY")
	}
	c.Transcription.FallbackModel = strings.TrimSpace(c.Transcription.FallbackModel)
	if c.Transcription.FallbackModel == "" {
		c.Transcription.FallbackModel = defaultFallbackModel
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = lookupEnv("OPENROUTER_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
}

func (c *Config) normalizeIntegrations() {
	c.Storage.MinioEndpoint = strings.TrimSpace(c.Storage.MinioEndpoint)
	if c.Storage.MinioAccessKey == "" {
		c.Storage.MinioAccessKey = lookupEnv("MINIO_ACCESS_KEY")
	}
	if c.Storage.MinioSecretKey == "" {
		c.Storage.MinioSecretKey = lookupEnv("MINIO_SECRET_KEY")
	}
	c.Storage.MinioBasePath = strings.Trim(strings.TrimSpace(c.Storage.MinioBasePath), "/")

	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	if c.Events.NATSURL == "" {
		c.Events.NATSURL = lookupEnv("NATS_URL")
	}
	c.Events.SubjectPrefix = strings.Trim(strings.TrimSpace(c.Events.SubjectPrefix), ".")
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = defaultEventSubjectPrefix
	}
	if strings.TrimSpace(c.Events.Stream) == "" {
		c.Events.Stream = defaultEventStream
	}

	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		c.API.Token = lookupEnv("CLIPFORGE_API_TOKEN")
	}

	c.Tracing.OTLPEndpoint = strings.TrimSpace(c.Tracing.OTLPEndpoint)
	if strings.TrimSpace(c.Tracing.ServiceName) == "" {
		c.Tracing.ServiceName = defaultTracingServiceName
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// lookupEnv returns the first non-empty value among keys.
func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
