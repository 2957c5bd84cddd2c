package config

const (
	defaultScratchDir          = "~/.local/share/clipforge/scratch"
	defaultArtifactsDir        = "~/.local/share/clipforge/artifacts"
	defaultUploadsDir          = "~/.local/share/clipforge/uploads"
	defaultLogDir              = "~/.local/share/clipforge/logs"
	defaultStateDir            = "~/.local/share/clipforge/state"
	defaultQueueKeyPrefix      = "clipforge"
	defaultResultTTLSeconds    = 3600
	defaultDialTimeoutSeconds  = 5
	defaultOperationRetries    = 2
	defaultMaxAttempts         = 3
	defaultConcurrency         = 1
	defaultPollIntervalMillis  = 2000
	defaultErrorBackoffMillis  = 5000
	defaultHeartbeatInterval   = 15
	defaultLeaseTimeout        = 120
	defaultStageTimeout        = 900
	defaultMaxWords            = 3
	defaultMaxDurationSeconds  = 2.5
	defaultStyle               = "modern"
	defaultWhisperXModel       = "large-v3"
	defaultVADMethod           = "silero"
	defaultFallbackURL         = "https://api.openai.com/v1/audio/transcriptions"
	defaultFallbackModel       = "whisper-1"
	defaultCacheTTLHours       = 24
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMReferer          = "https://github.com/clipforge/clipforge"
	defaultLLMTitle            = "clipforge highlight analysis"
	defaultLLMTimeoutSeconds   = 60
	defaultEventStream         = "CLIPFORGE_TASKS"
	defaultEventSubjectPrefix  = "clipforge.tasks"
	defaultAPIBind             = "127.0.0.1:7480"
	defaultTracingServiceName  = "clipforge-worker"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultMinioBasePath       = "clips"
	defaultNotifyOnCompleted   = true
	defaultNotifyOnFailed      = true
	minWordsPerGroup           = 1
	maxWordsPerGroup           = 12
	maxWorkerConcurrency       = 16
	maxGroupDurationSecondsCap = 10.0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir:   defaultScratchDir,
			UploadsDir:   defaultUploadsDir,
			ArtifactsDir: defaultArtifactsDir,
			LogDir:       defaultLogDir,
			StateDir:     defaultStateDir,
		},
		Queue: Queue{
			KeyPrefix:          defaultQueueKeyPrefix,
			ResultTTLSeconds:   defaultResultTTLSeconds,
			DialTimeoutSeconds: defaultDialTimeoutSeconds,
			OperationRetries:   defaultOperationRetries,
			MaxAttempts:        defaultMaxAttempts,
		},
		Workflow: Workflow{
			Concurrency:              defaultConcurrency,
			PollIntervalMillis:       defaultPollIntervalMillis,
			ErrorBackoffMillis:       defaultErrorBackoffMillis,
			HeartbeatIntervalSeconds: defaultHeartbeatInterval,
			LeaseTimeoutSeconds:      defaultLeaseTimeout,
			StageTimeoutSeconds:      defaultStageTimeout,
		},
		Subtitles: Subtitles{
			MaxWords:           defaultMaxWords,
			MaxDurationSeconds: defaultMaxDurationSeconds,
			DefaultStyle:       defaultStyle,
		},
		Transcription: Transcription{
			WhisperXModel: defaultWhisperXModel,
			VADMethod:     defaultVADMethod,
			FallbackURL:   defaultFallbackURL,
			FallbackModel: defaultFallbackModel,
			CacheTTLHours: defaultCacheTTLHours,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Storage: Storage{
			MinioBasePath: defaultMinioBasePath,
		},
		Events: Events{
			Stream:        defaultEventStream,
			SubjectPrefix: defaultEventSubjectPrefix,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Tracing: Tracing{
			ServiceName: defaultTracingServiceName,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			OnCompleted:    defaultNotifyOnCompleted,
			OnFailed:       defaultNotifyOnFailed,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
