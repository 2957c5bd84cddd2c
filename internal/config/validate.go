package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.URL != "" {
		parsed, err := url.Parse(c.Queue.URL)
		if err != nil {
			return fmt.Errorf("queue.url: %w", err)
		}
		switch parsed.Scheme {
		case "redis", "rediss", "unix":
		default:
			return fmt.Errorf("queue.url: unsupported scheme %q (want redis, rediss or unix)", parsed.Scheme)
		}
	}
	if c.Queue.OperationRetries < 0 {
		return errors.New("queue.operation_retries must not be negative")
	}
	return ensurePositiveMap(map[string]int{
		"queue.result_ttl_seconds":   c.Queue.ResultTTLSeconds,
		"queue.dial_timeout_seconds": c.Queue.DialTimeoutSeconds,
		"queue.max_attempts":         c.Queue.MaxAttempts,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.concurrency":                c.Workflow.Concurrency,
		"workflow.heartbeat_interval_seconds": c.Workflow.HeartbeatIntervalSeconds,
		"workflow.lease_timeout_seconds":      c.Workflow.LeaseTimeoutSeconds,
		"workflow.stage_timeout_seconds":      c.Workflow.StageTimeoutSeconds,
		"notifications.request_timeout":       c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.Concurrency > maxWorkerConcurrency {
		return fmt.Errorf("workflow.concurrency must be at most %d", maxWorkerConcurrency)
	}
	if c.Workflow.PollIntervalMillis < 0 || c.Workflow.ErrorBackoffMillis < 0 {
		return errors.New("workflow.poll_interval_ms and workflow.error_backoff_ms must not be negative")
	}
	if c.Workflow.ErrorBackoffMillis < c.Workflow.PollIntervalMillis {
		return errors.New("workflow.error_backoff_ms must be at least workflow.poll_interval_ms")
	}
	if c.Workflow.LeaseTimeoutSeconds <= c.Workflow.HeartbeatIntervalSeconds {
		return errors.New("workflow.lease_timeout_seconds must be greater than workflow.heartbeat_interval_seconds")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if c.Subtitles.MaxWords < minWordsPerGroup || c.Subtitles.MaxWords > maxWordsPerGroup {
		return fmt.Errorf("subtitles.max_words must be between %d and %d", minWordsPerGroup, maxWordsPerGroup)
	}
	if c.Subtitles.MaxDurationSeconds <= 0 || c.Subtitles.MaxDurationSeconds > maxGroupDurationSecondsCap {
		return fmt.Errorf("subtitles.max_duration_seconds must be in (0, %.0f]", maxGroupDurationSecondsCap)
	}
	switch c.Subtitles.DefaultStyle {
	case "modern", "neon", "fire", "elegant":
	default:
		return fmt.Errorf("subtitles.default_style: unknown style %q", c.Subtitles.DefaultStyle)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.MinioEndpoint == "" {
		return nil
	}
	if strings.TrimSpace(c.Storage.MinioBucket) == "" {
		return errors.New("storage.minio_bucket must be set when storage.minio_endpoint is set")
	}
	if c.Storage.MinioAccessKey == "" || c.Storage.MinioSecretKey == "" {
		return errors.New("storage.minio_access_key and storage.minio_secret_key must be set when storage.minio_endpoint is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
