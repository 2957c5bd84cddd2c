package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/config"
)

const userAgent = "clipforge/0.1.0"

// Service defines the notification surface exposed to the worker pool.
type Service interface {
	NotifyTaskCompleted(ctx context.Context, taskID, kind, summary string) error
	NotifyTaskFailed(ctx context.Context, taskID, kind string, err error) error
	NotifyWorkerStopped(ctx context.Context, workerID string, processed, failed int, uptime time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	return NewServiceWithClient(cfg, nil)
}

// NewServiceWithClient is NewService with an explicit HTTP client.
func NewServiceWithClient(cfg config.Notifications, client *http.Client) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if client == nil {
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		onCompleted: cfg.OnCompleted,
		onFailed:    cfg.OnFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	onCompleted bool
	onFailed    bool
}

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, taskID, kind, summary string) error {
	if !n.onCompleted {
		return nil
	}
	message := fmt.Sprintf("✅ %s task %s complete", kindLabel(kind), strings.TrimSpace(taskID))
	if summary = strings.TrimSpace(summary); summary != "" {
		message += "\n" + summary
	}
	return n.send(ctx, payload{
		title:   "clipforge - Task Complete",
		message: message,
		tags:    []string{"clipforge", kind, "completed"},
	})
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, taskID, kind string, err error) error {
	if !n.onFailed {
		return nil
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "clipforge - Task Failed",
		message:  fmt.Sprintf("❌ %s task %s failed: %s", kindLabel(kind), strings.TrimSpace(taskID), reason),
		tags:     []string{"clipforge", kind, "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyWorkerStopped(ctx context.Context, workerID string, processed, failed int, uptime time.Duration) error {
	uptime = uptime.Round(time.Second)
	if uptime < 0 {
		uptime = 0
	}
	var message string
	if failed == 0 {
		message = fmt.Sprintf("Worker %s stopped: %d tasks processed in %s", workerID, processed, uptime)
	} else {
		message = fmt.Sprintf("Worker %s stopped: %d succeeded, %d failed in %s", workerID, processed, failed, uptime)
	}
	return n.send(ctx, payload{
		title:   "clipforge - Worker Stopped",
		message: message,
		tags:    []string{"clipforge", "worker", "stopped"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "clipforge - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"clipforge", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func kindLabel(kind string) string {
	switch kind {
	case "analyze":
		return "Analysis"
	case "generate_clips":
		return "Clip"
	case "burn_subtitles":
		return "Subtitle burn"
	default:
		return "Unknown"
	}
}

type noopService struct{}

func (noopService) NotifyTaskCompleted(context.Context, string, string, string) error { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, string, error) error     { return nil }
func (noopService) NotifyWorkerStopped(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
