// Package events broadcasts task lifecycle changes. Publishers exist for
// NATS JetStream and for websocket clients of the worker API; Fanout sends
// every event to all of them and never lets a delivery failure reach the
// worker.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"clipforge/internal/logging"
)

// Type names a lifecycle change.
type Type string

const (
	TaskEnqueued  Type = "task.enqueued"
	TaskClaimed   Type = "task.claimed"
	TaskProgress  Type = "task.progress"
	TaskCompleted Type = "task.completed"
	TaskFailed    Type = "task.failed"
)

// Event is one lifecycle change.
type Event struct {
	Type     Type            `json:"type"`
	TaskID   string          `json:"task_id"`
	Kind     string          `json:"kind,omitempty"`
	WorkerID string          `json:"worker_id,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Time     time.Time       `json:"time"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers to every publisher, logging failures.
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewFanout ignores nil publishers.
func NewFanout(logger *slog.Logger, publishers ...Publisher) *Fanout {
	var kept []Publisher
	for _, p := range publishers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Fanout{publishers: kept, logger: logging.NewComponentLogger(logger, "events"), now: time.Now}
}

// Add appends a publisher.
func (f *Fanout) Add(p Publisher) {
	if p != nil {
		f.publishers = append(f.publishers, p)
	}
}

// Publish implements Publisher. It always returns nil.
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = f.now().UTC()
	}
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			logging.WithContext(ctx, f.logger).Debug("event delivery failed",
				logging.String("event", string(event.Type)),
				logging.String(logging.FieldTaskID, event.TaskID),
				logging.Error(err))
		}
	}
	return nil
}
