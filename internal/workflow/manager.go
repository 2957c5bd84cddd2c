package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/events"
	"clipforge/internal/logging"
	"clipforge/internal/metrics"
	"clipforge/internal/notifications"
	"clipforge/internal/queue"
)

// Executor runs one claimed task and returns its result document.
type Executor interface {
	Execute(ctx context.Context, task *queue.Task, progress func(int)) (any, error)
}

// Options tunes a Manager. Zero durations are allowed and make tests fast.
type Options struct {
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
	HeartbeatInterval time.Duration

	Events   events.Publisher
	Metrics  *metrics.Metrics
	Notifier notifications.Service
	Logger   *slog.Logger
}

// OptionsFromConfig maps the workflow section onto Options.
func OptionsFromConfig(cfg config.Workflow) Options {
	return Options{
		WorkerID:          cfg.WorkerID,
		Concurrency:       cfg.Concurrency,
		PollInterval:      cfg.PollInterval(),
		ErrorBackoff:      cfg.ErrorBackoff(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}
}

// Manager coordinates queue polling and task execution for one worker id.
type Manager struct {
	queue    *queue.Queue
	exec     Executor
	opts     Options
	logger   *slog.Logger
	events   events.Publisher
	notifier notifications.Service
	metrics  *metrics.Metrics
	sem      chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	tasks     sync.WaitGroup
	startedAt time.Time
	lastErr   error
	lastTask  string
}

// NewManager constructs a manager. Nil collaborators in opts are replaced
// with no-op implementations.
func NewManager(q *queue.Queue, exec Executor, opts Options) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.WorkerID == "" {
		opts.WorkerID = "worker"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	publisher := opts.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(config.Notifications{})
	}
	return &Manager{
		queue:    q,
		exec:     exec,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		events:   publisher,
		notifier: notifier,
		metrics:  opts.Metrics,
		sem:      make(chan struct{}, opts.Concurrency),
	}
}

// WorkerID returns the identity used for claims.
func (m *Manager) WorkerID() string { return m.opts.WorkerID }

// Running reports whether the poll loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
