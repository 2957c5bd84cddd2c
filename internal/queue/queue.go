package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

const (
	defaultMaxAttempts  = 3
	defaultLeaseTimeout = 2 * time.Minute
	retryBaseDelay      = 50 * time.Millisecond
)

// Options tunes a Queue.
type Options struct {
	// Retries is how many times a failing backend call is repeated before it
	// surfaces as services.ErrTransientBackend.
	Retries      int
	MaxAttempts  int
	LeaseTimeout time.Duration
	// Degraded records that the configured backend was unreachable.
	Degraded bool
	Logger   *slog.Logger
}

// Queue is the process-facing task API. It validates input, generates ids,
// keeps terminal results in a ResultStore and maps backend errors onto the
// services error markers.
type Queue struct {
	backend      Backend
	results      ResultStore
	logger       *slog.Logger
	retries      int
	maxAttempts  int
	leaseTimeout time.Duration
	degraded     bool
	now          func() time.Time
	newID        func() string

	mu     sync.Mutex
	active map[string]heldClaim
}

// heldClaim is a claim this process is currently running.
type heldClaim struct {
	workerID string
	token    string
}

// New wires a Queue around backend and results.
func New(backend Backend, results ResultStore, opts Options) *Queue {
	if results == nil {
		results = NewMemoryResults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	lease := opts.LeaseTimeout
	if lease <= 0 {
		lease = defaultLeaseTimeout
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	return &Queue{
		backend:      backend,
		results:      results,
		logger:       logger,
		retries:      retries,
		maxAttempts:  maxAttempts,
		leaseTimeout: lease,
		degraded:     opts.Degraded,
		now:          time.Now,
		newID:        uuid.NewString,
		active:       make(map[string]heldClaim),
	}
}

// NewMemory returns a queue backed entirely by process memory.
func NewMemory(opts Options) *Queue {
	return New(NewMemoryBackend(), NewMemoryResults(), opts)
}

// BackendName reports which backend serves the queue.
func (q *Queue) BackendName() string { return q.backend.Name() }

// Redis returns the shared redis client when the queue runs on redis, so
// other components can reuse the connection. It is nil otherwise.
func (q *Queue) Redis() redis.UniversalClient {
	if rb, ok := q.backend.(*RedisBackend); ok {
		return rb.rdb
	}
	return nil
}

// Degraded reports whether the configured backend was replaced by a local one.
func (q *Queue) Degraded() bool { return q.degraded }

// LeaseTimeout is the heartbeat age after which a claim is considered abandoned.
func (q *Queue) LeaseTimeout() time.Duration { return q.leaseTimeout }

// Add validates sub and enqueues it. Validation failures are returned as
// *ValidationError and nothing is stored.
func (q *Queue) Add(ctx context.Context, sub Submission) (*Task, error) {
	kind, payload, err := normalizeSubmission(sub)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(sub.ID)
	rerun := id != ""
	if !rerun {
		id = q.newID()
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	task := &Task{
		ID:         id,
		Kind:       kind,
		Payload:    payload,
		Status:     StatusQueued,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.withRetry(ctx, "enqueue", func() error {
		return q.backend.Enqueue(ctx, task)
	}); err != nil {
		return nil, err
	}
	if rerun {
		if err := q.results.Delete(ctx, id); err != nil {
			return nil, services.Wrap(services.ErrTransientBackend, "queue", "delete_result", id, err)
		}
	}
	return task.Clone(), nil
}

// Claim hands the oldest queued task to workerID, or returns (nil, nil) when
// nothing is queued. A task id this process already holds is reported as
// services.ErrFatalWorker together with the task so the caller can fail it.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Task, error) {
	var task *Task
	if err := q.withRetry(ctx, "claim", func() error {
		claimed, err := q.backend.Claim(ctx, workerID)
		task = claimed
		return err
	}); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	q.mu.Lock()
	holder, duplicate := q.active[task.ID]
	if !duplicate {
		q.active[task.ID] = heldClaim{workerID: workerID, token: task.ClaimToken}
	}
	q.mu.Unlock()
	if duplicate {
		return task, services.Wrap(services.ErrFatalWorker, "queue", "claim",
			fmt.Sprintf("task %s already held by %s", task.ID, holder.workerID), nil)
	}
	return task, nil
}

// Heartbeat renews the lease on task and records progress. It reports
// ErrNotClaimed once task's claim is no longer the current one.
func (q *Queue) Heartbeat(ctx context.Context, task *Task, progress int) error {
	return q.withRetry(ctx, "heartbeat", func() error {
		return q.backend.Heartbeat(ctx, task.ID, task.ClaimToken, progress)
	})
}

// Complete acknowledges task and stores result as its terminal record.
func (q *Queue) Complete(ctx context.Context, task *Task, result any) error {
	payload, err := encodeResult(result)
	if err != nil {
		return err
	}
	defer q.release(task)
	if err := q.withRetry(ctx, "complete", func() error {
		return q.backend.Complete(ctx, task.ID, task.ClaimToken, payload)
	}); err != nil {
		return err
	}
	return q.writeResult(ctx, newResult(task, StatusCompleted, payload, "", q.now().UTC()))
}

// Fail acknowledges task as failed with the message derived from cause.
func (q *Queue) Fail(ctx context.Context, task *Task, cause error) error {
	message := services.FailureMessage(cause)
	defer q.release(task)
	if err := q.withRetry(ctx, "fail", func() error {
		return q.backend.Fail(ctx, task.ID, task.ClaimToken, message)
	}); err != nil {
		return err
	}
	return q.writeResult(ctx, newResult(task, StatusFailed, nil, message, q.now().UTC()))
}

// Reclaim returns abandoned claims to the queue. Tasks out of attempts are
// failed and get a terminal result.
func (q *Queue) Reclaim(ctx context.Context) (ReclaimReport, error) {
	cutoff := q.now().Add(-q.leaseTimeout)
	var report ReclaimReport
	if err := q.withRetry(ctx, "reclaim", func() error {
		var err error
		report, err = q.backend.Reclaim(ctx, cutoff, q.maxAttempts)
		return err
	}); err != nil {
		return report, err
	}

	for _, id := range report.Requeued {
		q.forget(id)
		logging.WarnWithContext(q.logger, "requeued task with expired lease", "lease_reclaimed",
			logging.String(logging.FieldTaskID, id),
			logging.String(logging.FieldImpact, "task will run again"),
		)
	}
	expired := make(map[string]*Task, len(report.Expired))
	for _, task := range report.Expired {
		expired[task.ID] = task
	}
	for _, id := range report.Failed {
		q.forget(id)
		task, ok := expired[id]
		if !ok {
			var err error
			if task, err = q.backend.Get(ctx, id); err != nil {
				task = &Task{ID: id}
			}
		}
		now := q.now().UTC()
		if task.CompletedAt != nil {
			now = *task.CompletedAt
		}
		res := newResult(task, StatusFailed, nil, LeaseExpiredMessage, now)
		if err := q.writeResult(ctx, res); err != nil {
			return report, err
		}
		logging.WarnWithContext(q.logger, "failed task after repeated lease expiry", "lease_reclaimed",
			logging.String(logging.FieldTaskID, id),
			logging.Int("max_attempts", q.maxAttempts),
			logging.String(logging.FieldImpact, "task marked failed"),
		)
	}
	return report, nil
}

// TouchWorker marks workerID as alive for Stats.
func (q *Queue) TouchWorker(ctx context.Context, workerID string) error {
	return q.withRetry(ctx, "touch_worker", func() error {
		return q.backend.TouchWorker(ctx, workerID)
	})
}

// Get returns the backend's current record of id.
func (q *Queue) Get(ctx context.Context, id string) (*Task, error) {
	var task *Task
	err := q.withRetry(ctx, "get", func() error {
		var err error
		task, err = q.backend.Get(ctx, id)
		return err
	})
	return task, err
}

// Result returns the terminal record for id, if one exists.
func (q *Queue) Result(ctx context.Context, id string) (Result, bool, error) {
	res, ok, err := q.results.Read(ctx, id)
	if err != nil {
		return Result{}, false, services.Wrap(services.ErrTransientBackend, "queue", "read_result", "", err)
	}
	return res, ok, nil
}

// StatusResponse is the status query answer.
type StatusResponse struct {
	Status   Status          `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Status reports the state of id. Terminal results win over the live record;
// an id neither store knows is reported as processing at progress 0.
func (q *Queue) Status(ctx context.Context, id string) (StatusResponse, error) {
	res, ok, err := q.Result(ctx, id)
	if err != nil {
		return StatusResponse{}, err
	}
	if ok {
		resp := StatusResponse{Status: res.Status, Result: res.Result, Error: res.Error}
		if res.Status == StatusCompleted {
			resp.Progress = 100
		}
		return resp, nil
	}

	task, err := q.Get(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return StatusResponse{Status: StatusProcessing, Progress: 0}, nil
	}
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{Status: task.Status, Progress: task.Progress, Result: task.Result, Error: task.Error}, nil
}

// Stats is the queue-wide view served by the stats endpoint.
type Stats struct {
	Backend        string `json:"backend"`
	Degraded       bool   `json:"degraded"`
	ActiveTasks    int    `json:"active_tasks"`
	ScheduledTasks int    `json:"scheduled_tasks"`
	WorkersOnline  int    `json:"workers_online"`
	QueueLength    int    `json:"queue_length"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
}

// Stats tallies the backend. Workers count as online when they touched the
// queue within the lease timeout.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var counts Counts
	if err := q.withRetry(ctx, "stats", func() error {
		var err error
		counts, err = q.backend.Counts(ctx, q.now().Add(-q.leaseTimeout))
		return err
	}); err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend:        q.backend.Name(),
		Degraded:       q.degraded,
		ActiveTasks:    counts.Processing,
		ScheduledTasks: counts.Queued + counts.Processing,
		WorkersOnline:  counts.WorkersOnline,
		QueueLength:    counts.Queued,
		Completed:      counts.Completed,
		Failed:         counts.Failed,
	}, nil
}

// Close releases the backend.
func (q *Queue) Close() error {
	if q == nil || q.backend == nil {
		return nil
	}
	return q.backend.Close()
}

// release drops task from the in-flight set unless a newer claim of the same
// id has replaced it.
func (q *Queue) release(task *Task) {
	q.mu.Lock()
	if held, ok := q.active[task.ID]; ok && held.token == task.ClaimToken {
		delete(q.active, task.ID)
	}
	q.mu.Unlock()
}

func (q *Queue) forget(id string) {
	q.mu.Lock()
	delete(q.active, id)
	q.mu.Unlock()
}

func (q *Queue) writeResult(ctx context.Context, res Result) error {
	if err := q.results.Write(ctx, res); err != nil {
		return services.Wrap(services.ErrTransientBackend, "queue", "write_result", res.TaskID, err)
	}
	return nil
}

// withRetry runs fn, repeating it on backend failures. Errors describing the
// task rather than the backend are returned unchanged.
func (q *Queue) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= q.retries; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == q.retries {
			break
		}
		select {
		case <-time.After(retryBaseDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return services.Wrap(services.ErrTransientBackend, "queue", operation, q.backend.Name(), ctx.Err())
		}
	}
	return services.Wrap(services.ErrTransientBackend, "queue", operation, q.backend.Name(), err)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrNotClaimed),
		errors.Is(err, ErrDuplicateTask),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func encodeResult(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode task result: %w", err)
	}
	return data, nil
}
