package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the terminal record of a task. It is written once when the worker
// finishes, and overwritten only if the same id is deliberately run again.
type Result struct {
	TaskID         string          `json:"task_id"`
	Kind           Kind            `json:"kind,omitempty"`
	Status         Status          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	WorkerID       string          `json:"worker_id,omitempty"`
	Attempt        int             `json:"attempt"`
	ProcessingTime float64         `json:"processing_time"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
}

// ResultStore maps task ids to terminal results. Read reports false when no
// record exists, which callers treat as still queued or processing. Delete
// clears a stale record before an id is run again.
type ResultStore interface {
	Write(ctx context.Context, result Result) error
	Read(ctx context.Context, id string) (Result, bool, error)
	Delete(ctx context.Context, id string) error
}

// newResult builds the terminal record for task finishing with status at now.
func newResult(task *Task, status Status, payload json.RawMessage, message string, now time.Time) Result {
	res := Result{
		TaskID:     task.ID,
		Kind:       task.Kind,
		Status:     status,
		Result:     payload,
		Error:      message,
		WorkerID:   task.WorkerID,
		Attempt:    task.Attempt,
		EnqueuedAt: task.EnqueuedAt,
		ClaimedAt:  copyTime(task.ClaimedAt),
	}
	if task.ClaimedAt != nil {
		res.ProcessingTime = now.Sub(*task.ClaimedAt).Seconds()
	}
	finished := now
	if status == StatusCompleted {
		res.CompletedAt = &finished
	} else {
		res.FailedAt = &finished
	}
	return res
}

// MemoryResults keeps results in process memory.
type MemoryResults struct {
	mu      sync.RWMutex
	records map[string]Result
}

func NewMemoryResults() *MemoryResults {
	return &MemoryResults{records: make(map[string]Result)}
}

func (m *MemoryResults) Write(_ context.Context, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[result.TaskID] = result
	return nil
}

func (m *MemoryResults) Read(_ context.Context, id string) (Result, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.records[id]
	return res, ok, nil
}

func (m *MemoryResults) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// RedisResults stores each result as a JSON string that expires after ttl.
type RedisResults struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisResults(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisResults {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "clipforge"
	}
	return &RedisResults{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisResults) key(id string) string {
	return r.prefix + ":result:" + id
}

func (r *RedisResults) Write(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(result.TaskID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis write result: %w", err)
	}
	return nil
}

func (r *RedisResults) Read(ctx context.Context, id string) (Result, bool, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("redis read result: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false, fmt.Errorf("decode result %s: %w", id, err)
	}
	return res, true, nil
}

func (r *RedisResults) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete result: %w", err)
	}
	return nil
}

// SQLiteResults stores results in the results table of a queue database.
type SQLiteResults struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func (s *SQLiteResults) Write(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var expires any
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl).UnixNano()
	}
	err = retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO results (task_id, record, expires_at) VALUES (?, ?, ?)
             ON CONFLICT(task_id) DO UPDATE SET record = excluded.record, expires_at = excluded.expires_at`,
			result.TaskID, string(data), expires,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func (s *SQLiteResults) Read(ctx context.Context, id string) (Result, bool, error) {
	var (
		record  string
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT record, expires_at FROM results WHERE task_id = ?`, id,
	).Scan(&record, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("read result: %w", err)
	}
	if expires.Valid && s.now().UnixNano() > expires.Int64 {
		return Result{}, false, nil
	}
	var res Result
	if err := json.Unmarshal([]byte(record), &res); err != nil {
		return Result{}, false, fmt.Errorf("decode result %s: %w", id, err)
	}
	return res, true, nil
}

func (s *SQLiteResults) Delete(ctx context.Context, id string) error {
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM results WHERE task_id = ?`, id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}
