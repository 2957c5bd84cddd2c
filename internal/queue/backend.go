package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrTaskNotFound is returned when a backend has no record of a task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotClaimed is returned when acknowledging a task without holding its
	// current claim, typically because the lease expired and the task was
	// requeued or handed to another worker.
	ErrNotClaimed = errors.New("task is not claimed")
	// ErrDuplicateTask is returned when enqueueing an id that already exists.
	ErrDuplicateTask = errors.New("task id already exists")
)

// Backend stores tasks and serializes claims. Claim must be atomic across all
// callers of the same backend: a queued task is handed to exactly one claimer.
// Claim returns (nil, nil) when nothing is queued.
//
// Every claim mints a fresh Task.ClaimToken. Heartbeat, Complete and Fail
// succeed only with the token of the claim currently in force and report
// ErrNotClaimed otherwise.
type Backend interface {
	Name() string
	Enqueue(ctx context.Context, task *Task) error
	Claim(ctx context.Context, workerID string) (*Task, error)
	Heartbeat(ctx context.Context, id, token string, progress int) error
	Complete(ctx context.Context, id, token string, result json.RawMessage) error
	Fail(ctx context.Context, id, token string, message string) error
	Reclaim(ctx context.Context, cutoff time.Time, maxAttempts int) (ReclaimReport, error)
	Get(ctx context.Context, id string) (*Task, error)
	TouchWorker(ctx context.Context, workerID string) error
	Counts(ctx context.Context, workerCutoff time.Time) (Counts, error)
	Close() error
}

// Counts is the raw tally a backend reports.
type Counts struct {
	Queued        int
	Processing    int
	Completed     int
	Failed        int
	WorkersOnline int
}

// ReclaimReport lists the tasks recovered from abandoned claims. Expired
// holds the final record of every id in Failed, taken when it was failed.
type ReclaimReport struct {
	Requeued []string
	Failed   []string
	Expired  []*Task
}

// Total is the number of tasks touched by a reclaim pass.
func (r ReclaimReport) Total() int {
	return len(r.Requeued) + len(r.Failed)
}

// LeaseExpiredMessage is the failure recorded when a task exhausts its attempts.
const LeaseExpiredMessage = "lease expired: worker stopped heartbeating"
