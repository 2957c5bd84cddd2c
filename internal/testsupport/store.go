package testsupport

import (
	"context"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
)

// MustOpenQueue opens the queue described by cfg and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Queue {
	t.Helper()

	q, err := queue.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}

// MustAdd enqueues a task and fails the test on error.
func MustAdd(t testing.TB, q *queue.Queue, kind string, payload queue.Payload) *queue.Task {
	t.Helper()

	task, err := q.Add(context.Background(), queue.Submission{Kind: kind, Payload: payload})
	if err != nil {
		t.Fatalf("queue.Add: %v", err)
	}
	return task
}
