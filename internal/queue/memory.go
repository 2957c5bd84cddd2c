package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps tasks in process memory. A single mutex serializes all
// operations, which makes Claim atomic for every goroutine sharing the
// instance. Nothing survives a restart and other processes cannot see it.
type MemoryBackend struct {
	mu        sync.Mutex
	pending   []string
	tasks     map[string]*Task
	workers   map[string]time.Time
	completed int
	failed    int
	now       func() time.Time
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tasks:   make(map[string]*Task),
		workers: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Enqueue(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	stored := task.Clone()
	stored.Status = StatusQueued
	m.tasks[stored.ID] = stored
	m.pending = append(m.pending, stored.ID)
	return nil
}

func (m *MemoryBackend) Claim(_ context.Context, workerID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.pending) > 0 {
		id := m.pending[0]
		m.pending[0] = ""
		m.pending = m.pending[1:]

		task, ok := m.tasks[id]
		if !ok || task.Status != StatusQueued {
			continue
		}
		if err := task.markClaimed(workerID, uuid.NewString(), m.now().UTC()); err != nil {
			return nil, err
		}
		return task.Clone(), nil
	}
	return nil, nil
}

func (m *MemoryBackend) Heartbeat(_ context.Context, id, token string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.processing(id, token)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	task.HeartbeatAt = &now
	if progress > task.Progress {
		task.Progress = clampProgress(progress)
	}
	return nil
}

func (m *MemoryBackend) Complete(_ context.Context, id, token string, _ json.RawMessage) error {
	return m.finish(id, token, StatusCompleted)
}

func (m *MemoryBackend) Fail(_ context.Context, id, token string, _ string) error {
	return m.finish(id, token, StatusFailed)
}

func (m *MemoryBackend) finish(id, token string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.processing(id, token)
	if err != nil {
		return err
	}
	if err := task.markFinished(status, nil, "", m.now().UTC()); err != nil {
		return err
	}
	delete(m.tasks, id)
	if status == StatusCompleted {
		m.completed++
	} else {
		m.failed++
	}
	return nil
}

func (m *MemoryBackend) Reclaim(_ context.Context, cutoff time.Time, maxAttempts int) (ReclaimReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report ReclaimReport
	for id, task := range m.tasks {
		if task.Status != StatusProcessing || task.HeartbeatAt == nil || !task.HeartbeatAt.Before(cutoff) {
			continue
		}
		if task.Attempt+1 >= maxAttempts {
			task.Attempt++
			if err := task.markFinished(StatusFailed, nil, LeaseExpiredMessage, m.now().UTC()); err != nil {
				return report, err
			}
			delete(m.tasks, id)
			m.failed++
			report.Failed = append(report.Failed, id)
			report.Expired = append(report.Expired, task.Clone())
			continue
		}
		if err := task.markRequeued(); err != nil {
			return report, err
		}
		m.pending = append(m.pending, id)
		report.Requeued = append(report.Requeued, id)
	}
	return report, nil
}

func (m *MemoryBackend) Get(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

func (m *MemoryBackend) TouchWorker(_ context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[workerID] = m.now()
	return nil
}

func (m *MemoryBackend) Counts(_ context.Context, workerCutoff time.Time) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := Counts{Completed: m.completed, Failed: m.failed}
	for _, task := range m.tasks {
		switch task.Status {
		case StatusQueued:
			counts.Queued++
		case StatusProcessing:
			counts.Processing++
		}
	}
	for id, seen := range m.workers {
		if seen.Before(workerCutoff) {
			delete(m.workers, id)
			continue
		}
		counts.WorkersOnline++
	}
	return counts, nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) processing(id, token string) (*Task, error) {
	task, ok := m.tasks[id]
	if !ok || task.Status != StatusProcessing || task.ClaimToken != token {
		return nil, fmt.Errorf("%w: %s", ErrNotClaimed, id)
	}
	return task, nil
}

func clampProgress(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
