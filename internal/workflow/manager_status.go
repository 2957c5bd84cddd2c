package workflow

import "time"

// WorkerStats is the per-worker view reported next to queue stats.
type WorkerStats struct {
	WorkerID    string     `json:"worker_id"`
	Running     bool       `json:"running"`
	Concurrency int        `json:"concurrency"`
	Active      int        `json:"active"`
	Processed   int64      `json:"processed"`
	Errors      int64      `json:"errors"`
	LastError   string     `json:"last_error,omitempty"`
	LastTaskID  string     `json:"last_task_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// Stats returns the current worker counters. Processed counts completed
// tasks; Errors counts failed ones.
func (m *Manager) Stats() WorkerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := WorkerStats{
		WorkerID:    m.opts.WorkerID,
		Running:     m.running,
		Concurrency: m.opts.Concurrency,
		Active:      int(m.active.Load()),
		Processed:   m.processed.Load(),
		Errors:      m.failed.Load(),
		LastTaskID:  m.lastTask,
	}
	if m.lastErr != nil {
		stats.LastError = m.lastErr.Error()
	}
	if !m.startedAt.IsZero() {
		started := m.startedAt
		stats.StartedAt = &started
	}
	return stats
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastTask(id string) {
	m.mu.Lock()
	m.lastTask = id
	m.mu.Unlock()
}
