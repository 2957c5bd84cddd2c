package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/events"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
)

// Start launches the poll loop in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.queue == nil || m.exec == nil {
		m.mu.Unlock()
		return errors.New("workflow requires a queue and an executor")
	}
	runCtx, cancel := context.WithCancel(services.WithWorkerID(ctx, m.opts.WorkerID))
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	m.startedAt = time.Now()
	done := m.done
	m.mu.Unlock()

	logging.WithContext(runCtx, m.logger).Info("worker started",
		logging.Int("concurrency", m.opts.Concurrency),
		logging.String("queue_backend", m.queue.BackendName()),
		logging.Bool("queue_degraded", m.queue.Degraded()))

	go func() {
		defer close(done)
		m.loop(runCtx)
		m.tasks.Wait()
	}()
	return nil
}

// Stop cancels the poll loop and waits for in-flight tasks to return.
// Tasks interrupted by shutdown are not acknowledged; their leases expire
// and another worker picks them up.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	startedAt := m.startedAt
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done

	processed, failed := m.processed.Load(), m.failed.Load()
	m.logger.Info("worker stopped",
		logging.String(logging.FieldWorkerID, m.opts.WorkerID),
		logging.Int64("processed", processed),
		logging.Int64("failed", failed))
	notifyCtx, cancelNotify := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelNotify()
	if err := m.notifier.NotifyWorkerStopped(notifyCtx, m.opts.WorkerID, int(processed), int(failed), time.Since(startedAt)); err != nil {
		m.logger.Debug("worker stop notification failed", logging.Error(err))
	}
}

// Run starts the manager and blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	logger := logging.WithContext(ctx, m.logger)
	for {
		if ctx.Err() != nil {
			return
		}
		m.touch(ctx, logger)
		m.reclaim(ctx, logger)

		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		task, err := m.queue.Claim(ctx, m.opts.WorkerID)
		if err != nil {
			<-m.sem
			if ctx.Err() != nil {
				return
			}
			if task != nil && errors.Is(err, services.ErrFatalWorker) {
				m.rejectDuplicate(ctx, logger, task, err)
			} else {
				m.setLastError(err)
				logging.ErrorWithContext(logger, "failed to claim task", "queue_claim_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue backend connectivity"))
			}
			if !sleep(ctx, m.opts.ErrorBackoff) {
				return
			}
			continue
		}
		if task == nil {
			<-m.sem
			if m.metrics != nil {
				m.metrics.QueueLength.Set(0)
			}
			if !sleep(ctx, m.opts.PollInterval) {
				return
			}
			continue
		}

		m.tasks.Add(1)
		go func() {
			defer m.tasks.Done()
			defer func() { <-m.sem }()
			if err := m.process(ctx, task); err != nil {
				// Hold the slot so a broken dependency is not hammered.
				sleep(ctx, m.opts.ErrorBackoff)
			}
		}()
	}
}

// process drives one task to a terminal state and returns the task error.
func (m *Manager) process(ctx context.Context, task *queue.Task) error {
	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithRequestID(taskCtx, uuid.NewString())
	logger := logging.WithContext(taskCtx, m.logger).With(logging.String(logging.FieldTaskKind, string(task.Kind)))

	logger.Info("task claimed",
		logging.Event("task_claimed"),
		logging.Int("attempt", task.Attempt))
	m.publish(taskCtx, events.Event{Type: events.TaskClaimed, TaskID: task.ID, Kind: string(task.Kind), WorkerID: m.opts.WorkerID})
	m.setLastTask(task.ID)

	m.active.Add(1)
	if m.metrics != nil {
		m.metrics.ActiveTasks.Inc()
	}
	defer func() {
		m.active.Add(-1)
		if m.metrics != nil {
			m.metrics.ActiveTasks.Dec()
		}
	}()

	var progress atomic.Int32
	execCtx, cancelExec := context.WithCancelCause(taskCtx)
	defer cancelExec(nil)
	hbCtx, stopHeartbeat := context.WithCancel(taskCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeatLoop(hbCtx, &hbWG, logger, task, &progress, cancelExec)

	started := time.Now()
	result, err := m.execute(execCtx, logger, task, func(p int) {
		if int32(p) == progress.Swap(int32(p)) {
			return
		}
		m.publish(taskCtx, events.Event{Type: events.TaskProgress, TaskID: task.ID, Kind: string(task.Kind), WorkerID: m.opts.WorkerID, Progress: p})
	})
	stopHeartbeat()
	hbWG.Wait()
	elapsed := time.Since(started)

	if ctx.Err() != nil {
		logging.WarnWithContext(logger, "task interrupted by shutdown", "task_abandoned",
			logging.String(logging.FieldImpact, "lease will expire and the task will be reclaimed"))
		return ctx.Err()
	}
	if errors.Is(context.Cause(execCtx), errLeaseLost) {
		logging.WarnWithContext(logger, "task lease lost; abandoning without acknowledgement", "task_abandoned",
			logging.Duration("task_duration", elapsed),
			logging.String(logging.FieldImpact, "the current claim holder records the outcome"))
		return nil
	}

	ackCtx := context.WithoutCancel(taskCtx)
	if err != nil {
		m.finishFailed(ackCtx, logger, task, err, elapsed)
		return err
	}
	m.finishCompleted(ackCtx, logger, task, result, elapsed)
	return nil
}

// execute runs the executor and converts a panic into ErrFatalWorker.
func (m *Manager) execute(ctx context.Context, logger *slog.Logger, task *queue.Task, progress func(int)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked",
				logging.Alert("worker_panic"),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())))
			result = nil
			err = services.Wrap(services.ErrFatalWorker, "workflow", "execute", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return m.exec.Execute(ctx, task, progress)
}

func (m *Manager) finishCompleted(ctx context.Context, logger *slog.Logger, task *queue.Task, result any, elapsed time.Duration) {
	if err := m.queue.Complete(ctx, task, result); err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to record task completion", "task_ack_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "task stays processing until its lease expires"))
		return
	}
	m.processed.Add(1)
	if m.metrics != nil {
		m.metrics.TaskFinished(string(task.Kind), string(queue.StatusCompleted), elapsed)
	}
	logger.Info("task completed",
		logging.Event("task_completed"),
		logging.Duration("task_duration", elapsed))

	var raw json.RawMessage
	if data, err := json.Marshal(result); err == nil {
		raw = data
	}
	m.publish(ctx, events.Event{Type: events.TaskCompleted, TaskID: task.ID, Kind: string(task.Kind), WorkerID: m.opts.WorkerID, Progress: 100, Result: raw})

	summary := ""
	if s, ok := result.(interface{ Summary() string }); ok {
		summary = s.Summary()
	}
	if err := m.notifier.NotifyTaskCompleted(ctx, task.ID, string(task.Kind), summary); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
}

func (m *Manager) finishFailed(ctx context.Context, logger *slog.Logger, task *queue.Task, cause error, elapsed time.Duration) {
	m.failed.Add(1)
	m.setLastError(cause)
	logger.Error("task failed",
		logging.Event("task_failed"),
		logging.String("failure_kind", services.FailureKind(cause)),
		logging.Duration("task_duration", elapsed),
		logging.Error(cause))
	if err := m.queue.Fail(ctx, task, cause); err != nil {
		logging.ErrorWithContext(logger, "failed to record task failure", "task_ack_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "task stays processing until its lease expires"))
	}
	if m.metrics != nil {
		m.metrics.TaskFinished(string(task.Kind), string(queue.StatusFailed), elapsed)
	}
	m.publish(ctx, events.Event{Type: events.TaskFailed, TaskID: task.ID, Kind: string(task.Kind), WorkerID: m.opts.WorkerID, Error: services.FailureMessage(cause)})
	if err := m.notifier.NotifyTaskFailed(ctx, task.ID, string(task.Kind), cause); err != nil {
		logger.Debug("failure notification failed", logging.Error(err))
	}
}

// rejectDuplicate fails a task the queue handed out while this process
// already held it.
func (m *Manager) rejectDuplicate(ctx context.Context, logger *slog.Logger, task *queue.Task, cause error) {
	m.failed.Add(1)
	m.setLastError(cause)
	logger.Error("duplicate claim detected",
		logging.Alert("duplicate_claim"),
		logging.String(logging.FieldTaskID, task.ID),
		logging.Error(cause))
	if err := m.queue.Fail(ctx, task, cause); err != nil {
		logger.Error("failed to record duplicate claim", logging.Error(err))
	}
	m.publish(ctx, events.Event{Type: events.TaskFailed, TaskID: task.ID, Kind: string(task.Kind), WorkerID: m.opts.WorkerID, Error: services.FailureMessage(cause)})
}

func (m *Manager) reclaim(ctx context.Context, logger *slog.Logger) {
	report, err := m.queue.Reclaim(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(logger, "lease reclaim failed; abandoned tasks may stay processing", "lease_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue backend connectivity"))
		}
		return
	}
	if report.Total() == 0 {
		return
	}
	if m.metrics != nil {
		m.metrics.Reclaimed(len(report.Requeued), len(report.Failed))
	}
	for _, id := range report.Failed {
		m.publish(ctx, events.Event{Type: events.TaskFailed, TaskID: id, Error: queue.LeaseExpiredMessage})
	}
}

func (m *Manager) touch(ctx context.Context, logger *slog.Logger) {
	if err := m.queue.TouchWorker(ctx, m.opts.WorkerID); err != nil && ctx.Err() == nil {
		logger.Debug("worker liveness update failed", logging.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	_ = m.events.Publish(ctx, event)
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
