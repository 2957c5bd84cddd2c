package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
)

// errLeaseLost is the cancellation cause of a task whose claim now belongs
// to someone else.
var errLeaseLost = errors.New("claim lease lost")

// heartbeatLoop renews the lease on task every heartbeat interval until ctx
// is cancelled, carrying the latest progress value. When the queue reports
// the claim is no longer held, lost is called and the loop ends.
func (m *Manager) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, task *queue.Task, progress *atomic.Int32, lost context.CancelCauseFunc) {
	defer wg.Done()
	interval := m.opts.HeartbeatInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.queue.Heartbeat(ctx, task, int(progress.Load())); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if errors.Is(err, queue.ErrNotClaimed) {
					lost(errLeaseLost)
					return
				}
				logging.WarnWithContext(logger, "heartbeat update failed", "heartbeat_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "lease may expire and the task run twice"))
			}
			if err := m.queue.TouchWorker(ctx, m.opts.WorkerID); err != nil && !errors.Is(err, context.Canceled) {
				logger.Debug("worker liveness update failed", logging.Error(err))
			}
		}
	}
}
