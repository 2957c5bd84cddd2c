package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"clipforge/internal/logging"
)

// Daemon runs a Manager while holding an exclusive lock for its worker id.
type Daemon struct {
	manager  *Manager
	logger   *slog.Logger
	lockPath string
	lock     *flock.Flock
	running  atomic.Bool
}

// NewDaemon places the lock file under stateDir.
func NewDaemon(stateDir string, manager *Manager, logger *slog.Logger) (*Daemon, error) {
	if manager == nil {
		return nil, errors.New("daemon requires a workflow manager")
	}
	if stateDir == "" {
		return nil, errors.New("daemon requires a state directory")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(stateDir, "worker-"+lockName(manager.WorkerID())+".lock")
	return &Daemon{
		manager:  manager,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LockPath returns the lock file location.
func (d *Daemon) LockPath() string { return d.lockPath }

// Start acquires the lock and launches the manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another worker with id %q is already running", d.manager.WorkerID())
	}
	if err := d.manager.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.running.Store(true)
	d.logger.Info("worker daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops the manager and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release worker lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("worker daemon stopped")
}

// Running reports whether the daemon holds its lock.
func (d *Daemon) Running() bool { return d.running.Load() }

func lockName(workerID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			return r
		default:
			return '_'
		}
	}, workerID)
}
