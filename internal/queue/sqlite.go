package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases are
// rejected rather than migrated; the file only holds restartable queue state.
const schemaVersion = 2

// ErrSchemaMismatch indicates the database was created by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const taskColumns = `id, kind, payload, status, worker_id, claim_token, attempt, progress,
    enqueued_at, claimed_at, heartbeat_at, completed_at, result, error`

// SQLiteBackend persists the queue in a local database file. Claims are a
// single UPDATE ... RETURNING statement, so concurrent claimers sharing the
// file never receive the same task.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	now  func() time.Time
}

// OpenSQLite opens or creates the queue database at path. Finished tasks are
// purged ttl after they finish; zero keeps them.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One connection serializes writers inside this process and keeps the
	// per-connection pragmas in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	backend := &SQLiteBackend{db: db, path: path, ttl: ttl, now: time.Now}
	if err := backend.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

// Path returns the database file location.
func (s *SQLiteBackend) Path() string { return s.path }

// Results returns a result store sharing this database.
func (s *SQLiteBackend) Results() *SQLiteResults {
	return &SQLiteResults{db: s.db, ttl: s.ttl, now: s.now}
}

func (s *SQLiteBackend) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteBackend) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	enqueued := task.EnqueuedAt
	if enqueued.IsZero() {
		enqueued = s.now().UTC()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO tasks (id, kind, payload, status, attempt, enqueued_at, queued_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             kind = excluded.kind, payload = excluded.payload, status = excluded.status,
             worker_id = '', claim_token = '', attempt = excluded.attempt, progress = 0,
             enqueued_at = excluded.enqueued_at, queued_at = excluded.queued_at,
             claimed_at = NULL, heartbeat_at = NULL, completed_at = NULL, result = NULL, error = ''
         WHERE tasks.status IN ('completed', 'failed')`,
		task.ID, string(task.Kind), string(payload), string(StatusQueued), task.Attempt,
		enqueued.UnixNano(), enqueued.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	return nil
}

func (s *SQLiteBackend) Claim(ctx context.Context, workerID string) (*Task, error) {
	now := s.now().UTC().UnixNano()
	var task *Task
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE tasks
             SET status = ?, worker_id = ?, claim_token = ?, claimed_at = ?, heartbeat_at = ?, progress = 0
             WHERE seq = (
                 SELECT seq FROM tasks WHERE status = ? ORDER BY queued_at, seq LIMIT 1
             ) AND status = ?
             RETURNING `+taskColumns,
			string(StatusProcessing), workerID, uuid.NewString(), now, now,
			string(StatusQueued), string(StatusQueued),
		)
		var scanErr error
		task, scanErr = scanTask(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (s *SQLiteBackend) Heartbeat(ctx context.Context, id, token string, progress int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET heartbeat_at = ?, progress = MAX(progress, ?)
         WHERE id = ? AND status = ? AND claim_token = ?`,
		s.now().UTC().UnixNano(), clampProgress(progress), id, string(StatusProcessing), token,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteBackend) Complete(ctx context.Context, id, token string, result json.RawMessage) error {
	var stored any
	if len(result) > 0 {
		stored = string(result)
	}
	return s.finish(ctx, id, token, StatusCompleted, stored, "")
}

func (s *SQLiteBackend) Fail(ctx context.Context, id, token string, message string) error {
	return s.finish(ctx, id, token, StatusFailed, nil, message)
}

func (s *SQLiteBackend) finish(ctx context.Context, id, token string, status Status, result any, message string) error {
	now := s.now().UTC().UnixNano()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks
             SET status = ?, result = ?, error = ?, completed_at = ?, heartbeat_at = NULL, claim_token = '',
                 progress = CASE WHEN ? = 'completed' THEN 100 ELSE progress END
             WHERE id = ? AND status = ? AND claim_token = ?`,
			string(status), result, message, now, string(status), id, string(StatusProcessing), token,
		)
		if err != nil {
			return fmt.Errorf("finish task: %w", err)
		}
		if err := requireAffected(res, id); err != nil {
			return err
		}
		return bumpCounter(ctx, tx, status)
	})
}

func (s *SQLiteBackend) Reclaim(ctx context.Context, cutoff time.Time, maxAttempts int) (ReclaimReport, error) {
	var report ReclaimReport
	now := s.now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		report = ReclaimReport{}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, attempt FROM tasks
             WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?`,
			string(StatusProcessing), cutoff.UTC().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("scan stale tasks: %w", err)
		}
		type stale struct {
			id      string
			attempt int
		}
		var found []stale
		for rows.Next() {
			var st stale
			if err := rows.Scan(&st.id, &st.attempt); err != nil {
				_ = rows.Close()
				return err
			}
			found = append(found, st)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, st := range found {
			if st.attempt+1 >= maxAttempts {
				if _, err := tx.ExecContext(ctx,
					`UPDATE tasks SET status = ?, attempt = attempt + 1, error = ?, completed_at = ?,
                         heartbeat_at = NULL, claim_token = ''
                     WHERE id = ?`,
					string(StatusFailed), LeaseExpiredMessage, now.UnixNano(), st.id,
				); err != nil {
					return fmt.Errorf("fail stale task: %w", err)
				}
				if err := bumpCounter(ctx, tx, StatusFailed); err != nil {
					return err
				}
				expired, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, st.id))
				if err != nil {
					return fmt.Errorf("read failed task: %w", err)
				}
				report.Failed = append(report.Failed, st.id)
				report.Expired = append(report.Expired, expired)
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks
                 SET status = ?, attempt = attempt + 1, worker_id = '', claim_token = '', progress = 0,
                     claimed_at = NULL, heartbeat_at = NULL, queued_at = ?
                 WHERE id = ?`,
				string(StatusQueued), now.UnixNano(), st.id,
			); err != nil {
				return fmt.Errorf("requeue stale task: %w", err)
			}
			report.Requeued = append(report.Requeued, st.id)
		}

		if s.ttl > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < ?`,
				now.Add(-s.ttl).UnixNano(),
			); err != nil {
				return fmt.Errorf("purge finished tasks: %w", err)
			}
		}
		return nil
	})
	return report, err
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *SQLiteBackend) TouchWorker(ctx context.Context, workerID string) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO workers (worker_id, last_seen) VALUES (?, ?)
         ON CONFLICT(worker_id) DO UPDATE SET last_seen = excluded.last_seen`,
		workerID, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("touch worker: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Counts(ctx context.Context, workerCutoff time.Time) (Counts, error) {
	var counts Counts
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks WHERE status IN (?, ?) GROUP BY status`,
		string(StatusQueued), string(StatusProcessing),
	)
	if err != nil {
		return counts, fmt.Errorf("count tasks: %w", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return counts, err
		}
		switch Status(status) {
		case StatusQueued:
			counts.Queued = n
		case StatusProcessing:
			counts.Processing = n
		}
	}
	if err := rows.Close(); err != nil {
		return counts, err
	}

	counterRows, err := s.db.QueryContext(ctx, `SELECT status, total FROM counters`)
	if err != nil {
		return counts, fmt.Errorf("read counters: %w", err)
	}
	for counterRows.Next() {
		var (
			status string
			n      int
		)
		if err := counterRows.Scan(&status, &n); err != nil {
			_ = counterRows.Close()
			return counts, err
		}
		switch Status(status) {
		case StatusCompleted:
			counts.Completed = n
		case StatusFailed:
			counts.Failed = n
		}
	}
	if err := counterRows.Close(); err != nil {
		return counts, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workers WHERE last_seen >= ?`, workerCutoff.UnixNano(),
	).Scan(&counts.WorkersOnline); err != nil {
		return counts, fmt.Errorf("count workers: %w", err)
	}
	return counts, nil
}

// Close closes the underlying database connection.
func (s *SQLiteBackend) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteBackend) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteBackend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func bumpCounter(ctx context.Context, tx *sql.Tx, status Status) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO counters (status, total) VALUES (?, 1)
         ON CONFLICT(status) DO UPDATE SET total = total + 1`,
		string(status),
	); err != nil {
		return fmt.Errorf("bump %s counter: %w", status, err)
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotClaimed, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                          Task
		kind, status, payload         string
		enqueued                      int64
		claimed, heartbeat, completed sql.NullInt64
		result                        sql.NullString
	)
	if err := row.Scan(&task.ID, &kind, &payload, &status, &task.WorkerID, &task.ClaimToken, &task.Attempt, &task.Progress,
		&enqueued, &claimed, &heartbeat, &completed, &result, &task.Error); err != nil {
		return nil, err
	}
	task.Kind = Kind(kind)
	task.Status = Status(status)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &task.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", task.ID, err)
		}
	}
	task.EnqueuedAt = time.Unix(0, enqueued).UTC()
	task.ClaimedAt = nullTime(claimed)
	task.HeartbeatAt = nullTime(heartbeat)
	task.CompletedAt = nullTime(completed)
	if result.Valid && result.String != "" {
		task.Result = json.RawMessage(result.String)
	}
	return &task, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
