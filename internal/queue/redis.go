package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hash fields of a stored task.
const (
	hfID          = "id"
	hfKind        = "kind"
	hfPayload     = "payload"
	hfStatus      = "status"
	hfWorkerID    = "worker_id"
	hfClaimToken  = "claim_token"
	hfAttempt     = "attempt"
	hfProgress    = "progress"
	hfEnqueuedAt  = "enqueued_at"
	hfClaimedAt   = "claimed_at"
	hfHeartbeatAt = "heartbeat_at"
	hfCompletedAt = "completed_at"
	hfResult      = "result"
	hfError       = "error"
)

// enqueueScript creates the task hash and appends its id to the queue. A
// finished task with the same id is replaced; a live one is left alone.
var enqueueScript = redis.NewScript(`
local status = redis.call('HGET', ARGV[1], 'status')
if status == 'queued' or status == 'processing' then
  return 0
end
redis.call('DEL', ARGV[1])
redis.call('HSET', ARGV[1], 'id', ARGV[2], 'kind', ARGV[3], 'payload', ARGV[4], 'status', 'queued', 'attempt', ARGV[5], 'progress', '0', 'enqueued_at', ARGV[6])
redis.call('LPUSH', KEYS[1], ARGV[2])
return 1
`)

// claimScript pops the oldest queued id, marks it processing and records the
// lease in one server-side step. Ids whose hash is gone or no longer queued
// are skipped.
var claimScript = redis.NewScript(`
while true do
  local id = redis.call('RPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[1] .. id
  if redis.call('HGET', key, 'status') == 'queued' then
    redis.call('HSET', key, 'status', 'processing', 'worker_id', ARGV[2], 'claim_token', ARGV[5], 'claimed_at', ARGV[3], 'heartbeat_at', ARGV[3], 'progress', '0')
    redis.call('ZADD', KEYS[2], ARGV[4], id)
    return id
  end
end
`)

var heartbeatScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[2]) or redis.call('HGET', ARGV[1], 'claim_token') ~= ARGV[6] then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[2])
redis.call('HSET', ARGV[1], 'heartbeat_at', ARGV[3])
local current = tonumber(redis.call('HGET', ARGV[1], 'progress') or '0')
if tonumber(ARGV[5]) > current then
  redis.call('HSET', ARGV[1], 'progress', ARGV[5])
end
return 1
`)

// finishScript acknowledges a claimed task. The claim token must match the
// current claim and the lease entry must still exist, so a reclaimed task
// cannot be finished by its previous holder or finished twice.
var finishScript = redis.NewScript(`
if redis.call('HGET', ARGV[1], 'claim_token') ~= ARGV[8] then
  return 0
end
if redis.call('ZREM', KEYS[1], ARGV[2]) == 0 then
  return 0
end
redis.call('HSET', ARGV[1], 'status', ARGV[3], 'result', ARGV[4], 'error', ARGV[5], 'completed_at', ARGV[6])
redis.call('HDEL', ARGV[1], 'claim_token')
if ARGV[3] == 'completed' then
  redis.call('HSET', ARGV[1], 'progress', '100')
end
redis.call('HDEL', ARGV[1], 'heartbeat_at')
if tonumber(ARGV[7]) > 0 then
  redis.call('EXPIRE', ARGV[1], ARGV[7])
end
redis.call('INCR', KEYS[2])
return 1
`)

// reclaimScript returns 1 when the task was requeued, 2 when it exhausted its
// attempts and failed, and 0 when the lease was renewed in the meantime.
var reclaimScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[2])
if not score or tonumber(score) > tonumber(ARGV[3]) then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[2])
local attempt = redis.call('HINCRBY', ARGV[1], 'attempt', 1)
if attempt >= tonumber(ARGV[4]) then
  redis.call('HSET', ARGV[1], 'status', 'failed', 'error', ARGV[6], 'completed_at', ARGV[5])
  redis.call('HDEL', ARGV[1], 'heartbeat_at', 'claim_token')
  if tonumber(ARGV[7]) > 0 then
    redis.call('EXPIRE', ARGV[1], ARGV[7])
  end
  redis.call('INCR', KEYS[3])
  return 2
end
redis.call('HSET', ARGV[1], 'status', 'queued', 'worker_id', '', 'progress', '0')
redis.call('HDEL', ARGV[1], 'claimed_at', 'heartbeat_at', 'claim_token')
redis.call('LPUSH', KEYS[2], ARGV[2])
return 1
`)

// RedisBackend shares one queue between every process pointed at the same
// server. Claims run as Lua scripts so they are atomic server-side.
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisClient parses url and verifies the server answers within timeout.
func NewRedisClient(ctx context.Context, url string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse queue url: %w", err)
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	opts.MaxRetries = 0
	client := redis.NewClient(opts)

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisBackend wraps an already connected client. Finished task hashes
// expire after ttl; zero keeps them forever.
func NewRedisBackend(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisBackend {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "clipforge"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) queueKey() string { return r.prefix + ":queue" }
func (r *RedisBackend) leaseKey() string { return r.prefix + ":lease" }
func (r *RedisBackend) workersKey() string { return r.prefix + ":workers" }
func (r *RedisBackend) taskPrefix() string { return r.prefix + ":task:" }
func (r *RedisBackend) taskKey(id string) string { return r.taskPrefix() + id }
func (r *RedisBackend) counterKey(s Status) string { return r.prefix + ":stats:" + string(s) }

func (r *RedisBackend) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	enqueued := task.EnqueuedAt
	if enqueued.IsZero() {
		enqueued = r.now().UTC()
	}
	created, err := enqueueScript.Run(ctx, r.rdb,
		[]string{r.queueKey()},
		r.taskKey(task.ID), task.ID, string(task.Kind), string(payload),
		strconv.Itoa(task.Attempt), formatNanos(enqueued),
	).Int()
	if err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	return nil
}

func (r *RedisBackend) Claim(ctx context.Context, workerID string) (*Task, error) {
	now := r.now().UTC()
	id, err := claimScript.Run(ctx, r.rdb,
		[]string{r.queueKey(), r.leaseKey()},
		r.taskPrefix(), workerID, formatNanos(now), now.UnixMilli(), uuid.NewString(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis claim: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *RedisBackend) Heartbeat(ctx context.Context, id, token string, progress int) error {
	now := r.now().UTC()
	ok, err := heartbeatScript.Run(ctx, r.rdb,
		[]string{r.leaseKey()},
		r.taskKey(id), id, formatNanos(now), now.UnixMilli(), clampProgress(progress), token,
	).Int()
	if err != nil {
		return fmt.Errorf("redis heartbeat: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrNotClaimed, id)
	}
	return nil
}

func (r *RedisBackend) Complete(ctx context.Context, id, token string, result json.RawMessage) error {
	return r.finish(ctx, id, token, StatusCompleted, string(result), "")
}

func (r *RedisBackend) Fail(ctx context.Context, id, token string, message string) error {
	return r.finish(ctx, id, token, StatusFailed, "", message)
}

func (r *RedisBackend) finish(ctx context.Context, id, token string, status Status, result, message string) error {
	ok, err := finishScript.Run(ctx, r.rdb,
		[]string{r.leaseKey(), r.counterKey(status)},
		r.taskKey(id), id, string(status), result, message,
		formatNanos(r.now().UTC()), int64(r.ttl/time.Second), token,
	).Int()
	if err != nil {
		return fmt.Errorf("redis %s: %w", status, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrNotClaimed, id)
	}
	return nil
}

func (r *RedisBackend) Reclaim(ctx context.Context, cutoff time.Time, maxAttempts int) (ReclaimReport, error) {
	var report ReclaimReport
	ids, err := r.rdb.ZRangeByScore(ctx, r.leaseKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return report, fmt.Errorf("redis reclaim scan: %w", err)
	}
	keys := []string{r.leaseKey(), r.queueKey(), r.counterKey(StatusFailed)}
	for _, id := range ids {
		outcome, err := reclaimScript.Run(ctx, r.rdb, keys,
			r.taskKey(id), id, cutoff.UnixMilli(), maxAttempts,
			formatNanos(r.now().UTC()), LeaseExpiredMessage, int64(r.ttl/time.Second),
		).Int()
		if err != nil {
			return report, fmt.Errorf("redis reclaim %s: %w", id, err)
		}
		switch outcome {
		case 1:
			report.Requeued = append(report.Requeued, id)
		case 2:
			report.Failed = append(report.Failed, id)
			if task, err := r.Get(ctx, id); err == nil {
				report.Expired = append(report.Expired, task)
			}
		}
	}
	return report, nil
}

func (r *RedisBackend) Get(ctx context.Context, id string) (*Task, error) {
	fields, err := r.rdb.HGetAll(ctx, r.taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return decodeTaskHash(fields)
}

func (r *RedisBackend) TouchWorker(ctx context.Context, workerID string) error {
	if err := r.rdb.ZAdd(ctx, r.workersKey(), redis.Z{
		Score:  float64(r.now().UnixMilli()),
		Member: workerID,
	}).Err(); err != nil {
		return fmt.Errorf("redis touch worker: %w", err)
	}
	return nil
}

func (r *RedisBackend) Counts(ctx context.Context, workerCutoff time.Time) (Counts, error) {
	cutoff := strconv.FormatInt(workerCutoff.UnixMilli(), 10)
	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, r.workersKey(), "-inf", "("+cutoff)
	queued := pipe.LLen(ctx, r.queueKey())
	processing := pipe.ZCard(ctx, r.leaseKey())
	workers := pipe.ZCard(ctx, r.workersKey())
	completed := pipe.Get(ctx, r.counterKey(StatusCompleted))
	failed := pipe.Get(ctx, r.counterKey(StatusFailed))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Counts{}, fmt.Errorf("redis counts: %w", err)
	}
	return Counts{
		Queued:        int(queued.Val()),
		Processing:    int(processing.Val()),
		Completed:     counterValue(completed),
		Failed:        counterValue(failed),
		WorkersOnline: int(workers.Val()),
	}, nil
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}

func counterValue(cmd *redis.StringCmd) int {
	n, err := cmd.Int()
	if err != nil {
		return 0
	}
	return n
}

func decodeTaskHash(fields map[string]string) (*Task, error) {
	task := &Task{
		ID:         fields[hfID],
		Kind:       Kind(fields[hfKind]),
		Status:     Status(fields[hfStatus]),
		WorkerID:   fields[hfWorkerID],
		ClaimToken: fields[hfClaimToken],
		Error:      fields[hfError],
	}
	if raw := fields[hfPayload]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", task.ID, err)
		}
	}
	if raw := fields[hfResult]; raw != "" {
		task.Result = json.RawMessage(raw)
	}
	task.Attempt, _ = strconv.Atoi(fields[hfAttempt])
	task.Progress, _ = strconv.Atoi(fields[hfProgress])
	if t := parseNanos(fields[hfEnqueuedAt]); t != nil {
		task.EnqueuedAt = *t
	}
	task.ClaimedAt = parseNanos(fields[hfClaimedAt])
	task.HeartbeatAt = parseNanos(fields[hfHeartbeatAt])
	task.CompletedAt = parseNanos(fields[hfCompletedAt])
	return task, nil
}

func formatNanos(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseNanos(value string) *time.Time {
	if value == "" {
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
