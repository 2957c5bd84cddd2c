package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backendFactory struct {
	name string
	open func(t *testing.T, clk *clock) Backend
}

func backendFactories() []backendFactory {
	return []backendFactory{
		{name: "memory", open: func(t *testing.T, clk *clock) Backend {
			b := NewMemoryBackend()
			b.now = clk.Now
			return b
		}},
		{name: "sqlite", open: func(t *testing.T, clk *clock) Backend {
			b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "queue.db"), time.Hour)
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			b.now = clk.Now
			t.Cleanup(func() { _ = b.Close() })
			return b
		}},
		{name: "redis", open: func(t *testing.T, clk *clock) Backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			b := NewRedisBackend(client, "test", time.Hour)
			b.now = clk.Now
			t.Cleanup(func() { _ = b.Close() })
			return b
		}},
	}
}

func enqueueTask(t *testing.T, b Backend, id string) {
	t.Helper()
	task := &Task{
		ID:         id,
		Kind:       KindAnalyze,
		Payload:    Payload{FieldVideoID: "v-" + id},
		Status:     StatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := b.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue %s: %v", id, err)
	}
}

func TestBackendEnqueueThenClaimOnce(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			b := factory.open(t, newClock())
			enqueueTask(t, b, "t1")

			task, err := b.Claim(ctx, "w1")
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if task == nil || task.ID != "t1" {
				t.Fatalf("expected t1, got %#v", task)
			}
			if task.Status != StatusProcessing || task.WorkerID != "w1" || task.ClaimedAt == nil {
				t.Fatalf("claimed task not marked processing: %#v", task)
			}
			if task.Payload.String(FieldVideoID) != "v-t1" {
				t.Fatalf("payload not preserved: %#v", task.Payload)
			}

			again, err := b.Claim(ctx, "w2")
			if err != nil {
				t.Fatalf("second Claim: %v", err)
			}
			if again != nil {
				t.Fatalf("expected empty queue, got %#v", again)
			}
		})
	}
}

func TestBackendClaimIsFIFO(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			b := factory.open(t, newClock())
			for _, id := range []string{"a", "b", "c"} {
				enqueueTask(t, b, id)
			}
			for _, want := range []string{"a", "b", "c"} {
				task, err := b.Claim(ctx, "w")
				if err != nil || task == nil {
					t.Fatalf("Claim: %v %v", task, err)
				}
				if task.ID != want {
					t.Fatalf("expected %s, got %s", want, task.ID)
				}
			}
		})
	}
}

func TestBackendConcurrentClaimsAreExclusive(t *testing.T) {
	const tasks = 40
	const workers = 8
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			b := factory.open(t, newClock())
			for i := 0; i < tasks; i++ {
				enqueueTask(t, b, fmt.Sprintf("task-%02d", i))
			}

			var (
				mu    sync.Mutex
				wg    sync.WaitGroup
				dupes []string
				errs  []error
			)
			seen := make(map[string]string)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(worker string) {
					defer wg.Done()
					for {
						task, err := b.Claim(ctx, worker)
						if err != nil {
							mu.Lock()
							errs = append(errs, err)
							mu.Unlock()
							return
						}
						if task == nil {
							return
						}
						mu.Lock()
						if prev, ok := seen[task.ID]; ok {
							dupes = append(dupes, task.ID+" by "+prev+" and "+worker)
						}
						seen[task.ID] = worker
						mu.Unlock()
					}
				}(fmt.Sprintf("w%d", w))
			}
			wg.Wait()

			if len(errs) > 0 {
				t.Fatalf("claim errors: %v", errs)
			}
			if len(dupes) > 0 {
				t.Fatalf("tasks claimed twice: %v", dupes)
			}
			if len(seen) != tasks {
				t.Fatalf("expected %d distinct claims, got %d", tasks, len(seen))
			}
		})
	}
}

func TestBackendAcknowledgeRequiresClaim(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			b := factory.open(t, newClock())
			enqueueTask(t, b, "t1")

			if err := b.Complete(ctx, "t1", "", nil); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("expected ErrNotClaimed for queued task, got %v", err)
			}
			task, err := b.Claim(ctx, "w")
			if err != nil || task == nil {
				t.Fatalf("Claim: %#v %v", task, err)
			}
			if task.ClaimToken == "" {
				t.Fatal("claim must carry a token")
			}
			if err := b.Complete(ctx, "t1", "forged", nil); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("expected ErrNotClaimed for a foreign token, got %v", err)
			}
			if err := b.Complete(ctx, "t1", task.ClaimToken, []byte(`{"ok":true}`)); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if err := b.Fail(ctx, "t1", task.ClaimToken, "late"); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("expected ErrNotClaimed after completion, got %v", err)
			}
			if err := b.Heartbeat(ctx, "t1", task.ClaimToken, 50); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("expected ErrNotClaimed heartbeat after completion, got %v", err)
			}
		})
	}
}

func TestBackendRejectsLiveDuplicate(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			b := factory.open(t, newClock())
			enqueueTask(t, b, "dup")
			err := b.Enqueue(ctx, &Task{ID: "dup", Kind: KindAnalyze, Payload: Payload{FieldVideoID: "v"}})
			if !errors.Is(err, ErrDuplicateTask) {
				t.Fatalf("expected ErrDuplicateTask, got %v", err)
			}

			claimed, err := b.Claim(ctx, "w")
			if err != nil || claimed == nil {
				t.Fatalf("Claim: %#v %v", claimed, err)
			}
			if err := b.Fail(ctx, "dup", claimed.ClaimToken, "boom"); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			if err := b.Enqueue(ctx, &Task{ID: "dup", Kind: KindAnalyze, Payload: Payload{FieldVideoID: "v"}}); err != nil {
				t.Fatalf("re-enqueue of finished task: %v", err)
			}
			task, err := b.Claim(ctx, "w")
			if err != nil || task == nil || task.ID != "dup" {
				t.Fatalf("expected re-enqueued task, got %#v %v", task, err)
			}
		})
	}
}

func TestBackendReclaimRequeuesThenFails(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			b := factory.open(t, clk)
			enqueueTask(t, b, "lease")

			const maxAttempts = 3
			for attempt := 0; attempt < maxAttempts; attempt++ {
				task, err := b.Claim(ctx, "w")
				if err != nil || task == nil {
					t.Fatalf("attempt %d: Claim: %#v %v", attempt, task, err)
				}
				if task.Attempt != attempt {
					t.Fatalf("expected attempt %d, got %d", attempt, task.Attempt)
				}

				clk.Advance(10 * time.Minute)
				report, err := b.Reclaim(ctx, clk.Now().Add(-time.Minute), maxAttempts)
				if err != nil {
					t.Fatalf("Reclaim: %v", err)
				}
				if attempt < maxAttempts-1 {
					if len(report.Requeued) != 1 || report.Requeued[0] != "lease" || len(report.Failed) != 0 {
						t.Fatalf("attempt %d: expected requeue, got %+v", attempt, report)
					}
					continue
				}
				if len(report.Failed) != 1 || report.Failed[0] != "lease" || len(report.Requeued) != 0 {
					t.Fatalf("expected final failure, got %+v", report)
				}
				if len(report.Expired) != 1 {
					t.Fatalf("expected a record of the failed task, got %+v", report)
				}
				expired := report.Expired[0]
				if expired.ID != "lease" || expired.Kind != KindAnalyze || expired.WorkerID != "w" ||
					expired.Attempt != maxAttempts || expired.Status != StatusFailed ||
					expired.EnqueuedAt.IsZero() || expired.ClaimedAt == nil || expired.CompletedAt == nil {
					t.Fatalf("incomplete expired record %#v", expired)
				}
			}

			if task, err := b.Claim(ctx, "w"); err != nil || task != nil {
				t.Fatalf("expected nothing left to claim, got %#v %v", task, err)
			}
			counts, err := b.Counts(ctx, clk.Now().Add(-time.Minute))
			if err != nil {
				t.Fatalf("Counts: %v", err)
			}
			if counts.Failed != 1 || counts.Queued != 0 || counts.Processing != 0 {
				t.Fatalf("unexpected counts %+v", counts)
			}
		})
	}
}

func TestBackendRejectsStaleClaimAfterReclaim(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			b := factory.open(t, clk)
			enqueueTask(t, b, "fenced")

			first, err := b.Claim(ctx, "worker-a")
			if err != nil || first == nil {
				t.Fatalf("Claim: %#v %v", first, err)
			}
			clk.Advance(10 * time.Minute)
			report, err := b.Reclaim(ctx, clk.Now().Add(-time.Minute), 3)
			if err != nil || len(report.Requeued) != 1 {
				t.Fatalf("Reclaim: %+v %v", report, err)
			}
			second, err := b.Claim(ctx, "worker-b")
			if err != nil || second == nil || second.ID != "fenced" {
				t.Fatalf("reclaimed task not handed out again: %#v %v", second, err)
			}
			if second.ClaimToken == first.ClaimToken {
				t.Fatal("a new claim must get a new token")
			}

			if err := b.Heartbeat(ctx, "fenced", first.ClaimToken, 90); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("stale heartbeat: expected ErrNotClaimed, got %v", err)
			}
			if err := b.Complete(ctx, "fenced", first.ClaimToken, []byte(`{"by":"a"}`)); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("stale complete: expected ErrNotClaimed, got %v", err)
			}
			if err := b.Fail(ctx, "fenced", first.ClaimToken, "late"); !errors.Is(err, ErrNotClaimed) {
				t.Fatalf("stale fail: expected ErrNotClaimed, got %v", err)
			}
			live, err := b.Get(ctx, "fenced")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if live.Status != StatusProcessing || live.WorkerID != "worker-b" || live.Progress != 0 {
				t.Fatalf("stale acks changed the live claim: %#v", live)
			}

			if err := b.Complete(ctx, "fenced", second.ClaimToken, []byte(`{"by":"b"}`)); err != nil {
				t.Fatalf("current holder Complete: %v", err)
			}
		})
	}
}

func TestBackendHeartbeatKeepsLease(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			b := factory.open(t, clk)
			enqueueTask(t, b, "hb")
			claimed, err := b.Claim(ctx, "w")
			if err != nil || claimed == nil {
				t.Fatalf("Claim: %#v %v", claimed, err)
			}

			clk.Advance(10 * time.Minute)
			if err := b.Heartbeat(ctx, "hb", claimed.ClaimToken, 40); err != nil {
				t.Fatalf("Heartbeat: %v", err)
			}
			report, err := b.Reclaim(ctx, clk.Now().Add(-time.Minute), 3)
			if err != nil {
				t.Fatalf("Reclaim: %v", err)
			}
			if report.Total() != 0 {
				t.Fatalf("fresh heartbeat should keep the lease, got %+v", report)
			}
			task, err := b.Get(ctx, "hb")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if task.Progress != 40 || task.Status != StatusProcessing {
				t.Fatalf("unexpected task after heartbeat: %#v", task)
			}
		})
	}
}

func TestBackendCounts(t *testing.T) {
	for _, factory := range backendFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			b := factory.open(t, clk)
			for _, id := range []string{"a", "b", "c", "d"} {
				enqueueTask(t, b, id)
			}
			tokens := map[string]string{}
			for _, id := range []string{"a", "b", "c"} {
				task, err := b.Claim(ctx, "w")
				if err != nil || task == nil || task.ID != id {
					t.Fatalf("Claim: %#v %v", task, err)
				}
				tokens[id] = task.ClaimToken
			}
			if err := b.Complete(ctx, "a", tokens["a"], nil); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if err := b.Fail(ctx, "b", tokens["b"], "boom"); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			if err := b.TouchWorker(ctx, "stale"); err != nil {
				t.Fatalf("TouchWorker: %v", err)
			}
			clk.Advance(5 * time.Minute)
			if err := b.TouchWorker(ctx, "fresh"); err != nil {
				t.Fatalf("TouchWorker: %v", err)
			}

			counts, err := b.Counts(ctx, clk.Now().Add(-time.Minute))
			if err != nil {
				t.Fatalf("Counts: %v", err)
			}
			want := Counts{Queued: 1, Processing: 1, Completed: 1, Failed: 1, WorkersOnline: 1}
			if counts != want {
				t.Fatalf("counts = %+v, want %+v", counts, want)
			}
		})
	}
}
