package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipforge/internal/api"
	"clipforge/internal/events"
	"clipforge/internal/metrics"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/workflow"
)

type recorder struct{ events []events.Event }

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

type staticWorker struct{ stats workflow.WorkerStats }

func (w staticWorker) Stats() workflow.WorkerStats { return w.stats }

type staticHealth []stage.Health

func (h staticHealth) Health(context.Context) []stage.Health { return h }

func newServer(t *testing.T, mutate func(*api.Dependencies)) (*api.Server, *queue.Queue) {
	t.Helper()
	q := queue.NewMemory(queue.Options{})
	deps := api.Dependencies{Queue: q, Metrics: metrics.New(nil)}
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := api.New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, q
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueAcceptsValidTask(t *testing.T) {
	rec := &recorder{}
	srv, q := newServer(t, func(d *api.Dependencies) { d.Events = rec })

	resp := do(t, srv.Handler(), http.MethodPost, "/tasks",
		`{"id":"job-1","kind":"generate_clips","payload":{"video_id":"v1","format_id":"9:16"}}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var task queue.Task
	if err := json.Unmarshal(resp.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "job-1" || task.Kind != queue.KindGenerateClips {
		t.Fatalf("unexpected task %#v", task)
	}
	if len(rec.events) != 1 || rec.events[0].Type != events.TaskEnqueued {
		t.Fatalf("expected enqueued event, got %#v", rec.events)
	}
	if resp.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	status, err := q.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", status.Status)
	}
}

func TestEnqueueRejectsInvalidTask(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp := do(t, srv.Handler(), http.MethodPost, "/tasks", `{"kind":"generate_clips","payload":{"video_id":"v1"}}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["field"] != "format_id" {
		t.Fatalf("expected format_id field, got %#v", body)
	}

	resp = do(t, srv.Handler(), http.MethodPost, "/tasks", `{not json`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", resp.Code)
	}
}

func TestEnqueueDuplicateIDConflicts(t *testing.T) {
	srv, _ := newServer(t, nil)
	body := `{"id":"dup","kind":"analyze","payload":{"video_id":"v1"}}`
	if resp := do(t, srv.Handler(), http.MethodPost, "/tasks", body); resp.Code != http.StatusAccepted {
		t.Fatalf("first enqueue: %d", resp.Code)
	}
	if resp := do(t, srv.Handler(), http.MethodPost, "/tasks", body); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestStatusReportsUnknownAsProcessing(t *testing.T) {
	srv, _ := newServer(t, nil)
	resp := do(t, srv.Handler(), http.MethodGet, "/tasks/missing", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var status queue.StatusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != queue.StatusProcessing || status.Progress != 0 {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestStatsIncludesWorkers(t *testing.T) {
	srv, q := newServer(t, func(d *api.Dependencies) {
		d.Workers = []api.WorkerSource{staticWorker{workflow.WorkerStats{WorkerID: "w1", Running: true, Processed: 3}}}
	})
	if _, err := q.Add(context.Background(), queue.Submission{Kind: "analyze", Payload: queue.Payload{"video_id": "v"}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	resp := do(t, srv.Handler(), http.MethodGet, "/stats", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		QueueLength int                    `json:"queue_length"`
		Backend     string                 `json:"backend"`
		Workers     []workflow.WorkerStats `json:"workers"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.QueueLength != 1 || body.Backend != "memory" {
		t.Fatalf("unexpected stats %#v", body)
	}
	if len(body.Workers) != 1 || body.Workers[0].Processed != 3 {
		t.Fatalf("unexpected workers %#v", body.Workers)
	}
}

func TestHealthReportsDegradedStage(t *testing.T) {
	srv, _ := newServer(t, func(d *api.Dependencies) {
		d.Health = staticHealth{stage.Healthy("probe"), stage.Unhealthy("transcribe", "no engines")}
	})
	resp := do(t, srv.Handler(), http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Status string         `json:"status"`
		Stages []stage.Health `json:"stages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || len(body.Stages) != 2 {
		t.Fatalf("unexpected health %#v", body)
	}
}

func TestTokenGuardsTaskRoutes(t *testing.T) {
	srv, _ := newServer(t, func(d *api.Dependencies) { d.Token = "secret" })
	h := srv.Handler()

	if resp := do(t, h, http.MethodGet, "/stats", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	if resp := do(t, h, http.MethodGet, "/stats", "", "Authorization", "Bearer wrong"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.Code)
	}
	if resp := do(t, h, http.MethodGet, "/stats", "", "Authorization", "Bearer secret"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
	if resp := do(t, h, http.MethodGet, "/health", ""); resp.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", resp.Code)
	}
	if resp := do(t, h, http.MethodGet, "/metrics", ""); resp.Code != http.StatusOK {
		t.Fatalf("metrics must stay open, got %d", resp.Code)
	}
}

func TestNewRequiresQueue(t *testing.T) {
	if _, err := api.New(api.Dependencies{}); err == nil {
		t.Fatal("expected error without queue")
	}
}
