package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"clipforge/internal/services"
)

func TestStageFinishedCountsFailuresByKind(t *testing.T) {
	m := New(nil)
	m.StageFinished("analyze", "transcribe", time.Second, nil)
	m.StageFinished("analyze", "transcribe", time.Second, services.Wrap(services.ErrEngineUnavailable, "transcribe", "", "", errors.New("x")))

	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("transcribe", "engine_unavailable")); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}
	if got := testutil.CollectAndCount(m.StageDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestTaskFinishedAndReclaimed(t *testing.T) {
	m := New(nil)
	m.TaskFinished("analyze", "completed", 3*time.Second)
	m.TaskFinished("analyze", "failed", time.Second)
	m.Reclaimed(2, 1)

	if got := testutil.ToFloat64(m.TasksTotal.WithLabelValues("analyze", "completed")); got != 1 {
		t.Fatalf("unexpected completed count %v", got)
	}
	if got := testutil.ToFloat64(m.LeasesReclaim.WithLabelValues("requeued")); got != 2 {
		t.Fatalf("unexpected requeued count %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.ActiveTasks.Set(2)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "clipforge_active_tasks 2") {
		t.Fatalf("metrics output missing gauge:\n%s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.StageFinished("analyze", "probe", time.Second, nil)
	m.TaskFinished("analyze", "completed", time.Second)
	m.Reclaimed(1, 1)
}
