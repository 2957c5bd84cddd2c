// Package metrics holds the prometheus collectors of the worker pool.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clipforge/internal/services"
)

// Metrics groups the collectors registered for one worker process.
type Metrics struct {
	TasksTotal     *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	ActiveTasks    prometheus.Gauge
	QueueLength    prometheus.Gauge
	LeasesReclaim  *prometheus.CounterVec
	TranscribeRuns *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests and multiple managers never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_tasks_total",
			Help: "Tasks finished by the worker pool, by kind and terminal status",
		}, []string{"kind", "status"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipforge_task_duration_seconds",
			Help:    "Wall time from claim to terminal status",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipforge_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind", "stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_stage_failures_total",
			Help: "Failed pipeline stages by failure kind",
		}, []string{"stage", "failure_kind"}),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clipforge_active_tasks",
			Help: "Tasks currently executing in this worker",
		}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clipforge_queue_length",
			Help: "Queued tasks waiting for a worker, as last observed",
		}),
		LeasesReclaim: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_leases_reclaimed_total",
			Help: "Abandoned claims returned to the queue or failed",
		}, []string{"outcome"}),
		TranscribeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_transcriptions_total",
			Help: "Transcriptions by engine",
		}, []string{"engine", "fallback"}),
		gatherer: reg,
	}
}

// StageFinished records one stage run; it satisfies stage.Observer.
func (m *Metrics) StageFinished(kind, stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(kind, stage).Observe(elapsed.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage, services.FailureKind(err)).Inc()
	}
}

// TaskFinished records a terminal task.
func (m *Metrics) TaskFinished(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(kind, status).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Reclaimed records lease expiry outcomes.
func (m *Metrics) Reclaimed(requeued, failed int) {
	if m == nil {
		return
	}
	if requeued > 0 {
		m.LeasesReclaim.WithLabelValues("requeued").Add(float64(requeued))
	}
	if failed > 0 {
		m.LeasesReclaim.WithLabelValues("failed").Add(float64(failed))
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
