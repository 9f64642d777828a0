// Package metrics exposes pipeline and HTTP counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/listing-sync/internal/model"
)

const namespace = "listing_sync"

// Recorder owns the collectors of one registry.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	renderAttempts *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by terminal status and reason code.",
			},
			[]string{"status", "code"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of pipeline runs.",
				Buckets:   []float64{1, 5, 10, 15, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		renderAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "render_attempts_total",
				Help:      "Render attempts by outcome.",
			},
			[]string{"outcome"},
		),
		recordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciled_records_total",
				Help:      "Reconciled listing records by outcome.",
			},
			[]string{"outcome"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveRun records a finished pipeline run. A nil Recorder is a no-op.
func (r *Recorder) ObserveRun(res *model.PipelineResult) {
	if r == nil || res == nil {
		return
	}
	r.runsTotal.WithLabelValues(string(res.Status), res.Code).Inc()
	r.runDuration.WithLabelValues(string(res.Status)).Observe(float64(res.DurationMs) / 1000)
	for _, a := range res.Attempts {
		outcome := "success"
		if !a.Success {
			outcome = string(a.Reason)
		}
		r.renderAttempts.WithLabelValues(outcome).Inc()
	}
	r.recordsTotal.WithLabelValues(string(model.OutcomeInserted)).Add(float64(res.Summary.Inserted))
	r.recordsTotal.WithLabelValues(string(model.OutcomeUpdated)).Add(float64(res.Summary.Updated))
	r.recordsTotal.WithLabelValues(string(model.OutcomeFailed)).Add(float64(res.Summary.Failed))
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(method, path string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
