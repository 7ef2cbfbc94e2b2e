// Package observability exposes the Prometheus metrics of the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelineRuns counts finished pipeline tasks by kind and outcome.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axial",
		Name:      "pipeline_runs_total",
		Help:      "Finished pipeline runs by kind and outcome.",
	}, []string{"kind", "outcome"})

	// PipelineErrors counts failed runs by stable error code.
	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axial",
		Name:      "pipeline_errors_total",
		Help:      "Failed pipeline runs by error code.",
	}, []string{"code"})

	// PipelineDuration observes end-to-end run time per task kind.
	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "axial",
		Name:      "pipeline_duration_seconds",
		Help:      "End-to-end pipeline run duration.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	// StageDuration observes time spent inside each pipeline step.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "axial",
		Name:      "stage_duration_seconds",
		Help:      "Per-step pipeline duration.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"step"})

	// RateLimited counts rejected requests per quota.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axial",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"quota"})
)

// ObserveRun records one finished pipeline run.
func ObserveRun(kind, outcome string, started time.Time) {
	PipelineRuns.WithLabelValues(kind, outcome).Inc()
	PipelineDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
