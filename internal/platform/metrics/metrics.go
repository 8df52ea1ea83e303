// Package metrics provides Prometheus collectors and HTTP middleware
// for monitoring dbpexec.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// StageBuckets covers compiler and program runs, which are bounded by
// timeouts of a few seconds plus the release grace interval.
var StageBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13}

// Pipeline outcome labels.
const (
	OutcomeCompileFailed  = "compile_failed"
	OutcomeCompileTimeout = "compile_timeout"
	OutcomeRan            = "ran"
	OutcomeExecTimeout    = "exec_timeout"
	OutcomeError          = "error"
)

var (
	// PipelineRunsTotal counts finished pipeline runs by terminal outcome.
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbpexec_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// StageDuration records how long the compile and execute stages took.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbpexec_stage_duration_seconds",
			Help:    "Stage duration",
			Buckets: StageBuckets,
		},
		[]string{"stage"},
	)

	// LockWaiters tracks callers queued on the compile lock, including the holder.
	LockWaiters = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbpexec_lock_waiters",
			Help: "Callers waiting for or holding the compile lock",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, route, and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbpexec_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// SignatureRejectedTotal counts requests rejected by body signature checks.
	SignatureRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbpexec_signature_rejected_total",
			Help: "Requests rejected for an invalid signature",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PipelineRunsTotal,
		StageDuration,
		LockWaiters,
		HTTPRequestsTotal,
		SignatureRejectedTotal,
	)
}
