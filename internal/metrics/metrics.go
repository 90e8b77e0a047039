// Package metrics exposes the Prometheus collectors the run API
// registers for its own HTTP surface and for the fold-processing counters
// the orchestrator reports through. The collector set and naming style are
// adapted from the inherited trading metrics registry; the label set is
// fold/run lifecycle instead of order/trade lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics holds the Prometheus collectors registered for one process.
type RunMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FoldsProcessedTotal prometheus.Counter
	FoldsRejectedTotal  prometheus.Counter
	SweepDuration       prometheus.Histogram
	ActiveRuns          prometheus.Gauge
}

// NewRunMetrics constructs and registers every collector against reg.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	m := &RunMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "awfes_http_requests_total",
			Help: "Total HTTP requests handled by the AWFES API, by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "awfes_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		FoldsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "awfes_folds_processed_total",
			Help: "Total fold outcomes recorded across all runs, whatever their status.",
		}),
		FoldsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "awfes_folds_rejected_total",
			Help: "Total folds marked FAILED by a ModelFactory infrastructure error.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "awfes_sweep_duration_seconds",
			Help:    "Wall-clock duration of one fold's epoch candidate sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "awfes_active_runs",
			Help: "Number of AWFES runs currently executing.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FoldsProcessedTotal,
		m.FoldsRejectedTotal,
		m.SweepDuration,
		m.ActiveRuns,
	)
	return m
}

// HTTPMiddleware records request counts and latency against m. The path
// label uses chi's matched route pattern rather than the raw request path,
// so a run-ID path parameter (e.g. "/api/v1/runs/{runID}") collapses to one
// label series instead of minting a fresh one per run.
func (m *RunMetrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &statusCapturingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := routePattern(r)
			statusStr := strconv.Itoa(wrapped.statusCode)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, statusStr).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// routePattern returns the chi route pattern matched for r, falling back to
// the raw path when no chi routing context is present (e.g. in handler unit
// tests that exercise the middleware directly).
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// statusCapturingWriter wraps http.ResponseWriter to record the status code
// written so it can be attached to the request metrics after the handler
// returns.
type statusCapturingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
