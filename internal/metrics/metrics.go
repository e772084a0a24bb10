// Package metrics provides Prometheus instrumentation for the marketplace daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReconcileRuns counts reconciliation runs by outcome (ok, error, skipped).
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_reconcile_runs_total",
		Help: "Sales reconciliation runs",
	}, []string{"outcome"})

	// ReconcileDuration tracks how long a reconciliation run takes.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketd_reconcile_duration_seconds",
		Help:    "Sales reconciliation run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50},
	})

	// StatusTransitions counts persisted sale status changes.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_sale_transitions_total",
		Help: "Persisted sale activity status transitions",
	}, []string{"from", "to"})

	// LedgerLookups counts ledger transaction lookups by result
	// (found, not_found, error).
	LedgerLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_ledger_lookups_total",
		Help: "Ledger transaction lookups",
	}, []string{"result"})

	// AssetsIngested counts policy assets upserted by the ingester.
	AssetsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_assets_ingested_total",
		Help: "Policy assets upserted from the ledger",
	}, []string{"policy_id"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketd_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketd_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketd_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController, which the
// websocket upgrade needs to hijack the connection.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
