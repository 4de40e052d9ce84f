/*
Package metrics exposes Prometheus metrics for the ledger server.

METRICS:
  ledger_http_requests_total{method,path,status}
  ledger_http_request_duration_seconds{method,path}
  ledger_http_requests_in_flight
  ledger_write_attempts_total{table,field,outcome}   outcome: verified | mismatch
  ledger_write_results_total{table,field,outcome}    outcome: committed | retried | failed
  ledger_write_attempts_per_request{table,field}

Metrics implements generic.WriteObserver so the Concurrency-Safe Writer
reports every attempt without importing Prometheus itself.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

const namespace = "ledger"

// Metrics holds all server metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	WriteAttempts      *prometheus.CounterVec
	WriteResults       *prometheus.CounterVec
	AttemptsPerRequest *prometheus.HistogramVec
}

// New creates and registers every metric.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	m.WriteAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_attempts_total",
			Help:      "Live value write attempts by verification outcome",
		},
		[]string{"table", "field", "outcome"},
	)
	m.WriteResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_results_total",
			Help:      "Finished live value writes by outcome",
		},
		[]string{"table", "field", "outcome"},
	)
	m.AttemptsPerRequest = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_attempts_per_request",
			Help:      "Attempts needed per live value write",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		},
		[]string{"table", "field"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.WriteAttempts,
		m.WriteResults,
		m.AttemptsPerRequest,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// =============================================================================
// WRITER OBSERVER
// =============================================================================

var _ generic.WriteObserver = (*Metrics)(nil)

func (m *Metrics) ObserveAttempt(table, field string, verified bool) {
	outcome := "mismatch"
	if verified {
		outcome = "verified"
	}
	m.WriteAttempts.WithLabelValues(table, field, outcome).Inc()
}

func (m *Metrics) ObserveResult(table, field string, attempts int, err error) {
	outcome := "committed"
	switch {
	case err != nil:
		outcome = "failed"
	case attempts > 1:
		outcome = "retried"
	}
	m.WriteResults.WithLabelValues(table, field, outcome).Inc()
	if attempts > 0 {
		m.AttemptsPerRequest.WithLabelValues(table, field).Observe(float64(attempts))
	}
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
