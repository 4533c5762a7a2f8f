// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	imports        *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	previews       prometheus.Gauge
	patternApplied prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moneydiary",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moneydiary",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moneydiary",
			Name:      "file_imports_total",
			Help:      "Finished file imports by terminal status.",
		}, []string{"status"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moneydiary",
			Name:      "import_rows_total",
			Help:      "Rows processed by confirm, by outcome.",
		}, []string{"outcome"}),
		previews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moneydiary",
			Name:      "preview_sessions",
			Help:      "Preview sessions currently held.",
		}),
		patternApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moneydiary",
			Name:      "pattern_matches_total",
			Help:      "Pattern applications written to transactions.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.imports, m.importRows, m.previews, m.patternApplied,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ImportFinished(status string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(status).Inc()
}

func (m *Metrics) ImportRows(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.importRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) SetPreviewSessions(n int) {
	if m == nil {
		return
	}
	m.previews.Set(float64(n))
}

func (m *Metrics) PatternsApplied(n int) {
	if m == nil || n == 0 {
		return
	}
	m.patternApplied.Add(float64(n))
}
