// Package metrics defines the Prometheus metric collectors for the assistant
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DatasetBuildsTotal   *prometheus.CounterVec
	DatasetBuildDuration prometheus.Histogram
	SnapshotDocs         prometheus.Gauge
	SnapshotBytes        prometheus.Gauge
	RateLimitDenied      *prometheus.CounterVec
	PreviewSearchesTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DatasetBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_builds_total",
				Help: "Lifecycle transitions by action (rebuilt, rotated, failed).",
			},
			[]string{"action"},
		),
		DatasetBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dataset_build_duration_seconds",
				Help:    "Duration of dataset rebuild transitions in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		SnapshotDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_documents",
				Help: "Number of documents in the current snapshot.",
			},
		),
		SnapshotBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_bytes",
				Help: "Size in bytes of the current snapshot file.",
			},
		),
		RateLimitDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_denied_total",
				Help: "Dataset requests denied by the rate limiter, by window.",
			},
			[]string{"window"},
		),
		PreviewSearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_searches_total",
				Help: "Admin preview searches by result type (hit, zero_result).",
			},
			[]string{"result_type"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DatasetBuildsTotal,
		m.DatasetBuildDuration,
		m.SnapshotDocs,
		m.SnapshotBytes,
		m.RateLimitDenied,
		m.PreviewSearchesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
