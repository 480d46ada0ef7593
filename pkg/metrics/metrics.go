// Package metrics defines the Prometheus metric collectors used by the echo
// module and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the module.
type Metrics struct {
	RPCRequestsTotal        *prometheus.CounterVec
	RPCRequestDuration      *prometheus.HistogramVec
	RPCRequestsInFlight     prometheus.Gauge
	DocumentsProcessedTotal *prometheus.CounterVec
	TagsAddedTotal          prometheus.Counter
	HealthChecksTotal       *prometheus.CounterVec
	CaptureBufferedTotal    prometheus.Counter
	CaptureDroppedTotal     prometheus.Counter
	CapturePublishedTotal   *prometheus.CounterVec
	CaptureStoredTotal      *prometheus.CounterVec
	RegistryAnnouncesTotal  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Total number of RPC requests by method and status.",
			},
			[]string{"method", "status"},
		),
		RPCRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_request_duration_seconds",
				Help:    "RPC request latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method"},
		),
		RPCRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpc_requests_in_flight",
				Help: "Number of RPC requests currently being processed.",
			},
		),
		DocumentsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_processed_total",
				Help: "Total documents processed by mode (process, test_process) and presence of a document.",
			},
			[]string{"mode", "has_document"},
		),
		TagsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tags_added_total",
				Help: "Total metadata tags written to processed documents.",
			},
		),
		HealthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "health_checks_total",
				Help: "Total registration health checks by result (passed, failed).",
			},
			[]string{"result"},
		),
		CaptureBufferedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "capture_buffered_total",
				Help: "Total processed documents accepted into the capture buffer.",
			},
		),
		CaptureDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "capture_dropped_total",
				Help: "Total processed documents dropped because the capture buffer was full.",
			},
		),
		CapturePublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_published_total",
				Help: "Total capture events published to Kafka by status.",
			},
			[]string{"status"},
		),
		CaptureStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_stored_total",
				Help: "Total capture events written to the capture store by status.",
			},
			[]string{"status"},
		),
		RegistryAnnouncesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_announces_total",
				Help: "Total registry announcements by status.",
			},
			[]string{"status"},
		),
	}

	prometheus.MustRegister(
		m.RPCRequestsTotal,
		m.RPCRequestDuration,
		m.RPCRequestsInFlight,
		m.DocumentsProcessedTotal,
		m.TagsAddedTotal,
		m.HealthChecksTotal,
		m.CaptureBufferedTotal,
		m.CaptureDroppedTotal,
		m.CapturePublishedTotal,
		m.CaptureStoredTotal,
		m.RegistryAnnouncesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
