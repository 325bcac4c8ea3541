package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "uavlog"

// Metrics holds the server's Prometheus instrumentation. Each value owns a
// private registry so two servers in one process never collide.
type Metrics struct {
	registry *prometheus.Registry

	uploads        prometheus.Counter
	uploadFailures prometheus.Counter
	chats          prometheus.Counter
	uploadBytes    prometheus.Histogram
	ingestSeconds  prometheus.Histogram
}

// NewMetrics creates and registers the server's collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uploads_total",
			Help:      "Flight logs uploaded and ingested successfully.",
		}),
		uploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upload_failures_total",
			Help:      "Uploads rejected or failed during ingest.",
		}),
		chats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_requests_total",
			Help:      "Chat messages received.",
		}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upload_bytes",
			Help:      "Size of uploaded flight logs.",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10),
		}),
		ingestSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent decoding and analysing an upload.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.uploads, m.uploadFailures, m.chats, m.uploadBytes, m.ingestSeconds)
	return m
}

// TrackSessions registers an active_sessions gauge backed by count.
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_sessions",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
