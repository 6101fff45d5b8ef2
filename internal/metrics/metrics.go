package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for feed fetches and status requests
type Metrics struct {
	FeedFetchSeconds *prometheus.HistogramVec
	FeedBytesTotal   *prometheus.CounterVec
	FeedErrorsTotal  *prometheus.CounterVec
	FeedEntities     *prometheus.GaugeVec
	StatusRequests   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		FeedFetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mta_feed_fetch_seconds",
				Help:    "Time to fetch and decode a GTFS-RT feed",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"feed"},
		),
		FeedBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mta_feed_bytes_total",
				Help: "Bytes downloaded per feed",
			},
			[]string{"feed"},
		),
		FeedErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mta_feed_errors_total",
				Help: "Failed feed fetches by reason",
			},
			[]string{"feed", "reason"},
		),
		FeedEntities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mta_feed_entities",
				Help: "Entities in the most recently decoded feed message",
			},
			[]string{"feed"},
		),
		StatusRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mta_status_requests_total",
				Help: "Train status computations by result",
			},
			[]string{"result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FeedFetchSeconds,
		m.FeedBytesTotal,
		m.FeedErrorsTotal,
		m.FeedEntities,
		m.StatusRequests,
	)

	return m
}

// Registry returns the registry backing m
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
