// Package metrics exposes Prometheus counters for the ingestion pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exportsite"

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	accepted  prometheus.Counter
	rejected  prometheus.Counter
	dropped   prometheus.Counter
	persisted prometheus.Counter
	failed    prometheus.Counter

	geoLookups        *prometheus.CounterVec
	geoLookupDuration prometheus.Histogram
	queueDepth        prometheus.GaugeFunc
}

// New registers every collector on a fresh registry. depth, when non-nil,
// reports the ingestion backlog.
func New(depth func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	m := &Metrics{registry: reg}
	m.accepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pageviews",
		Name:      "accepted_total",
		Help:      "Tracking calls queued for persistence",
	})
	m.rejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pageviews",
		Name:      "rejected_total",
		Help:      "Tracking calls rejected as invalid",
	})
	m.dropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pageviews",
		Name:      "dropped_total",
		Help:      "Tracking calls dropped because the ingestion queue was full",
	})
	m.persisted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pageviews",
		Name:      "persisted_total",
		Help:      "Page views written to storage",
	})
	m.failed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pageviews",
		Name:      "failed_total",
		Help:      "Page views lost to storage errors",
	})
	m.geoLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "geo",
		Name:      "lookups_total",
		Help:      "Geo lookups by outcome",
	}, []string{"outcome"})
	m.geoLookupDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "geo",
		Name:      "lookup_duration_seconds",
		Help:      "Geo lookup latency",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
	})
	if depth != nil {
		m.queueDepth = auto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Page views waiting for a worker",
		}, func() float64 { return float64(depth()) })
	}
	return m
}

func (m *Metrics) PageViewAccepted() {
	if m != nil {
		m.accepted.Inc()
	}
}

func (m *Metrics) PageViewRejected() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *Metrics) PageViewDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) PageViewPersisted() {
	if m != nil {
		m.persisted.Inc()
	}
}

func (m *Metrics) PageViewFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

// GeoLookup counts one lookup by outcome and records its latency.
func (m *Metrics) GeoLookup(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.geoLookups.WithLabelValues(outcome).Inc()
	m.geoLookupDuration.Observe(elapsed.Seconds())
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
