// Package metrics defines the Prometheus collectors of a data service.
//
// Every method is safe on a nil *Metrics, so components record
// unconditionally and callers opt in by passing a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leapdata"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the service collectors.
type Metrics struct {
	connectionOpens *prometheus.CounterVec   // physical opens by source and outcome
	openConnections prometheus.Gauge         // handles currently cached
	cacheRequests   *prometheus.CounterVec   // result cache lookups by source and result
	cacheEntries    prometheus.Gauge         // entries currently cached
	queryDuration   *prometheus.HistogramVec // executor latency by source
	invalidations   *prometheus.CounterVec   // explicit invalidations by source
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_opens_total",
			Help:      "Physical source connection attempts.",
		}, []string{"source", "outcome"}),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Source connections currently held by the cache.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_requests_total",
			Help:      "Result cache lookups.",
		}, []string{"source", "result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "result_cache_entries",
			Help:      "Results currently cached.",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"source", "outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "Explicit source invalidations.",
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.connectionOpens, m.openConnections, m.cacheRequests,
			m.cacheEntries, m.queryDuration, m.invalidations)
	}
	return m
}

// ConnectionOpened records a physical open attempt.
func (m *Metrics) ConnectionOpened(source string, err error) {
	if m == nil {
		return
	}
	m.connectionOpens.WithLabelValues(source, outcome(err)).Inc()
	if err == nil {
		m.openConnections.Inc()
	}
}

// ConnectionClosed records a released handle.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}

// CacheHit records a result served from cache.
func (m *Metrics) CacheHit(source string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(source, "hit").Inc()
}

// CacheMiss records a result that had to be computed.
func (m *Metrics) CacheMiss(source string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(source, "miss").Inc()
}

// CacheEntries adds delta to the cached entry gauge.
func (m *Metrics) CacheEntries(delta int) {
	if m == nil {
		return
	}
	m.cacheEntries.Add(float64(delta))
}

// ObserveQuery records the latency of one execution.
func (m *Metrics) ObserveQuery(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if source == "" {
		source = "federated"
	}
	m.queryDuration.WithLabelValues(source, outcome(err)).Observe(d.Seconds())
}

// Invalidated records an explicit invalidation.
func (m *Metrics) Invalidated(source string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(source).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
