package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripmark"

// Metrics groups the collectors the service records into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CounterIncrements *prometheus.CounterVec
	Samples           *prometheus.CounterVec
	ActiveRecordings  prometheus.Gauge
	ViewportQueries   prometheus.Counter
	SnapshotLoads     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CounterIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_increments_total",
			Help:      "Itinerary counter increments by counter and result.",
		}, []string{"counter", "result"}),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_samples_total",
			Help:      "Recording sampler ticks by outcome.",
		}, []string{"outcome"}),
		ActiveRecordings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_recordings",
			Help:      "Recording sessions currently held in memory.",
		}),
		ViewportQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_queries_total",
			Help:      "Viewport queries served.",
		}),
		SnapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "itinerary_snapshot_loads_total",
			Help:      "Itinerary snapshot reloads by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.CounterIncrements,
		m.Samples,
		m.ActiveRecordings,
		m.ViewportQueries,
		m.SnapshotLoads,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncCounter(counter string, err error) {
	if m == nil {
		return
	}
	m.CounterIncrements.WithLabelValues(counter, result(err)).Inc()
}

func (m *Metrics) Sample(outcome string) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.ActiveRecordings.Inc()
}

func (m *Metrics) RecordingEnded() {
	if m == nil {
		return
	}
	m.ActiveRecordings.Dec()
}

func (m *Metrics) ViewportQuery() {
	if m == nil {
		return
	}
	m.ViewportQueries.Inc()
}

func (m *Metrics) SnapshotLoad(err error) {
	if m == nil {
		return
	}
	m.SnapshotLoads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
