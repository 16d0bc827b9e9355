// Package metrics exposes ingest and query counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridpower"

// Metrics holds the collectors of one process. Collectors are registered on
// the registry passed to New, never on the global default.
type Metrics struct {
	registry *prometheus.Registry

	rowsAccepted   prometheus.Counter
	rowsRejected   prometheus.Counter
	chunks         prometheus.Counter
	chunkFailures  prometheus.Counter
	sessions       *prometheus.CounterVec
	storedReadings *prometheus.GaugeVec
	queryDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		rowsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_accepted_total",
			Help:      "Rows accepted by validation and stored.",
		}),
		rowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Rows rejected by validation.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Ingest chunks processed.",
		}),
		chunkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_failures_total",
			Help:      "Ingest chunks whose batch write failed.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Ingest sessions closed, by source and outcome.",
		}, []string{"source", "outcome"}),
		storedReadings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_readings",
			Help:      "Readings held in the store, by channel.",
		}, []string{"channel"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of query operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.rowsAccepted,
		m.rowsRejected,
		m.chunks,
		m.chunkFailures,
		m.sessions,
		m.storedReadings,
		m.queryDuration,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RowsAccepted counts n stored rows.
func (m *Metrics) RowsAccepted(n int) {
	m.rowsAccepted.Add(float64(n))
}

// RowRejected counts one rejected row.
func (m *Metrics) RowRejected() {
	m.rowsRejected.Inc()
}

// Chunk counts one processed chunk.
func (m *Metrics) Chunk(failed bool) {
	m.chunks.Inc()
	if failed {
		m.chunkFailures.Inc()
	}
}

// Session counts one closed session.
func (m *Metrics) Session(source string, failed bool) {
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	m.sessions.WithLabelValues(source, outcome).Inc()
}

// SetStored sets the stored reading gauge of channel.
func (m *Metrics) SetStored(channel string, n int) {
	m.storedReadings.WithLabelValues(channel).Set(float64(n))
}

// ObserveQuery records the duration of a query operation started at start.
func (m *Metrics) ObserveQuery(op string, start time.Time) {
	m.queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
