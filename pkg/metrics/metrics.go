package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for update and health runs
// ⭐ SSOT: prometheus collector 등록은 여기서만
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts   *prometheus.CounterVec // result=ok|retry|failed
	SessionLogins   prometheus.Counter
	InstrumentsDone *prometheus.CounterVec // result=success|failed|empty
	RowsAppended    prometheus.Counter
	UpdateDuration  prometheus.Histogram
	HealthFindings  *prometheus.CounterVec // category
	HealthDuration  prometheus.Histogram
}

// New registers every collector on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "fetch_attempts_total",
			Help:      "Provider fetch attempts by outcome.",
		}, []string{"result"}),
		SessionLogins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "session_logins_total",
			Help:      "Provider session establishments.",
		}),
		InstrumentsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "instruments_total",
			Help:      "Instruments processed by the update pipeline.",
		}, []string{"result"}),
		RowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "rows_appended_total",
			Help:      "Normalized rows appended to the archive.",
		}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ingest",
			Name:      "update_duration_seconds",
			Help:      "Wall time of full update runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		HealthFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "health_findings_total",
			Help:      "Health check findings by category.",
		}, []string{"category"}),
		HealthDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ingest",
			Name:      "health_duration_seconds",
			Help:      "Wall time of archive health scans.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}

	reg.MustRegister(
		m.FetchAttempts,
		m.SessionLogins,
		m.InstrumentsDone,
		m.RowsAppended,
		m.UpdateDuration,
		m.HealthFindings,
		m.HealthDuration,
	)

	return m
}

// Registry exposes the registry (tests gather from it)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
