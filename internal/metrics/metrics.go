package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weather_dashboard"

// Metrics holds the dashboard's Prometheus collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	FetchDuration *prometheus.HistogramVec
	FetchTotal    *prometheus.CounterVec
	CyclesTotal   *prometheus.CounterVec
	StaleDropped  *prometheus.CounterVec
}

// New constructs and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_fetch_duration_seconds",
				Help:      "Latency of backend fetches per collection mode",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_fetches_total",
				Help:      "Backend fetches per collection mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_cycles_total",
				Help:      "Collection cycles started per trigger",
			},
			[]string{"trigger"},
		),
		StaleDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_responses_dropped_total",
				Help:      "Responses discarded because a newer cycle had started",
			},
			[]string{"mode"},
		),
	}

	reg.MustRegister(
		m.FetchDuration,
		m.FetchTotal,
		m.CyclesTotal,
		m.StaleDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveFetch(mode, outcome string, d time.Duration) {
	m.FetchDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.FetchTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) IncCycle(trigger string) {
	m.CyclesTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncStale(mode string) {
	m.StaleDropped.WithLabelValues(mode).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
