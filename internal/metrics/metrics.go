// Package metrics exposes Prometheus counters for run execution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RunsTotal  *prometheus.CounterVec
	RunLatency *prometheus.HistogramVec
	CostUSD    *prometheus.CounterVec
	RateDenied prometheus.Counter
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ailabs_runs_total",
			Help: "Total run attempts by provider, model, and terminal status",
		}, []string{"provider", "model", "status"}),
		RunLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ailabs_run_latency_ms",
			Help:    "Provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"provider", "model"}),
		CostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ailabs_cost_usd_total",
			Help: "Accumulated estimated USD cost",
		}, []string{"provider", "model"}),
		RateDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ailabs_rate_limited_total",
			Help: "Run attempts denied by the per-user rate limiter",
		}),
	}
	reg.MustRegister(m.RunsTotal, m.RunLatency, m.CostUSD, m.RateDenied)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
