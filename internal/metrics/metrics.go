// Package metrics exposes Prometheus counters for recorded AI calls.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the AI call collectors. A nil *Metrics discards observations.
type Metrics struct {
	calls   *prometheus.CounterVec
	cost    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strepsil_ai_calls_total",
				Help: "Total number of recorded AI calls",
			},
			[]string{"provider", "model", "status"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strepsil_ai_call_cost_total",
				Help: "Accumulated cost of recorded AI calls",
			},
			[]string{"provider", "model"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strepsil_ai_call_latency_seconds",
				Help:    "Provider round trip latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.calls, m.cost, m.latency} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("metrics: register: %w", err)
			}
		}
	}
	return m, nil
}

// NewRegistry returns a registry with the Go runtime and process collectors installed.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ObserveCall records one persisted call.
func (m *Metrics) ObserveCall(provider, model, status string, cost float64, latency time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(provider, model, status).Inc()
	if cost > 0 {
		m.cost.WithLabelValues(provider, model).Add(cost)
	}
	m.latency.WithLabelValues(provider).Observe(latency.Seconds())
}

// Handler serves the text exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
