// Package metrics exposes the Prometheus collectors of the orchestration layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orchestrator"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	spend           *prometheus.CounterVec
	admissions      *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	routeFallbacks  *prometheus.CounterVec
	publishes       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_attempts_total",
			Help:      "Provider candidate attempts by outcome.",
		}, []string{"provider", "model", "outcome"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatches by task type and result.",
		}, []string{"task", "result"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "End-to-end dispatch latency including fallbacks.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"task"}),
		spend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_usd_total",
			Help:      "Recorded provider spend in USD.",
		}, []string{"provider", "model"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_rejections_total",
			Help:      "Candidates rejected by cost admission control.",
		}, []string{"provider"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit state per dependency (0 closed, 1 half-open, 2 open).",
		}, []string{"dependency"}),
		routeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_fallbacks_total",
			Help:      "Times the static configuration table was used instead of the config store.",
		}, []string{"resource"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_actions_total",
			Help:      "Publish pipeline decisions.",
		}, []string{"type", "action"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.attempts,
		m.dispatches,
		m.dispatchLatency,
		m.spend,
		m.admissions,
		m.breakerState,
		m.routeFallbacks,
		m.publishes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Attempt(provider, model, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, model, outcome).Inc()
}

func (m *Metrics) Dispatch(task, result string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(task, result).Inc()
	m.dispatchLatency.WithLabelValues(task).Observe(seconds)
}

func (m *Metrics) Spend(provider, model string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.spend.WithLabelValues(provider, model).Add(usd)
}

func (m *Metrics) BudgetRejected(provider string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(provider).Inc()
}

// BreakerState records the numeric state of a dependency breaker.
func (m *Metrics) BreakerState(dependency string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(dependency).Set(float64(state))
}

func (m *Metrics) ConfigFallback(resource string) {
	if m == nil {
		return
	}
	m.routeFallbacks.WithLabelValues(resource).Inc()
}

func (m *Metrics) Publish(contentType, action string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(contentType, action).Inc()
}
