// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concierge"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing,
// so components can be constructed without a registry in tests.
type Metrics struct {
	registry          *prometheus.Registry
	webhookRequests   *prometheus.CounterVec
	redeliveries      prometheus.Counter
	stateTransitions  *prometheus.CounterVec
	intents           *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	completions       *prometheus.CounterVec
	outboundSends     *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by provider and HTTP status.",
		}, []string{"provider", "status"}),
		redeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_redeliveries_total",
			Help:      "Inbound deliveries whose provider message id was already recorded.",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Conversation state transitions.",
		}, []string{"from", "to"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Classified intents of confirmed-guest messages.",
		}, []string{"intent"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_seconds",
			Help:      "Latency of recommendation completions.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"backend"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Recommendation completions by backend and outcome.",
		}, []string{"backend", "outcome"}),
		outboundSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sends_total",
			Help:      "Outbound SMS segments by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.webhookRequests,
		m.redeliveries,
		m.stateTransitions,
		m.intents,
		m.completionLatency,
		m.completions,
		m.outboundSends,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) WebhookRequest(provider string, status int) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(provider, http.StatusText(status)).Inc()
}

func (m *Metrics) Redelivery() {
	if m == nil {
		return
	}
	m.redeliveries.Inc()
}

func (m *Metrics) StateTransition(from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Intent(intent string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent).Inc()
}

// Completion records one completion call. outcome is "ok" or "error".
func (m *Metrics) Completion(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
	m.completions.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) OutboundSend(provider, outcome string) {
	if m == nil {
		return
	}
	m.outboundSends.WithLabelValues(provider, outcome).Inc()
}
