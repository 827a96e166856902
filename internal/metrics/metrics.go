// Package metrics exposes lease lifecycle counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names.
const (
	MetricLeaseTransitionsTotal  = "leasehub_lease_transitions_total"
	MetricWebhooksTotal          = "leasehub_webhooks_total"
	MetricGatewayCallsTotal      = "leasehub_gateway_calls_total"
	MetricGatewayDurationSeconds = "leasehub_gateway_call_duration_seconds"
	MetricReconcileResultsTotal  = "leasehub_reconcile_results_total"
	MetricNotificationsTotal     = "leasehub_notifications_total"
)

// Webhook outcomes
const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

// Metrics holds the collectors of one process. It is safe for concurrent use;
// recording on a nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	leaseTransitions *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	gatewayCalls     *prometheus.CounterVec
	gatewayDuration  *prometheus.HistogramVec
	reconcileResults *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		leaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricLeaseTransitionsTotal,
			Help: "Lease status transitions by source and target status",
		}, []string{"from", "to"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricWebhooksTotal,
			Help: "Inbound provider callbacks by provider and outcome",
		}, []string{"provider", "outcome"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGatewayCallsTotal,
			Help: "Outbound provider calls by provider, operation and result",
		}, []string{"provider", "operation", "result"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricGatewayDurationSeconds,
			Help:    "Outbound provider call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		reconcileResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricReconcileResultsTotal,
			Help: "Reconciliation sweep outcomes per lease",
		}, []string{"kind", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNotificationsTotal,
			Help: "In-app notifications stored by type",
		}, []string{"type"}),
	}

	registry.MustRegister(
		m.leaseTransitions,
		m.webhooks,
		m.gatewayCalls,
		m.gatewayDuration,
		m.reconcileResults,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LeaseTransition(from, to string) {
	if m == nil {
		return
	}
	m.leaseTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Webhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, outcome).Inc()
}

// GatewayCall records one provider round trip started at start
func (m *Metrics) GatewayCall(provider, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayCalls.WithLabelValues(provider, operation, result).Inc()
	m.gatewayDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ReconcileResult(kind, result string) {
	if m == nil {
		return
	}
	m.reconcileResults.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) NotificationStored(notificationType string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType).Inc()
}
