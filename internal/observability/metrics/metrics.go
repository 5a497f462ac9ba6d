package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides the application metrics instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)

// Metrics exposes application-level instruments registered on the default
// prometheus registry, served by the /metrics endpoint.
type Metrics struct {
	PaymentOperations *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	RoutingDecisions  *prometheus.CounterVec
	OutboxEvents      *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		PaymentOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payway_payment_operations_total",
			Help: "Payment operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payway_provider_latency_seconds",
			Help:    "Provider call latency by provider and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		RoutingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payway_routing_decisions_total",
			Help: "Routing decisions by provider and reason.",
		}, []string{"provider", "reason"}),
		OutboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payway_outbox_events_total",
			Help: "Outbox events processed by result.",
		}, []string{"result"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payway_webhook_deliveries_total",
			Help: "Webhook delivery attempts by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.PaymentOperations,
		m.ProviderLatency,
		m.RoutingDecisions,
		m.OutboxEvents,
		m.WebhookDeliveries,
	)

	return m
}
