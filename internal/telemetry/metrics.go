package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "callcenter"

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// WebhookEventsTotal counts provider webhook deliveries by outcome.
var WebhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Webhook events received, by outcome.",
	},
	[]string{"outcome"},
)

// WebhookProcessingDuration tracks time spent ingesting a single inbound message.
var WebhookProcessingDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "processing_duration_seconds",
		Help:      "Time spent ingesting an inbound message.",
		Buckets:   prometheus.DefBuckets,
	},
)

// MessagesDeduplicatedTotal counts inbound messages dropped as duplicates.
var MessagesDeduplicatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "messages_deduplicated_total",
		Help:      "Inbound messages dropped because the provider message id was already stored.",
	},
)

// TicketsCreatedTotal counts opened tickets by origin.
var TicketsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tickets",
		Name:      "created_total",
		Help:      "Tickets created, by origin.",
	},
	[]string{"origin"},
)

// UrgencyEscalationsTotal counts urgency tier changes by resulting level.
var UrgencyEscalationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tickets",
		Name:      "urgency_escalations_total",
		Help:      "Urgency tier escalations, by resulting level.",
	},
	[]string{"level"},
)

// AITurnsTotal counts AI collection turns by outcome.
var AITurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "turns_total",
		Help:      "AI collection turns, by outcome.",
	},
	[]string{"outcome"},
)

// AITurnDuration tracks AI processor latency.
var AITurnDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "turn_duration_seconds",
		Help:      "Latency of AI turn processor calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	},
)

// DispatchAttemptsTotal counts tenant API dispatch attempts by outcome.
var DispatchAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "attempts_total",
		Help:      "Dispatch attempts to tenant APIs, by outcome.",
	},
	[]string{"outcome"},
)

// TasksProcessedTotal counts deferred task executions by kind and outcome.
var TasksProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "processed_total",
		Help:      "Deferred task executions, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// NotificationsTotal counts notifications by action, sink, and result.
var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "events_total",
		Help:      "Ticket notifications emitted, by action, sink and result.",
	},
	[]string{"action", "sink", "result"},
)

// WebsocketClients tracks connected notification websocket clients.
var WebsocketClients = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "websocket_clients",
		Help:      "Currently connected notification websocket clients.",
	},
)

// NewMetricsRegistry creates a Prometheus registry with default and custom collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		WebhookEventsTotal,
		WebhookProcessingDuration,
		MessagesDeduplicatedTotal,
		TicketsCreatedTotal,
		UrgencyEscalationsTotal,
		AITurnsTotal,
		AITurnDuration,
		DispatchAttemptsTotal,
		TasksProcessedTotal,
		NotificationsTotal,
		WebsocketClients,
	)
	return reg
}
