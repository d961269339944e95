package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	EmergenciesCreatedTotal *prometheus.CounterVec
	StatusTransitionsTotal  *prometheus.CounterVec
	AssignmentsTotal        *prometheus.CounterVec
	ChatMessagesTotal       prometheus.Counter
	SaveConflictsTotal      prometheus.Counter

	EventsPublishedTotal *prometheus.CounterVec
	EventsDroppedTotal   prometheus.Counter
	SubscribersGauge     prometheus.Gauge

	NotificationAttemptsTotal  *prometheus.CounterVec
	NotificationRetriesTotal   prometheus.Counter
	NotificationExhaustedTotal prometheus.Counter

	AuditEntriesTotal  prometheus.Counter
	AuditBufferDropped prometheus.Counter
}

func NewCollector(serviceName string) *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		EmergenciesCreatedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "response",
			Name:      "emergencies_created_total",
			Help:      "Total emergencies created by severity.",
		}, []string{"severity"}),

		StatusTransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "response",
			Name:      "status_transitions_total",
			Help:      "Total emergency status transitions by target status.",
		}, []string{"status"}),

		AssignmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "response",
			Name:      "assignments_total",
			Help:      "Total responder assignments by responder kind.",
		}, []string{"kind"}),

		ChatMessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "response",
			Name:      "chat_messages_total",
			Help:      "Total chat messages posted on emergencies.",
		}),

		SaveConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "store",
			Name:      "save_conflicts_total",
			Help:      "Optimistic concurrency conflicts detected on save. Retried internally.",
		}),

		EventsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total events published to the bus by event type.",
		}, []string{"type"}),

		EventsDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}),

		SubscribersGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "bus",
			Name:      "subscribers",
			Help:      "Current number of live bus subscriptions.",
		}),

		NotificationAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notify",
			Name:      "attempts_total",
			Help:      "External notification attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),

		NotificationRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notify",
			Name:      "retries_total",
			Help:      "External notification retries scheduled.",
		}),

		NotificationExhaustedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notify",
			Name:      "exhausted_total",
			Help:      "Notification attempts that exhausted their retry budget. Alert if growing.",
		}),

		AuditEntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
