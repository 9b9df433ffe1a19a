package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civictrack_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	FeedbackSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_feedback_submissions_total",
			Help: "Feedback submission attempts by outcome code.",
		},
		[]string{"code"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_complaint_transitions_total",
			Help: "Successful complaint status transitions.",
		},
		[]string{"from", "to"},
	)

	NotificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_notifications_created_total",
			Help: "Notifications stored, by type.",
		},
		[]string{"type"},
	)

	NotificationDeliveryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_notification_delivery_failures_total",
			Help: "Failed best-effort deliveries, by channel.",
		},
		[]string{"channel"},
	)

	SLANotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_sla_notifications_total",
			Help: "SLA notifications emitted by the sweep, by band.",
		},
		[]string{"band"},
	)

	SLASweepFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civictrack_sla_sweep_failures_total",
			Help: "Complaints the SLA sweep failed to process.",
		},
	)

	SLASweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civictrack_sla_sweep_duration_seconds",
			Help:    "Duration of SLA sweeps.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civictrack_audit_decisions_total",
			Help: "Authorization decisions recorded in the audit log.",
		},
		[]string{"action", "result"},
	)

	HubConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "civictrack_hub_connections",
			Help: "Open notification websocket connections.",
		},
	)
)

// MustRegister registers every collector with the default registry.
// Call it once per process.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		FeedbackSubmissionsTotal,
		TransitionsTotal,
		NotificationsCreatedTotal,
		NotificationDeliveryFailuresTotal,
		SLANotificationsTotal,
		SLASweepFailuresTotal,
		SLASweepDurationSeconds,
		AuditDecisionsTotal,
		HubConnections,
	)
}
