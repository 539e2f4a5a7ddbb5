package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSlots is the gauge of currently occupied access slots.
	ActiveSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenroom_active_slots",
		Help: "Number of access requests currently in the active state",
	})

	// PendingRequests is the gauge of queued access requests.
	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenroom_pending_requests",
		Help: "Number of access requests waiting in the queue",
	})

	// StateTransitions counts lifecycle transitions by audit action.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_state_transitions_total",
		Help: "Total access request state transitions by action",
	}, []string{"action"})

	// AutomationFailures counts failed dashboard operations by phase.
	AutomationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_automation_failures_total",
		Help: "Total automation failures by operation",
	}, []string{"operation"})

	// JobDuration records orchestration job run duration.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "greenroom_job_duration_seconds",
		Help:    "Orchestration job run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// NotificationsDispatched counts dispatched notification events by type and outcome.
	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_notifications_dispatched_total",
		Help: "Total notification events dispatched by type and outcome",
	}, []string{"event", "outcome"})
)
