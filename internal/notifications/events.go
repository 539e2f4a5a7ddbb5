// Package notifications decouples lifecycle notifications from the core
// engine: the engine emits typed events, a dispatcher delivers them
// best-effort. A full channel or a dead email provider never affects a
// state transition.
package notifications

import "time"

// EventType identifies a lifecycle notification.
type EventType string

const (
	// EventAccessGranted is emitted when a user is activated.
	EventAccessGranted EventType = "access_granted"
	// EventExpiryWarning is emitted when access expires within the warning window.
	EventExpiryWarning EventType = "expiry_warning"
	// EventAccessExpired is emitted when access is swept after its window elapsed.
	EventAccessExpired EventType = "access_expired"
	// EventEscalation is emitted when automation gave up on a request.
	EventEscalation EventType = "escalation_required"
	// EventJobReport is emitted at the end of an orchestration run.
	EventJobReport EventType = "job_report"
)

// Event is one notification to deliver. User fields are empty for job-level
// events.
type Event struct {
	Type      EventType `json:"type"`
	RequestID uint      `json:"request_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
