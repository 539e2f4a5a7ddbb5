package models

import "time"

// AuditAction tags the transition or event an audit entry records.
type AuditAction string

const (
	AuditRequestSubmitted      AuditAction = "request_submitted"
	AuditRequestResubmitted    AuditAction = "request_resubmitted"
	AuditUserActivated         AuditAction = "user_activated"
	AuditUserExpired           AuditAction = "user_expired"
	AuditUserRemoved           AuditAction = "user_removed"
	AuditAutomationFailed      AuditAction = "automation_failed"
	AuditAutomationMaxFailures AuditAction = "automation_max_failures"
	AuditManualIntervention    AuditAction = "manual_intervention"
	AuditJobError              AuditAction = "job_error"
)

// Audit actors.
const (
	PerformedBySystem = "system"
	PerformedByAdmin  = "admin"
)

// AuditLogEntry is an append-only record of a state transition or job event.
// Rows are never updated or deleted. RequestID is nil for job-level errors.
type AuditLogEntry struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Timestamp    time.Time   `gorm:"autoCreateTime;index" json:"timestamp"`
	Action       AuditAction `gorm:"type:varchar(40);not null;index" json:"action"`
	RequestID    *uint       `json:"request_id,omitempty"`
	Details      string      `gorm:"type:text" json:"details,omitempty"`
	PerformedBy  string      `gorm:"type:varchar(20);not null;default:'system'" json:"performed_by"`
	Success      bool        `gorm:"not null;default:true" json:"success"`
	ErrorMessage string      `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName keeps the legacy table name.
func (AuditLogEntry) TableName() string { return "audit_log" }
