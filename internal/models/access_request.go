package models

import (
	"time"
)

// AccessStatus defines lifecycle states for access requests.
type AccessStatus string

const (
	// AccessStatusPending indicates the request is queued and waiting for a slot.
	AccessStatusPending AccessStatus = "pending"
	// AccessStatusActive indicates the user currently holds a slot.
	AccessStatusActive AccessStatus = "active"
	// AccessStatusExpired indicates the access window elapsed and the user was removed.
	AccessStatusExpired AccessStatus = "expired"
	// AccessStatusRemoved indicates an admin removed the user before expiry.
	AccessStatusRemoved AccessStatus = "removed"
	// AccessStatusFailed indicates automation gave up on the request; manual triage required.
	AccessStatusFailed AccessStatus = "failed"
)

// transitions is the single source of truth for legal status changes.
// Resubmission (terminal -> pending) is the only way back into the queue.
var transitions = map[AccessStatus][]AccessStatus{
	AccessStatusPending: {AccessStatusActive, AccessStatusFailed},
	AccessStatusActive:  {AccessStatusExpired, AccessStatusRemoved},
	AccessStatusExpired: {AccessStatusPending},
	AccessStatusRemoved: {AccessStatusPending},
	AccessStatusFailed:  {AccessStatusPending},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to AccessStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status allowed to move into to. Store-level
// transition guards derive their status predicates from this so the table
// stays the only encoding of the state machine.
func TransitionSources(to AccessStatus) []AccessStatus {
	var sources []AccessStatus
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// IsTerminal reports whether the status allows a fresh resubmission.
func (s AccessStatus) IsTerminal() bool {
	return s == AccessStatusExpired || s == AccessStatusRemoved || s == AccessStatusFailed
}

// Message returns the user-facing explanation for a terminal status.
func (s AccessStatus) Message() string {
	switch s {
	case AccessStatusExpired:
		return "Your access has expired. You can request access again."
	case AccessStatusRemoved:
		return "Your access was removed. You can request access again."
	case AccessStatusFailed:
		return "There was an issue processing your request. Please try again or contact support."
	}
	return "Unknown status"
}

// AccessRequest is one row per distinct email. Resubmission after a terminal
// state reuses the row, so queue order is derived from CreatedAt, not ID.
type AccessRequest struct {
	ID                     uint         `gorm:"primaryKey" json:"id"`
	Email                  string       `gorm:"size:320;not null;uniqueIndex" json:"email"`
	FullName               string       `gorm:"size:120;not null" json:"full_name"`
	Status                 AccessStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt              time.Time    `gorm:"index" json:"created_at"`
	ActivatedAt            *time.Time   `json:"activated_at,omitempty"`
	ExpiresAt              *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	RemovedAt              *time.Time   `json:"removed_at,omitempty"`
	SlotNumber             *int         `json:"slot_number,omitempty"`
	AutomationAttempts     int          `gorm:"not null;default:0" json:"automation_attempts"`
	LastAutomationError    string       `gorm:"type:text" json:"last_automation_error,omitempty"`
	ExpiryWarningSent      bool         `gorm:"not null;default:false" json:"expiry_warning_sent"`
	ExpiryNotificationSent bool         `gorm:"not null;default:false" json:"expiry_notification_sent"`
}

// TableName keeps the legacy table name.
func (AccessRequest) TableName() string { return "access_requests" }

// AdminView is the projection returned on admin surfaces. Optional fields are
// omitted rather than zero-valued so the dashboard does not render blanks.
type AdminView struct {
	ID                  uint         `json:"id"`
	Email               string       `json:"email"`
	FullName            string       `json:"full_name"`
	Status              AccessStatus `json:"status"`
	CreatedAt           time.Time    `json:"created_at"`
	ActivatedAt         *time.Time   `json:"activated_at,omitempty"`
	ExpiresAt           *time.Time   `json:"expires_at,omitempty"`
	RemovedAt           *time.Time   `json:"removed_at,omitempty"`
	DaysRemaining       *int         `json:"days_remaining,omitempty"`
	SlotNumber          *int         `json:"slot_number,omitempty"`
	QueuePosition       int          `json:"queue_position,omitempty"`
	AutomationAttempts  int          `json:"automation_attempts,omitempty"`
	LastAutomationError string       `json:"last_automation_error,omitempty"`
}

// ToAdminView projects a request for admin listings. daysRemaining uses
// ceiling division so a partial day counts as a full day, floored at zero.
func (r *AccessRequest) ToAdminView(now time.Time) AdminView {
	view := AdminView{
		ID:          r.ID,
		Email:       r.Email,
		FullName:    r.FullName,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ActivatedAt: r.ActivatedAt,
		ExpiresAt:   r.ExpiresAt,
		RemovedAt:   r.RemovedAt,
		SlotNumber:  r.SlotNumber,
	}
	if r.ExpiresAt != nil {
		days := DaysRemaining(*r.ExpiresAt, now)
		view.DaysRemaining = &days
	}
	if r.AutomationAttempts > 0 {
		view.AutomationAttempts = r.AutomationAttempts
		view.LastAutomationError = r.LastAutomationError
	}
	return view
}

// DaysRemaining returns the whole days until expiry, rounding partial days up
// and never going below zero.
func DaysRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return days
}
