package models

import "time"

// Setting keys understood by the engine.
const (
	SettingMaxSlots           = "max_slots"
	SettingAccessDurationDays = "access_duration_days"
	SettingExpiryWarningDays  = "expiry_warning_days"
	SettingAutomationEnabled  = "automation_enabled"
)

// Setting is a key/value override for tunable engine parameters.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the legacy table name.
func (Setting) TableName() string { return "settings" }
