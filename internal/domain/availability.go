package domain

import (
	"time"

	"gorm.io/datatypes"
)

// AvailabilityRule is one version of the weekly opening window for a weekday.
// Versions are append-only; the one with the latest EffectiveFrom at or
// before the lookup instant applies.
//
// CloseMinute may equal 1440 (open until midnight) or be smaller than
// OpenMinute, in which case the window wraps into the following day.
// OpenMinute == CloseMinute means the weekday is closed.
type AvailabilityRule struct {
	ID            string    `json:"id"             gorm:"type:varchar(36);primaryKey"`
	Weekday       int       `json:"weekday"        gorm:"not null;index:idx_rules_weekday_effective,priority:1;check:weekday BETWEEN 0 AND 6"`
	OpenMinute    int       `json:"open_minute"    gorm:"not null"`
	CloseMinute   int       `json:"close_minute"   gorm:"not null"`
	EffectiveFrom time.Time `json:"effective_from" gorm:"not null;index:idx_rules_weekday_effective,priority:2"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for AvailabilityRule.
func (AvailabilityRule) TableName() string { return "availability_rules" }

// AvailabilityException overrides a single calendar day. A blocked exception
// closes the day; otherwise [OpenMinute ?? 0, CloseMinute ?? 1440] is removed
// from the rule-derived windows.
type AvailabilityException struct {
	ID          string         `json:"id"                     gorm:"type:varchar(36);primaryKey"`
	Date        datatypes.Date `json:"date"                   gorm:"not null;index:idx_exceptions_date"`
	Blocked     bool           `json:"blocked"                gorm:"not null;default:false"`
	OpenMinute  *int           `json:"open_minute,omitempty"`
	CloseMinute *int           `json:"close_minute,omitempty"`
	Reason      string         `json:"reason,omitempty"       gorm:"type:varchar(255)"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName returns the database table name for AvailabilityException.
func (AvailabilityException) TableName() string { return "availability_exceptions" }
