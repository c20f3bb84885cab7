// Package domain defines the persistence models for the coaching scheduler:
// bookable slots, weekly availability rules, date exceptions, bookings, and
// the processed-payment ledger. These types are mapped with GORM and shared
// across the repository and service layers.
package domain

import "time"

// SlotStatus is the lifecycle state of a slot. Transitions only move forward
// from free/blocked to taken.
type SlotStatus string

const (
	SlotFree    SlotStatus = "free"
	SlotBlocked SlotStatus = "blocked"
	SlotTaken   SlotStatus = "taken"
)

// Slot is the atomic bookable unit on a fixed time grid.
//
// A hold is not a separate table: it is the (HoldKey, HoldUntil) pair spread
// across every slot of a reserved block. A hold whose HoldUntil is in the
// past is treated as absent even when the columns are still populated.
//
// Fields:
//   - ID: UUID primary key.
//   - StartTime: absolute UTC instant; unique across all slots.
//   - DurationMinutes: grid size at generation time.
//   - Status: free, blocked (admin-closed) or taken (paid).
//   - HoldKey / HoldUntil: advisory reservation owner and expiry.
type Slot struct {
	ID              string     `json:"id"                  gorm:"type:varchar(36);primaryKey"`
	StartTime       time.Time  `json:"start_time"          gorm:"not null;uniqueIndex:ux_slots_start_time"`
	DurationMinutes int        `json:"duration_minutes"    gorm:"not null"`
	Status          SlotStatus `json:"status"              gorm:"type:varchar(16);not null;default:'free';index:idx_slots_status;check:status IN ('free','blocked','taken')"`
	HoldKey         *string    `json:"hold_key,omitempty"  gorm:"type:varchar(64);index:idx_slots_hold_key"`
	HoldUntil       *time.Time `json:"hold_until,omitempty" gorm:"index:idx_slots_hold_until"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Slot.
func (Slot) TableName() string { return "slots" }

// EndTime is the exclusive end of the slot.
func (s Slot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// ActiveHold reports whether the slot carries a hold that has not expired at now.
func (s Slot) ActiveHold(now time.Time) bool {
	return s.HoldKey != nil && *s.HoldKey != "" && s.HoldUntil != nil && s.HoldUntil.After(now)
}

// HeldByOther reports whether an active hold exists that does not belong to key.
func (s Slot) HeldByOther(key string, now time.Time) bool {
	return s.ActiveHold(now) && *s.HoldKey != key
}

// Bookable reports whether the public path may reserve the slot for key.
func (s Slot) Bookable(key string, now time.Time) bool {
	return s.Status == SlotFree && !s.HeldByOther(key, now)
}
