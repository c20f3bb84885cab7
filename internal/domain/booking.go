package domain

import (
	"strings"
	"time"
)

// BookingStatus is the payment state of a booking.
type BookingStatus string

const (
	BookingUnpaid BookingStatus = "unpaid"
	BookingPaid   BookingStatus = "paid"
)

// Booking is the durable record of a reservation, keyed by the external
// payment reference. It is created unpaid at checkout start or upserted as
// paid by the finalizer, and moves to paid exactly once.
//
// SlotID is the primary (first) slot of the block; BlockCSV lists every slot
// id of the block in order. ScheduledStart is read back from the primary
// slot at finalize time and is nil when that slot no longer exists.
// SlotConflict marks a paid booking whose slots were already taken when the
// payment was finalized and needs manual reconciliation.
type Booking struct {
	ID               string        `json:"id"                   gorm:"type:varchar(36);primaryKey"`
	PaymentRef       string        `json:"payment_ref"          gorm:"type:varchar(255);not null;uniqueIndex:ux_bookings_payment_ref"`
	Provider         string        `json:"provider"             gorm:"type:varchar(32);not null;default:''"`
	Status           BookingStatus `json:"status"               gorm:"type:varchar(16);not null;default:'unpaid';index;check:status IN ('unpaid','paid')"`
	SlotID           string        `json:"slot_id"              gorm:"type:varchar(36);index"`
	BlockCSV         string        `json:"block_csv"            gorm:"type:text"`
	ScheduledStart   *time.Time    `json:"scheduled_start"      gorm:"index"`
	ScheduledMinutes int           `json:"scheduled_minutes"    gorm:"not null;default:0"`
	SessionType      string        `json:"session_type"         gorm:"type:varchar(64)"`
	Discord          string        `json:"discord,omitempty"    gorm:"type:varchar(64)"`
	Followups        int           `json:"followups"            gorm:"not null;default:0"`
	LiveBlocks       int           `json:"live_blocks"          gorm:"not null;default:0"`
	Notes            string        `json:"notes,omitempty"      gorm:"type:text"`
	Email            string        `json:"-"                    gorm:"type:varchar(255)"`
	AmountCents      int64         `json:"amount_cents"         gorm:"not null;default:0"`
	Currency         string        `json:"currency"             gorm:"type:varchar(8)"`
	WaiverAccepted   bool          `json:"waiver_accepted"      gorm:"not null;default:false"`
	WaiverAcceptedAt *time.Time    `json:"waiver_accepted_at,omitempty"`
	WaiverVersion    string        `json:"waiver_version,omitempty" gorm:"type:varchar(32)"`
	SlotConflict     bool          `json:"slot_conflict"        gorm:"not null;default:false"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string { return "bookings" }

// SlotIDs returns the block's slot ids, falling back to the primary slot.
func (b Booking) SlotIDs() []string {
	if ids := SplitSlotIDs(b.BlockCSV); len(ids) > 0 {
		return ids
	}
	if b.SlotID != "" {
		return []string{b.SlotID}
	}
	return nil
}

// JoinSlotIDs renders ids in the BlockCSV column format.
func JoinSlotIDs(ids []string) string { return strings.Join(ids, ",") }

// SplitSlotIDs parses a BlockCSV value, dropping blanks.
func SplitSlotIDs(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
