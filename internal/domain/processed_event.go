package domain

import "time"

// ProcessedEvent is the idempotency ledger for payment confirmations. The
// primary key is the external payment reference; a failed insert because of
// a uniqueness violation means the payment was already finalized.
type ProcessedEvent struct {
	ID        string    `gorm:"type:varchar(255);primaryKey"`
	Provider  string    `gorm:"type:varchar(32);not null;default:''"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (ProcessedEvent) TableName() string { return "processed_events" }
