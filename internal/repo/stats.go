// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the admin dashboard and for conditional responses (ETag generation) in
// the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

// SlotCounts summarizes slot inventory in a window.
type SlotCounts struct {
	Free    int64 `json:"free"`
	Blocked int64 `json:"blocked"`
	Taken   int64 `json:"taken"`
	Held    int64 `json:"held"` // free or blocked slots under an active hold
}

// Total returns the number of slots across all statuses.
func (c SlotCounts) Total() int64 { return c.Free + c.Blocked + c.Taken }

// SlotStats counts slots starting in [from, to) by status, plus the number
// of them actively held at now.
func SlotStats(ctx context.Context, db *gorm.DB, from, to, now time.Time) (SlotCounts, error) {
	var rows []struct {
		Status domain.SlotStatus
		N      int64
	}
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Slot{}).
			Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC())
	}
	if err := base().Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return SlotCounts{}, err
	}

	var out SlotCounts
	for _, r := range rows {
		switch r.Status {
		case domain.SlotFree:
			out.Free = r.N
		case domain.SlotBlocked:
			out.Blocked = r.N
		case domain.SlotTaken:
			out.Taken = r.N
		}
	}
	if err := base().Where("status <> ? AND hold_until > ?", domain.SlotTaken, now.UTC()).Count(&out.Held).Error; err != nil {
		return SlotCounts{}, err
	}
	return out, nil
}

// BookingsStats returns aggregate metadata for bookings: the total number of
// rows and the maximum UpdatedAt timestamp among those rows.
//
// When there are no bookings, the returned count is 0 and maxUpdatedAt is nil.
func BookingsStats(ctx context.Context, db *gorm.DB, status domain.BookingStatus) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
