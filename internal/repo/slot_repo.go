// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Slot model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. Hold expiry is evaluated against the
// caller-supplied now, so every statement re-checks hold state at query time
// instead of trusting a previously loaded row.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

// slotInsertBatch keeps multi-row inserts below SQLite's bind variable limit.
const slotInsertBatch = 100

// notActivelyHeld matches slots without a live hold at the bound instant.
const notActivelyHeld = "(hold_until IS NULL OR hold_until <= ?)"

var releasableStatuses = []domain.SlotStatus{domain.SlotFree, domain.SlotBlocked}

// CreateSlots inserts slots, skipping any whose start_time already exists.
// It returns the number of rows actually inserted.
func CreateSlots(ctx context.Context, db *gorm.DB, slots []domain.Slot) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "start_time"}}, DoNothing: true}).
		CreateInBatches(&slots, slotInsertBatch)
	return res.RowsAffected, res.Error
}

// DeleteSlotsBefore removes every slot starting strictly before t, whatever its status.
func DeleteSlotsBefore(ctx context.Context, db *gorm.DB, t time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("start_time < ?", t.UTC()).Delete(&domain.Slot{})
	return res.RowsAffected, res.Error
}

// DeleteReleasableSlots removes free or blocked slots in [from, to) that are
// not actively held at now. A zero to means no upper bound.
func DeleteReleasableSlots(ctx context.Context, db *gorm.DB, from, to, now time.Time) (int64, error) {
	q := db.WithContext(ctx).
		Where("start_time >= ?", from.UTC()).
		Where("status IN ?", releasableStatuses).
		Where(notActivelyHeld, now.UTC())
	if !to.IsZero() {
		q = q.Where("start_time < ?", to.UTC())
	}
	res := q.Delete(&domain.Slot{})
	return res.RowsAffected, res.Error
}

// GetSlot fetches a slot by id, or ErrNotFound.
func GetSlot(ctx context.Context, db *gorm.DB, id string) (*domain.Slot, error) {
	var s domain.Slot
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSlotByStart fetches the slot starting exactly at t, or ErrNotFound.
func GetSlotByStart(ctx context.Context, db *gorm.DB, t time.Time) (*domain.Slot, error) {
	var s domain.Slot
	if err := db.WithContext(ctx).Where("start_time = ?", t.UTC()).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSlotsInRange returns slots starting in [from, to), ordered by start.
// When statuses is non-empty only those statuses are returned.
func ListSlotsInRange(ctx context.Context, db *gorm.DB, from, to time.Time, statuses ...domain.SlotStatus) ([]domain.Slot, error) {
	var out []domain.Slot
	q := db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC())
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("start_time ASC").Find(&out).Error
	return out, err
}

// ListSlotsByIDs returns the slots with the given ids, ordered by start.
func ListSlotsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Slot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Slot
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("start_time ASC").Find(&out).Error
	return out, err
}

// ClaimHold sets (key, until) on every listed slot that is free and either
// unheld, expired at now, or already held by key. It returns the number of
// rows updated; callers compare it with len(ids) to detect a lost race.
func ClaimHold(ctx context.Context, db *gorm.DB, ids []string, key string, until, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Slot{}).
		Where("id IN ?", ids).
		Where("status = ?", domain.SlotFree).
		Where("(hold_until IS NULL OR hold_until <= ? OR hold_key = ?)", now.UTC(), key).
		Updates(map[string]any{"hold_key": key, "hold_until": until.UTC()})
	return res.RowsAffected, res.Error
}

// ReleaseHoldByKey clears every hold carrying key that is still active at now.
func ReleaseHoldByKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Slot{}).
		Where("hold_key = ? AND hold_until > ?", key, now.UTC()).
		Updates(map[string]any{"hold_key": nil, "hold_until": nil})
	return res.RowsAffected, res.Error
}

// ReleaseStaleHolds clears hold fields on the listed slots only where the
// hold is already expired or absent. Active holds are left untouched.
func ReleaseStaleHolds(ctx context.Context, db *gorm.DB, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Slot{}).
		Where("id IN ?", ids).
		Where("(hold_key IS NOT NULL OR hold_until IS NOT NULL)").
		Where(notActivelyHeld, now.UTC()).
		Updates(map[string]any{"hold_key": nil, "hold_until": nil})
	return res.RowsAffected, res.Error
}

// MarkTaken moves the listed free or blocked slots to taken and clears their
// holds. Slots already taken are not touched and not counted.
func MarkTaken(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Slot{}).
		Where("id IN ?", ids).
		Where("status IN ?", releasableStatuses).
		Updates(map[string]any{"status": domain.SlotTaken, "hold_key": nil, "hold_until": nil})
	return res.RowsAffected, res.Error
}

// ClearHolds unconditionally clears hold fields on the listed slots.
func ClearHolds(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.Slot{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"hold_key": nil, "hold_until": nil}).Error
}

// SetStatusInRange moves slots in [from, to) from one status to another,
// skipping slots actively held at now. It returns the number of rows changed.
func SetStatusInRange(ctx context.Context, db *gorm.DB, from, to time.Time, fromStatus, toStatus domain.SlotStatus, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Slot{}).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Where("status = ?", fromStatus).
		Where(notActivelyHeld, now.UTC()).
		Update("status", toStatus)
	return res.RowsAffected, res.Error
}

// FreeTaken returns the listed taken slots to free.
func FreeTaken(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Slot{}).
		Where("id IN ? AND status = ?", ids, domain.SlotTaken).
		Update("status", domain.SlotFree)
	return res.RowsAffected, res.Error
}
