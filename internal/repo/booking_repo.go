package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

// UpsertBooking inserts b, or on a payment_ref conflict updates only the
// listed columns of the existing row. The persisted row is returned; its ID
// is the original one when the row already existed.
func UpsertBooking(ctx context.Context, db *gorm.DB, b *domain.Booking, updateColumns []string) (*domain.Booking, error) {
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "payment_ref"}}}
	if len(updateColumns) == 0 {
		onConflict.DoNothing = true
	} else {
		cols := append(append([]string(nil), updateColumns...), "updated_at")
		onConflict.DoUpdates = clause.AssignmentColumns(cols)
	}
	if err := db.WithContext(ctx).Clauses(onConflict).Create(b).Error; err != nil {
		return nil, err
	}
	return GetBookingByPaymentRef(ctx, db, b.PaymentRef)
}

// GetBooking fetches a booking by id, or ErrNotFound.
func GetBooking(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingByPaymentRef fetches a booking by external payment reference, or ErrNotFound.
func GetBookingByPaymentRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).Where("payment_ref = ?", ref).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CountBookings returns the number of bookings, optionally filtered by status.
func CountBookings(ctx context.Context, db *gorm.DB, status domain.BookingStatus) (int64, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&n).Error
	return n, err
}

// ListBookingsPage returns bookings newest first, optionally filtered by status.
func ListBookingsPage(ctx context.Context, db *gorm.DB, status domain.BookingStatus, offset, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	q := db.WithContext(ctx).Model(&domain.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// UpdateBookingSchedule rewrites the slot linkage of a booking.
func UpdateBookingSchedule(ctx context.Context, db *gorm.DB, id, slotID, blockCSV string, start *time.Time, minutes int) error {
	res := db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"slot_id":           slotID,
			"block_csv":         blockCSV,
			"scheduled_start":   start,
			"scheduled_minutes": minutes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SlotsOwnedByOthers returns the subset of ids referenced by a paid booking
// other than excludeID, either as its primary slot or within its block.
func SlotsOwnedByOthers(ctx context.Context, db *gorm.DB, excludeID string, ids []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if len(ids) == 0 {
		return out, nil
	}
	group := db.Session(&gorm.Session{NewDB: true}).Where("slot_id IN ?", ids)
	for _, id := range ids {
		group = group.Or("block_csv LIKE ?", "%"+id+"%")
	}
	var rows []domain.Booking
	err := db.WithContext(ctx).Model(&domain.Booking{}).
		Select("id", "slot_id", "block_csv").
		Where("status = ? AND id <> ?", domain.BookingPaid, excludeID).
		Where(group).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	// LIKE can match substrings of longer ids; confirm against the parsed block.
	for _, b := range rows {
		for _, id := range b.SlotIDs() {
			if _, ok := want[id]; ok {
				out[id] = struct{}{}
			}
		}
	}
	return out, nil
}
