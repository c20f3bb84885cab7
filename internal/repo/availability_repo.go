package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

// CreateRule appends a rule version. Existing versions are never updated.
func CreateRule(ctx context.Context, db *gorm.DB, r *domain.AvailabilityRule) error {
	return db.WithContext(ctx).Create(r).Error
}

// ListRules returns the full rule history, newest version first per weekday.
func ListRules(ctx context.Context, db *gorm.DB) ([]domain.AvailabilityRule, error) {
	var out []domain.AvailabilityRule
	err := db.WithContext(ctx).
		Order("weekday ASC").
		Order("effective_from DESC").
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// CurrentRules returns, per weekday, the version with the latest
// effective_from at or before at. Weekdays without a version are absent.
func CurrentRules(ctx context.Context, db *gorm.DB, at time.Time) (map[int]domain.AvailabilityRule, error) {
	var rows []domain.AvailabilityRule
	err := db.WithContext(ctx).
		Where("effective_from <= ?", at.UTC()).
		Order("weekday ASC").
		Order("effective_from DESC").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int]domain.AvailabilityRule, 7)
	for _, r := range rows {
		if _, seen := out[r.Weekday]; !seen {
			out[r.Weekday] = r
		}
	}
	return out, nil
}

// CreateException inserts a date exception.
func CreateException(ctx context.Context, db *gorm.DB, e *domain.AvailabilityException) error {
	return db.WithContext(ctx).Create(e).Error
}

// ListExceptions returns exceptions whose date lies in [from, to), ordered by date.
func ListExceptions(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.AvailabilityException, error) {
	var out []domain.AvailabilityException
	err := db.WithContext(ctx).
		Where("date >= ? AND date < ?", from.UTC(), to.UTC()).
		Order("date ASC").
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// DeleteException removes an exception by id, or returns ErrNotFound.
func DeleteException(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.AvailabilityException{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
