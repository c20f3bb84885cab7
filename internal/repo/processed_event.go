package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

// CreateProcessedEvent records a payment reference in the ledger and returns
// ErrDuplicate when it was already recorded.
func CreateProcessedEvent(ctx context.Context, db *gorm.DB, ref, provider string) error {
	ev := &domain.ProcessedEvent{ID: ref, Provider: provider}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ProcessedEventExists reports whether ref is already in the ledger.
func ProcessedEventExists(ctx context.Context, db *gorm.DB, ref string) (bool, error) {
	var ev domain.ProcessedEvent
	err := db.WithContext(ctx).Select("id").Where("id = ?", ref).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
