package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/repo"
)

// SlotAdminService exposes manual inventory operations for the dashboard.
// None of them touch taken slots or slots under an active hold.
type SlotAdminService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Block turns free slots in [from, to) into blocked ones.
func (s *SlotAdminService) Block(ctx context.Context, from, to time.Time) (int64, error) {
	return s.move(ctx, from, to, domain.SlotFree, domain.SlotBlocked)
}

// Unblock turns blocked slots in [from, to) back into free ones.
func (s *SlotAdminService) Unblock(ctx context.Context, from, to time.Time) (int64, error) {
	return s.move(ctx, from, to, domain.SlotBlocked, domain.SlotFree)
}

// Delete removes free or blocked, not actively held slots in [from, to).
func (s *SlotAdminService) Delete(ctx context.Context, from, to time.Time) (int64, error) {
	if err := validRange(from, to); err != nil {
		return 0, err
	}
	n, err := repo.DeleteReleasableSlots(ctx, s.DB, from, to, clockNow(s.Now))
	if err == nil {
		log.Info().Time("from", from).Time("to", to).Int64("deleted", n).Msg("slots deleted")
	}
	return n, err
}

// Stats counts slots in [from, to) by status.
func (s *SlotAdminService) Stats(ctx context.Context, from, to time.Time) (repo.SlotCounts, error) {
	if err := validRange(from, to); err != nil {
		return repo.SlotCounts{}, err
	}
	return repo.SlotStats(ctx, s.DB, from, to, clockNow(s.Now))
}

func (s *SlotAdminService) move(ctx context.Context, from, to time.Time, fromStatus, toStatus domain.SlotStatus) (int64, error) {
	if err := validRange(from, to); err != nil {
		return 0, err
	}
	n, err := repo.SetStatusInRange(ctx, s.DB, from, to, fromStatus, toStatus, clockNow(s.Now))
	if err == nil {
		log.Info().Time("from", from).Time("to", to).Str("status", string(toStatus)).Int64("changed", n).Msg("slot status changed")
	}
	return n, err
}

func validRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return ErrInvalidRange
	}
	return nil
}
