// Package services – HoldService
//
// This file places, refreshes, verifies and releases holds. A hold is the
// (hold_key, hold_until) pair written across every slot of a block. Holds
// are advisory: they keep a block reserved while the customer pays, and the
// finalizer remains the only place a slot becomes taken. Expiry is lazy and
// every statement re-evaluates hold_until against the current instant.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HoldService reserves slot blocks for a limited time.
type HoldService struct {
	DB     *gorm.DB
	Finder *BlockFinder
	TTL    time.Duration
	Now    func() time.Time
	NewKey func() string
}

// HoldOptions carries the optional caller-supplied hold key.
type HoldOptions struct {
	HoldKey string
}

// Hold is the result of a successful HoldSlots call.
type Hold struct {
	HoldKey   string    `json:"hold_key"`
	HoldUntil time.Time `json:"hold_until"`
	SlotIDs   []string  `json:"slot_ids"`
}

// ReleaseRequest names what to release. HoldKey wins over slot ids.
type ReleaseRequest struct {
	HoldKey string   `json:"hold_key,omitempty"`
	SlotID  string   `json:"slot_id,omitempty"`
	SlotIDs []string `json:"slot_ids,omitempty"`
}

// HoldSlots reserves the strict block of minutes starting at ref.
//
// The effective key is the supplied one, else the start slot's still-active
// key, else a freshly minted one. Calling again with the same key before
// expiry extends the hold. The update is conditional: it only applies to
// slots that are still free and not actively held by another key, and the
// whole call fails with ErrSlotUnavailable unless every slot was updated.
func (s *HoldService) HoldSlots(ctx context.Context, ref StartRef, minutes int, opts HoldOptions) (*Hold, error) {
	tr := otel.Tracer("services/HoldService")
	ctx, span := tr.Start(ctx, "HoldSlots",
		trace.WithAttributes(
			attribute.Int("minutes", minutes),
			attribute.Bool("key_supplied", opts.HoldKey != ""),
		),
	)
	defer span.End()

	n, err := s.Finder.Units(minutes)
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return nil, ErrSlotNotFound
	}

	now := clockNow(s.Now)
	until := now.Add(s.TTL)
	var hold *Hold

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, err := s.Finder.resolveStart(ctx, tx, ref)
		if err != nil {
			return err
		}

		key := strings.TrimSpace(opts.HoldKey)
		if key == "" && first.ActiveHold(now) {
			key = *first.HoldKey
		}
		if key == "" {
			key = s.newKey()
		}

		slots, err := s.Finder.strictBlock(ctx, tx, first.StartTime, n, key, now)
		if err != nil {
			return err
		}
		ids := slotIDs(slots)

		updated, err := repo.ClaimHold(ctx, tx, ids, key, until, now)
		if err != nil {
			return err
		}
		if updated != int64(len(ids)) {
			return ErrSlotUnavailable
		}
		hold = &Hold{HoldKey: key, HoldUntil: until, SlotIDs: ids}
		return nil
	})

	switch {
	case err == nil:
		slotHolds.WithLabelValues("held").Inc()
		log.Debug().Str("hold_key", hold.HoldKey).Strs("slot_ids", hold.SlotIDs).Time("hold_until", until).Msg("hold placed")
		return hold, nil
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrSlotNotFound):
		slotHolds.WithLabelValues("unavailable").Inc()
	default:
		slotHolds.WithLabelValues("error").Inc()
	}
	return nil, err
}

// ReleaseHold clears holds. With a key, every slot still actively held by
// that key is released. With slot ids, only expired or absent holds are
// cleared, so an active hold owned by someone else is never stolen.
func (s *HoldService) ReleaseHold(ctx context.Context, req ReleaseRequest) (int64, error) {
	tr := otel.Tracer("services/HoldService")
	ctx, span := tr.Start(ctx, "ReleaseHold",
		trace.WithAttributes(attribute.Bool("by_key", req.HoldKey != "")),
	)
	defer span.End()

	now := clockNow(s.Now)
	if key := strings.TrimSpace(req.HoldKey); key != "" {
		return repo.ReleaseHoldByKey(ctx, s.DB, key, now)
	}

	ids := uniqueIDs(append([]string{req.SlotID}, req.SlotIDs...))
	if len(ids) == 0 {
		return 0, ErrInvalidRelease
	}
	return repo.ReleaseStaleHolds(ctx, s.DB, ids, now)
}

// verifyHold checks that key still actively holds every slot in ids.
func verifyHold(ctx context.Context, db *gorm.DB, ids []string, key string, now time.Time) ([]domain.Slot, error) {
	slots, err := repo.ListSlotsByIDs(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	if len(slots) != len(ids) {
		return nil, ErrSlotNotFound
	}
	for _, sl := range slots {
		switch {
		case sl.Status == domain.SlotTaken:
			return nil, ErrSlotUnavailable
		case sl.HeldByOther(key, now):
			return nil, ErrHoldMismatch
		case !sl.ActiveHold(now):
			return nil, ErrHoldExpired
		}
	}
	return slots, nil
}

func (s *HoldService) newKey() string {
	if s.NewKey != nil {
		return s.NewKey()
	}
	return uuid.NewString()
}

// uniqueIDs trims, drops blanks and duplicates, and keeps first-seen order.
func uniqueIDs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
