// Package services – BlockFinder
//
// This file finds contiguous runs of slots for a requested session length.
// The strict path is used by public holds and requires every unit to exist,
// be free, and not be actively held by another key. The admin path returns
// whatever slots exist in the range. ListStarts builds the public listing of
// start instants and additionally enforces buffers around taken slots.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/calendar"
	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartRef points at the first slot of a block, either by id or by instant.
// SlotID wins when both are set.
type StartRef struct {
	SlotID string
	Start  time.Time
}

// IsZero reports whether the reference names nothing.
func (r StartRef) IsZero() bool { return r.SlotID == "" && r.Start.IsZero() }

// BlockFinder locates contiguous slot blocks.
type BlockFinder struct {
	DB                *gorm.DB
	Step              time.Duration
	MaxSessionMinutes int
	BufferBefore      time.Duration
	BufferAfter       time.Duration
	Now               func() time.Time
}

// Units converts a session length into a slot count. minutes must be a
// positive multiple of the step and no larger than MaxSessionMinutes.
func (f *BlockFinder) Units(minutes int) (int, error) {
	step := int(f.Step / time.Minute)
	if step <= 0 || minutes <= 0 || minutes%step != 0 {
		return 0, ErrInvalidDuration
	}
	if f.MaxSessionMinutes > 0 && minutes > f.MaxSessionMinutes {
		return 0, ErrInvalidDuration
	}
	return minutes / step, nil
}

// GetBlockIDs returns the ordered slot ids of the strict block starting at
// ref, or ErrSlotUnavailable when any unit is missing, not free, or actively
// held by a key other than holdKey.
func (f *BlockFinder) GetBlockIDs(ctx context.Context, ref StartRef, minutes int, holdKey string) ([]string, error) {
	tr := otel.Tracer("services/BlockFinder")
	ctx, span := tr.Start(ctx, "GetBlockIDs",
		trace.WithAttributes(attribute.Int("minutes", minutes)),
	)
	defer span.End()

	n, err := f.Units(minutes)
	if err != nil {
		return nil, err
	}
	first, err := f.resolveStart(ctx, f.DB, ref)
	if err != nil {
		return nil, err
	}
	slots, err := f.strictBlock(ctx, f.DB, first.StartTime, n, holdKey, clockNow(f.Now))
	if err != nil {
		return nil, err
	}
	return slotIDs(slots), nil
}

// GetBlockIDsAdmin returns the ids of every slot starting in
// [start, start+minutes), ignoring status, holds, and gaps.
func (f *BlockFinder) GetBlockIDsAdmin(ctx context.Context, ref StartRef, minutes int) ([]string, error) {
	slots, err := f.adminBlock(ctx, f.DB, ref, minutes)
	if err != nil {
		return nil, err
	}
	return slotIDs(slots), nil
}

// ListStarts returns every start instant in the days consecutive UTC days
// from from's day at which a strict block of minutes is free and no taken
// slot lies within [start-BufferBefore, start+minutes+BufferAfter). Starts
// in the past are omitted.
func (f *BlockFinder) ListStarts(ctx context.Context, from time.Time, days, minutes int) ([]time.Time, error) {
	tr := otel.Tracer("services/BlockFinder")
	ctx, span := tr.Start(ctx, "ListStarts",
		trace.WithAttributes(
			attribute.Int("days", days),
			attribute.Int("minutes", minutes),
		),
	)
	defer span.End()

	n, err := f.Units(minutes)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || days < 1 || days > maxRangeDays {
		return nil, ErrInvalidDate
	}
	now := clockNow(f.Now)
	windowStart := calendar.Day(from)
	windowEnd := windowStart.AddDate(0, 0, days)
	session := time.Duration(minutes) * time.Minute

	slots, err := repo.ListSlotsInRange(ctx, f.DB,
		windowStart.Add(-f.BufferBefore),
		windowEnd.Add(session+f.BufferAfter),
	)
	if err != nil {
		return nil, err
	}

	byStart := make(map[int64]domain.Slot, len(slots))
	var taken []time.Time
	for _, s := range slots {
		byStart[s.StartTime.Unix()] = s
		if s.Status == domain.SlotTaken {
			taken = append(taken, s.StartTime)
		}
	}
	// slots are ordered by start, so taken is sorted.

	out := []time.Time{}
	for _, s := range slots {
		st := s.StartTime
		if st.Before(windowStart) || !st.Before(windowEnd) || st.Before(now) {
			continue
		}
		if !contiguousFree(byStart, st, n, f.Step, now) {
			continue
		}
		if anyWithin(taken, st.Add(-f.BufferBefore), st.Add(session+f.BufferAfter)) {
			continue
		}
		out = append(out, st.UTC())
	}
	return out, nil
}

// resolveStart loads the slot named by ref.
func (f *BlockFinder) resolveStart(ctx context.Context, db *gorm.DB, ref StartRef) (*domain.Slot, error) {
	var (
		s   *domain.Slot
		err error
	)
	switch {
	case ref.SlotID != "":
		s, err = repo.GetSlot(ctx, db, ref.SlotID)
	case !ref.Start.IsZero():
		s, err = repo.GetSlotByStart(ctx, db, ref.Start)
	default:
		return nil, ErrSlotNotFound
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSlotNotFound
	}
	return s, err
}

// strictBlock loads the n slots at start, start+step, ... and checks each is
// bookable for holdKey. Blocks starting in the past are unavailable.
func (f *BlockFinder) strictBlock(ctx context.Context, db *gorm.DB, start time.Time, n int, holdKey string, now time.Time) ([]domain.Slot, error) {
	if start.Before(now) {
		return nil, ErrSlotUnavailable
	}
	end := start.Add(time.Duration(n) * f.Step)
	rows, err := repo.ListSlotsInRange(ctx, db, start, end)
	if err != nil {
		return nil, err
	}
	byStart := make(map[int64]domain.Slot, len(rows))
	for _, s := range rows {
		byStart[s.StartTime.Unix()] = s
	}

	out := make([]domain.Slot, 0, n)
	for i := 0; i < n; i++ {
		s, ok := byStart[start.Add(time.Duration(i)*f.Step).Unix()]
		if !ok || !s.Bookable(holdKey, now) {
			return nil, ErrSlotUnavailable
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *BlockFinder) adminBlock(ctx context.Context, db *gorm.DB, ref StartRef, minutes int) ([]domain.Slot, error) {
	if minutes <= 0 {
		return nil, ErrInvalidDuration
	}
	first, err := f.resolveStart(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	slots, err := repo.ListSlotsInRange(ctx, db, first.StartTime, first.StartTime.Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}
	return slots, nil
}

func contiguousFree(byStart map[int64]domain.Slot, start time.Time, n int, step time.Duration, now time.Time) bool {
	for i := 0; i < n; i++ {
		s, ok := byStart[start.Add(time.Duration(i)*step).Unix()]
		if !ok || !s.Bookable("", now) {
			return false
		}
	}
	return true
}

// anyWithin reports whether a sorted list has an element in [lo, hi).
func anyWithin(sorted []time.Time, lo, hi time.Time) bool {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Before(lo) })
	return i < len(sorted) && sorted[i].Before(hi)
}

func slotIDs(slots []domain.Slot) []string {
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}
