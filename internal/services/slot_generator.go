// Package services – SlotGenerator
//
// This file materializes fixed-size slots for a rolling horizon from the
// resolved availability. Each pass deletes past slots, clears free or
// blocked inventory that is not actively held, and regenerates it with
// duplicate-safe inserts, so taken and held slots are never touched and
// concurrent passes cannot collide on start_time.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/calendar"
	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SlotGenerator rebuilds the slot inventory.
type SlotGenerator struct {
	DB           *gorm.DB
	Availability *AvailabilityService
	Step         time.Duration
	HorizonDays  int
	Now          func() time.Time
}

// RecomputeResult reports the rows removed and inserted by one pass.
type RecomputeResult struct {
	Deleted int64 `json:"deleted"`
	Created int64 `json:"created"`
}

// RecomputeSlots runs a pass starting today (UTC) for horizonDays days.
// A non-positive horizon falls back to the configured one.
func (g *SlotGenerator) RecomputeSlots(ctx context.Context, horizonDays int) (RecomputeResult, error) {
	if horizonDays <= 0 {
		horizonDays = g.HorizonDays
	}
	return g.Recompute(ctx, calendar.Day(clockNow(g.Now)), horizonDays)
}

// Recompute deletes slots before today, deletes future free or blocked slots
// that are not actively held, and inserts free slots for every open interval
// of [today, today+horizonDays).
func (g *SlotGenerator) Recompute(ctx context.Context, today time.Time, horizonDays int) (RecomputeResult, error) {
	tr := otel.Tracer("services/SlotGenerator")
	ctx, span := tr.Start(ctx, "Recompute",
		trace.WithAttributes(
			attribute.String("today", today.Format(time.DateOnly)),
			attribute.Int("horizon_days", horizonDays),
		),
	)
	defer span.End()

	var res RecomputeResult
	if horizonDays < 1 || horizonDays > maxRangeDays {
		return res, ErrInvalidDate
	}
	if g.Step <= 0 {
		return res, ErrInvalidDuration
	}
	today = calendar.Day(today)
	now := clockNow(g.Now)

	past, err := repo.DeleteSlotsBefore(ctx, g.DB, today)
	if err != nil {
		return res, err
	}
	stale, err := repo.DeleteReleasableSlots(ctx, g.DB, today, time.Time{}, now)
	if err != nil {
		return res, err
	}
	res.Deleted = past + stale

	days, err := g.Availability.RangeAvailability(ctx, today, horizonDays)
	if err != nil {
		return res, err
	}
	stepMin := int(g.Step / time.Minute)
	var slots []domain.Slot
	for _, d := range days {
		for _, st := range calendar.Starts(d.Date, d.Intervals, g.Step) {
			slots = append(slots, domain.Slot{
				ID:              uuid.NewString(),
				StartTime:       st,
				DurationMinutes: stepMin,
				Status:          domain.SlotFree,
			})
		}
	}
	created, err := repo.CreateSlots(ctx, g.DB, slots)
	if err != nil {
		return res, err
	}
	res.Created = created

	slotsRecomputed.WithLabelValues("deleted").Add(float64(res.Deleted))
	slotsRecomputed.WithLabelValues("created").Add(float64(res.Created))
	log.Info().
		Str("today", today.Format(time.DateOnly)).
		Int("horizon_days", horizonDays).
		Int64("deleted", res.Deleted).
		Int64("created", res.Created).
		Msg("slots recomputed")
	return res, nil
}

// Run recomputes once immediately and then every interval until ctx ends.
// Failures are logged and retried on the next tick.
func (g *SlotGenerator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	tick := func() {
		if _, err := g.RecomputeSlots(ctx, g.HorizonDays); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("slot recompute failed")
		}
	}
	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
