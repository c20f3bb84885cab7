// Package services – AvailabilityService
//
// This file resolves the open windows of a calendar day from the current
// weekly rules and the day's exceptions, and owns the administration of both
// tables. Rule versions are append-only; exceptions can be removed.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/calendar"
	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxRangeDays bounds multi-day lookups.
const maxRangeDays = 366

// AvailabilityService resolves day windows and manages rules and exceptions.
type AvailabilityService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// RuleInput describes a new weekly rule version. A nil EffectiveFrom means now.
type RuleInput struct {
	Weekday       int        `json:"weekday"`
	OpenMinute    int        `json:"open_minute"`
	CloseMinute   int        `json:"close_minute"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
}

// ExceptionInput describes a date exception.
type ExceptionInput struct {
	Date        time.Time `json:"date"`
	Blocked     bool      `json:"blocked"`
	OpenMinute  *int      `json:"open_minute,omitempty"`
	CloseMinute *int      `json:"close_minute,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// DayAvailability is one resolved day. Intervals is nil when the day is closed.
type DayAvailability struct {
	Date      time.Time           `json:"date"`
	Intervals []calendar.Interval `json:"intervals"`
}

// GetDayAvailability returns the open intervals of date's UTC day, or nil
// when the day is closed.
func (s *AvailabilityService) GetDayAvailability(ctx context.Context, date time.Time) ([]calendar.Interval, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "GetDayAvailability",
		trace.WithAttributes(attribute.String("date", calendar.Day(date).Format(time.DateOnly))),
	)
	defer span.End()

	if date.IsZero() {
		return nil, ErrInvalidDate
	}
	day := calendar.Day(date)
	rules, err := repo.CurrentRules(ctx, s.DB, clockNow(s.Now))
	if err != nil {
		return nil, err
	}
	prev, cur := windowsFor(rules, day)
	if calendar.ResolveDay(prev, cur, nil) == nil {
		return nil, nil
	}

	exceptions, err := repo.ListExceptions(ctx, s.DB, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return calendar.ResolveDay(prev, cur, overrides(exceptions)), nil
}

// RangeAvailability resolves days consecutive days starting at from's UTC
// day, loading rules and exceptions once.
func (s *AvailabilityService) RangeAvailability(ctx context.Context, from time.Time, days int) ([]DayAvailability, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "RangeAvailability",
		trace.WithAttributes(attribute.Int("days", days)),
	)
	defer span.End()

	if from.IsZero() || days < 1 || days > maxRangeDays {
		return nil, ErrInvalidDate
	}
	start := calendar.Day(from)
	end := start.AddDate(0, 0, days)

	rules, err := repo.CurrentRules(ctx, s.DB, clockNow(s.Now))
	if err != nil {
		return nil, err
	}
	exceptions, err := repo.ListExceptions(ctx, s.DB, start, end)
	if err != nil {
		return nil, err
	}
	byDay := make(map[int64][]calendar.Override, len(exceptions))
	for _, e := range exceptions {
		d := calendar.Day(time.Time(e.Date)).Unix()
		byDay[d] = append(byDay[d], overrides([]domain.AvailabilityException{e})...)
	}

	out := make([]DayAvailability, 0, days)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		prev, cur := windowsFor(rules, d)
		out = append(out, DayAvailability{Date: d, Intervals: calendar.ResolveDay(prev, cur, byDay[d.Unix()])})
	}
	return out, nil
}

// AddRule appends a new rule version for a weekday.
func (s *AvailabilityService) AddRule(ctx context.Context, in RuleInput) (*domain.AvailabilityRule, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "AddRule",
		trace.WithAttributes(attribute.Int("weekday", in.Weekday)),
	)
	defer span.End()

	if in.Weekday < 0 || in.Weekday > 6 || !validMinute(in.OpenMinute) || !validMinute(in.CloseMinute) {
		return nil, ErrInvalidRule
	}
	effective := clockNow(s.Now)
	if in.EffectiveFrom != nil && !in.EffectiveFrom.IsZero() {
		effective = in.EffectiveFrom.UTC()
	}
	r := &domain.AvailabilityRule{
		ID:            uuid.NewString(),
		Weekday:       in.Weekday,
		OpenMinute:    in.OpenMinute,
		CloseMinute:   in.CloseMinute,
		EffectiveFrom: effective,
	}
	if err := repo.CreateRule(ctx, s.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CurrentRules returns the rule in effect for each weekday, ordered by weekday.
func (s *AvailabilityService) CurrentRules(ctx context.Context) ([]domain.AvailabilityRule, error) {
	m, err := repo.CurrentRules(ctx, s.DB, clockNow(s.Now))
	if err != nil {
		return nil, err
	}
	out := make([]domain.AvailabilityRule, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

// RuleHistory returns every stored rule version.
func (s *AvailabilityService) RuleHistory(ctx context.Context) ([]domain.AvailabilityRule, error) {
	return repo.ListRules(ctx, s.DB)
}

// AddException records a date exception.
func (s *AvailabilityService) AddException(ctx context.Context, in ExceptionInput) (*domain.AvailabilityException, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "AddException",
		trace.WithAttributes(attribute.Bool("blocked", in.Blocked)),
	)
	defer span.End()

	if in.Date.IsZero() {
		return nil, ErrInvalidDate
	}
	if (in.OpenMinute != nil && !validMinute(*in.OpenMinute)) || (in.CloseMinute != nil && !validMinute(*in.CloseMinute)) {
		return nil, ErrInvalidException
	}
	e := &domain.AvailabilityException{
		ID:          uuid.NewString(),
		Date:        datatypes.Date(calendar.Day(in.Date)),
		Blocked:     in.Blocked,
		OpenMinute:  in.OpenMinute,
		CloseMinute: in.CloseMinute,
		Reason:      in.Reason,
	}
	if err := repo.CreateException(ctx, s.DB, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListExceptions returns exceptions for days consecutive days from from.
func (s *AvailabilityService) ListExceptions(ctx context.Context, from time.Time, days int) ([]domain.AvailabilityException, error) {
	if from.IsZero() || days < 1 || days > maxRangeDays {
		return nil, ErrInvalidDate
	}
	start := calendar.Day(from)
	return repo.ListExceptions(ctx, s.DB, start, start.AddDate(0, 0, days))
}

// DeleteException removes an exception by id.
func (s *AvailabilityService) DeleteException(ctx context.Context, id string) error {
	err := repo.DeleteException(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrExceptionNotFound
	}
	return err
}

func validMinute(m int) bool { return m >= 0 && m <= calendar.MinutesPerDay }

// windowsFor picks the previous and current weekday windows for day.
func windowsFor(rules map[int]domain.AvailabilityRule, day time.Time) (prev, cur *calendar.Window) {
	wd := int(day.Weekday())
	if r, ok := rules[(wd+6)%7]; ok {
		prev = &calendar.Window{Open: r.OpenMinute, Close: r.CloseMinute}
	}
	if r, ok := rules[wd]; ok {
		cur = &calendar.Window{Open: r.OpenMinute, Close: r.CloseMinute}
	}
	return prev, cur
}

func overrides(exceptions []domain.AvailabilityException) []calendar.Override {
	if len(exceptions) == 0 {
		return nil
	}
	out := make([]calendar.Override, 0, len(exceptions))
	for _, e := range exceptions {
		out = append(out, calendar.Override{Blocked: e.Blocked, Open: e.OpenMinute, Close: e.CloseMinute})
	}
	return out
}
