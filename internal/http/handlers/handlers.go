// Package handlers exposes the booking engine over HTTP.
//
// Handlers are transport-thin: they validate input, call the scheduling
// services through the interfaces below, and translate results and
// service errors into the JSON envelopes defined in response.go.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/calendar"
	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/payments"
	"github.com/tbourn/go-coaching-backend/internal/repo"
	"github.com/tbourn/go-coaching-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AvailabilityService resolves opening hours and manages rules and exceptions.
type AvailabilityService interface {
	GetDayAvailability(ctx context.Context, date time.Time) ([]calendar.Interval, error)
	RangeAvailability(ctx context.Context, from time.Time, days int) ([]services.DayAvailability, error)
	AddRule(ctx context.Context, in services.RuleInput) (*domain.AvailabilityRule, error)
	CurrentRules(ctx context.Context) ([]domain.AvailabilityRule, error)
	RuleHistory(ctx context.Context) ([]domain.AvailabilityRule, error)
	AddException(ctx context.Context, in services.ExceptionInput) (*domain.AvailabilityException, error)
	ListExceptions(ctx context.Context, from time.Time, days int) ([]domain.AvailabilityException, error)
	DeleteException(ctx context.Context, id string) error
}

// StartLister lists bookable start times for a session length.
type StartLister interface {
	ListStarts(ctx context.Context, from time.Time, days, minutes int) ([]time.Time, error)
}

// HoldService reserves and releases blocks of slots.
type HoldService interface {
	HoldSlots(ctx context.Context, ref services.StartRef, minutes int, opts services.HoldOptions) (*services.Hold, error)
	ReleaseHold(ctx context.Context, req services.ReleaseRequest) (int64, error)
}

// BookingService records checkouts and confirmed payments.
type BookingService interface {
	StartCheckout(ctx context.Context, req services.CheckoutRequest) (*domain.Booking, error)
	FinalizeBooking(ctx context.Context, meta services.BookingMeta, amountCents int64, currency, paymentRef, provider string) (*services.FinalizeResult, error)
	RescheduleBooking(ctx context.Context, bookingID string, ref services.StartRef, minutes int) (*domain.Booking, error)
	ListBookings(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]domain.Booking, int64, error)
	BookingsStats(ctx context.Context, status domain.BookingStatus) (int64, *time.Time, error)
}

// SlotAdmin performs range operations on the slot inventory.
type SlotAdmin interface {
	Block(ctx context.Context, from, to time.Time) (int64, error)
	Unblock(ctx context.Context, from, to time.Time) (int64, error)
	Delete(ctx context.Context, from, to time.Time) (int64, error)
	Stats(ctx context.Context, from, to time.Time) (repo.SlotCounts, error)
}

// SlotRecomputer regenerates the slot grid.
type SlotRecomputer interface {
	RecomputeSlots(ctx context.Context, horizonDays int) (services.RecomputeResult, error)
}

// PaymentWebhook verifies and applies a provider callback.
type PaymentWebhook interface {
	Handle(ctx context.Context, payload []byte, sigHeader string) (*payments.Outcome, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Webhook may be nil, in
// which case the Stripe endpoint answers 503.
type Services struct {
	Availability AvailabilityService
	Starts       StartLister
	Holds        HoldService
	Bookings     BookingService
	Slots        SlotAdmin
	Generator    SlotRecomputer
	Webhook      PaymentWebhook
}

// Handlers groups the HTTP endpoints of the booking API.
type Handlers struct {
	avail    AvailabilityService
	starts   StartLister
	holds    HoldService
	bookings BookingService
	slots    SlotAdmin
	gen      SlotRecomputer
	webhook  PaymentWebhook

	now func() time.Time
}

// New constructs Handlers bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		avail:    s.Availability,
		starts:   s.Starts,
		holds:    s.Holds,
		bookings: s.Bookings,
		slots:    s.Slots,
		gen:      s.Generator,
		webhook:  s.Webhook,
		now:      time.Now,
	}
}

// today returns the current UTC day.
func (h *Handlers) today() time.Time { return calendar.Day(h.now()) }

// serviceError maps service and repository errors onto HTTP answers.
// Anything unrecognized is a 500 and is logged by fail.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSlotUnavailable):
		fail(c, http.StatusConflict, ErrCodeSlotUnavailable, "the requested time is no longer available")
	case errors.Is(err, services.ErrHoldMismatch):
		fail(c, http.StatusConflict, ErrCodeHoldMismatch, "the slots are held by another checkout")
	case errors.Is(err, services.ErrHoldExpired):
		fail(c, http.StatusGone, ErrCodeHoldExpired, "the hold has expired, please select a time again")
	case errors.Is(err, services.ErrSlotNotFound),
		errors.Is(err, services.ErrExceptionNotFound),
		errors.Is(err, services.ErrBookingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidDuration):
		fail(c, http.StatusBadRequest, ErrCodeInvalidDuration, err.Error())
	case errors.Is(err, services.ErrInvalidDate),
		errors.Is(err, services.ErrInvalidRange),
		errors.Is(err, services.ErrInvalidRule),
		errors.Is(err, services.ErrInvalidException),
		errors.Is(err, services.ErrInvalidRelease),
		errors.Is(err, services.ErrMissingPaymentRef),
		errors.Is(err, services.ErrNoSlots):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, ErrCodeTimeout, "request timed out")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		_ = c.Error(err)
	}
}
