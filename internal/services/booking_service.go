// Package services – BookingService
//
// This file implements the booking lifecycle: an optional pending booking at
// checkout start, the idempotent finalize transaction that turns a confirmed
// payment into a paid booking and taken slots, admin reschedules, and the
// paginated dashboard listing.
//
// Finalize is the linearization point for slot ownership. Inside one
// transaction it records the payment reference in the processed-event
// ledger, moves the block's free or blocked slots to taken, clears their
// holds, and upserts the booking. If some slots were already taken the
// booking is still recorded and flagged for manual reconciliation.
package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/notify"
	"github.com/tbourn/go-coaching-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const notifyTimeout = 10 * time.Second

// errAlreadyProcessed aborts the finalize transaction for a replayed payment.
var errAlreadyProcessed = errors.New("payment already processed")

// BookingMeta is the payment confirmation contract, minus the payment
// reference and pricing which are passed separately to FinalizeBooking.
type BookingMeta struct {
	SlotID         string   `json:"slot_id,omitempty"`
	SlotIDs        []string `json:"slot_ids,omitempty"`
	SessionType    string   `json:"session_type" binding:"omitempty,max=64,printascii"`
	LiveMinutes    int      `json:"live_minutes"`
	Discord        string   `json:"discord,omitempty"`
	Followups      int      `json:"followups"`
	LiveBlocks     int      `json:"live_blocks"`
	Email          string   `json:"email,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	WaiverAccepted bool     `json:"waiver_accepted"`
	WaiverVersion  string   `json:"waiver_version,omitempty"`
}

// blockIDs returns the explicit slot list, or the single primary slot.
func (m BookingMeta) blockIDs() []string {
	if ids := uniqueIDs(m.SlotIDs); len(ids) > 0 {
		return ids
	}
	return uniqueIDs([]string{m.SlotID})
}

// primaryID is the explicit primary slot, or the first of the block.
func (m BookingMeta) primaryID(ids []string) string {
	if p := strings.TrimSpace(m.SlotID); p != "" {
		return p
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// FinalizeResult describes the outcome of FinalizeBooking.
type FinalizeResult struct {
	Booking *domain.Booking `json:"booking,omitempty"`
	// Duplicate is true when the payment reference was already processed;
	// nothing was changed.
	Duplicate bool `json:"duplicate"`
	// SlotConflict is true when fewer slots moved to taken than requested.
	SlotConflict bool  `json:"slot_conflict"`
	SlotsTaken   int64 `json:"slots_taken"`
}

// CheckoutRequest starts checkout for a held block.
type CheckoutRequest struct {
	HoldKey     string
	PaymentRef  string
	Provider    string
	AmountCents int64
	Currency    string
	Meta        BookingMeta
}

// Notifier receives booking confirmations after commit.
type Notifier interface {
	SendBookingEmail(ctx context.Context, email string, n notify.BookingNotice) error
}

// BookingService owns bookings and the finalize transaction.
type BookingService struct {
	DB       *gorm.DB
	Finder   *BlockFinder
	Notifier Notifier
	TimeZone string
	Now      func() time.Time
}

// FinalizeBooking converts a confirmed payment into a paid booking. It is
// idempotent in paymentRef: a replay returns Duplicate=true and changes nothing.
func (s *BookingService) FinalizeBooking(ctx context.Context, meta BookingMeta, amountCents int64, currency, paymentRef, provider string) (*FinalizeResult, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "FinalizeBooking",
		trace.WithAttributes(
			attribute.String("payment.ref", paymentRef),
			attribute.String("payment.provider", provider),
		),
	)
	defer span.End()

	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, ErrMissingPaymentRef
	}
	ids := meta.blockIDs()
	if len(ids) == 0 {
		return nil, ErrNoSlots
	}
	primary := meta.primaryID(ids)
	now := clockNow(s.Now)
	res := &FinalizeResult{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateProcessedEvent(ctx, tx, paymentRef, provider); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return errAlreadyProcessed
			}
			return err
		}

		taken, err := repo.MarkTaken(ctx, tx, ids)
		if err != nil {
			return err
		}
		res.SlotsTaken = taken
		res.SlotConflict = taken < int64(len(ids))

		// Payment wins over hold bookkeeping, including on slots we did not take.
		if err := repo.ClearHolds(ctx, tx, ids); err != nil {
			return err
		}

		var start *time.Time
		if sl, err := repo.GetSlot(ctx, tx, primary); err == nil {
			st := sl.StartTime.UTC()
			start = &st
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		b := newBooking(meta, ids, primary, amountCents, currency, paymentRef, provider, now)
		b.Status = domain.BookingPaid
		b.PaidAt = &now
		b.ScheduledStart = start
		b.SlotConflict = res.SlotConflict
		if b.ScheduledMinutes == 0 && s.Finder != nil {
			b.ScheduledMinutes = len(ids) * int(s.Finder.Step/time.Minute)
		}

		cols := []string{
			"status", "provider", "amount_cents", "currency", "paid_at",
			"slot_id", "block_csv", "scheduled_start", "scheduled_minutes", "slot_conflict",
		}
		// A pending booking may predate the payer's address.
		if b.Email != "" {
			cols = append(cols, "email")
		}
		saved, err := repo.UpsertBooking(ctx, tx, b, cols)
		if err != nil {
			return err
		}
		res.Booking = saved
		return nil
	})

	if errors.Is(err, errAlreadyProcessed) {
		bookingsFinalized.WithLabelValues("duplicate").Inc()
		log.Info().Str("payment_ref", paymentRef).Msg("payment already processed")
		existing, lerr := repo.GetBookingByPaymentRef(ctx, s.DB, paymentRef)
		if lerr != nil && !errors.Is(lerr, repo.ErrNotFound) {
			return nil, lerr
		}
		return &FinalizeResult{Booking: existing, Duplicate: true}, nil
	}
	if err != nil {
		bookingsFinalized.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize failed")
		return nil, err
	}

	bookingsFinalized.WithLabelValues("booked").Inc()
	if res.SlotConflict {
		bookingSlotConflicts.Inc()
		span.SetAttributes(attribute.Bool("booking.slot_conflict", true))
		log.Warn().
			Str("payment_ref", paymentRef).
			Str("booking_id", res.Booking.ID).
			Strs("slot_ids", ids).
			Int64("slots_taken", res.SlotsTaken).
			Msg("booking slot conflict")
	} else {
		log.Info().Str("payment_ref", paymentRef).Str("booking_id", res.Booking.ID).Msg("booking finalized")
	}

	// Sinks decide what to do without an address; the event stream still
	// needs every booking.
	email := strings.TrimSpace(meta.Email)
	if email == "" {
		email = strings.TrimSpace(res.Booking.Email)
	}
	s.notify(ctx, email, res.Booking)
	return res, nil
}

// StartCheckout verifies that holdKey still holds every slot of the block
// and records (or refreshes) an unpaid booking for the payment reference.
// A booking already paid for that reference is returned unchanged.
func (s *BookingService) StartCheckout(ctx context.Context, req CheckoutRequest) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "StartCheckout",
		trace.WithAttributes(attribute.String("payment.ref", req.PaymentRef)),
	)
	defer span.End()

	ref := strings.TrimSpace(req.PaymentRef)
	if ref == "" {
		return nil, ErrMissingPaymentRef
	}
	key := strings.TrimSpace(req.HoldKey)
	if key == "" {
		return nil, ErrHoldExpired
	}
	ids := req.Meta.blockIDs()
	if len(ids) == 0 {
		return nil, ErrNoSlots
	}
	primary := req.Meta.primaryID(ids)
	now := clockNow(s.Now)

	var out *domain.Booking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.GetBookingByPaymentRef(ctx, tx, ref)
		if err == nil && existing.Status == domain.BookingPaid {
			out = existing
			return nil
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		slots, err := verifyHold(ctx, tx, ids, key, now)
		if err != nil {
			return err
		}
		var start *time.Time
		for _, sl := range slots {
			if sl.ID == primary {
				st := sl.StartTime.UTC()
				start = &st
			}
		}

		b := newBooking(req.Meta, ids, primary, req.AmountCents, req.Currency, ref, req.Provider, now)
		b.Status = domain.BookingUnpaid
		b.ScheduledStart = start
		if b.ScheduledMinutes == 0 && s.Finder != nil {
			b.ScheduledMinutes = len(ids) * int(s.Finder.Step/time.Minute)
		}
		out, err = repo.UpsertBooking(ctx, tx, b, []string{
			"provider", "slot_id", "block_csv", "scheduled_start", "scheduled_minutes",
			"session_type", "discord", "followups", "live_blocks", "notes", "email",
			"amount_cents", "currency", "waiver_accepted", "waiver_accepted_at", "waiver_version",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("payment_ref", ref).Str("hold_key", key).Str("booking_id", out.ID).Msg("checkout started")
	return out, nil
}

// RescheduleBooking moves a booking onto the slots starting at ref using the
// admin block lookup. Old taken slots that are not part of the new block are
// freed unless another paid, unconflicted booking still owns them; the new
// ones become taken regardless of their previous status.
func (s *BookingService) RescheduleBooking(ctx context.Context, bookingID string, ref StartRef, minutes int) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "RescheduleBooking",
		trace.WithAttributes(
			attribute.String("booking.id", bookingID),
			attribute.Int("minutes", minutes),
		),
	)
	defer span.End()

	var out *domain.Booking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := repo.GetBooking(ctx, tx, bookingID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}

		slots, err := s.Finder.adminBlock(ctx, tx, ref, minutes)
		if err != nil {
			return err
		}
		newIDs := slotIDs(slots)
		keep := make(map[string]struct{}, len(newIDs))
		for _, id := range newIDs {
			keep[id] = struct{}{}
		}
		var release []string
		for _, id := range b.SlotIDs() {
			if _, ok := keep[id]; !ok {
				release = append(release, id)
			}
		}

		if len(release) > 0 {
			owned, err := repo.SlotsOwnedByOthers(ctx, tx, b.ID, release)
			if err != nil {
				return err
			}
			release = slices.DeleteFunc(release, func(id string) bool {
				_, ok := owned[id]
				return ok
			})
		}
		if _, err := repo.FreeTaken(ctx, tx, release); err != nil {
			return err
		}
		if _, err := repo.MarkTaken(ctx, tx, newIDs); err != nil {
			return err
		}
		if err := repo.ClearHolds(ctx, tx, newIDs); err != nil {
			return err
		}
		start := slots[0].StartTime.UTC()
		if err := repo.UpdateBookingSchedule(ctx, tx, b.ID, newIDs[0], domain.JoinSlotIDs(newIDs), &start, minutes); err != nil {
			return err
		}
		out, err = repo.GetBooking(ctx, tx, b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("booking_id", out.ID).Strs("slot_ids", out.SlotIDs()).Msg("booking rescheduled")
	return out, nil
}

// ListBookings returns a page of bookings, newest first, and the total count.
func (s *BookingService) ListBookings(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]domain.Booking, int64, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "ListBookings",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountBookings(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Booking{}, 0, nil
	}
	items, err := repo.ListBookingsPage(ctx, s.DB, status, (page-1)*pageSize, pageSize)
	return items, total, err
}

// BookingsStats returns the count and latest update for ETag generation.
func (s *BookingService) BookingsStats(ctx context.Context, status domain.BookingStatus) (int64, *time.Time, error) {
	return repo.BookingsStats(ctx, s.DB, status)
}

// notify sends the confirmation with a detached, bounded context. Failures
// are logged and never surface to the caller.
func (s *BookingService) notify(ctx context.Context, email string, b *domain.Booking) {
	if s.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	n := notify.BookingNotice{
		BookingID: b.ID,
		Title:     notify.SessionTitle(b.SessionType),
		Minutes:   b.ScheduledMinutes,
		Followups: b.Followups,
		PriceEUR:  float64(b.AmountCents) / 100,
		TimeZone:  s.TimeZone,
	}
	if b.ScheduledStart != nil {
		n.Start = *b.ScheduledStart
	}
	if err := s.Notifier.SendBookingEmail(nctx, email, n); err != nil {
		log.Error().Err(err).Str("booking_id", b.ID).Msg("booking notification failed")
	}
}

func newBooking(meta BookingMeta, ids []string, primary string, amountCents int64, currency, paymentRef, provider string, now time.Time) *domain.Booking {
	b := &domain.Booking{
		ID:               uuid.NewString(),
		PaymentRef:       paymentRef,
		Provider:         strings.ToLower(strings.TrimSpace(provider)),
		SlotID:           primary,
		BlockCSV:         domain.JoinSlotIDs(ids),
		ScheduledMinutes: meta.LiveMinutes,
		SessionType:      strings.TrimSpace(meta.SessionType),
		Discord:          strings.TrimSpace(meta.Discord),
		Followups:        meta.Followups,
		LiveBlocks:       meta.LiveBlocks,
		Notes:            strings.TrimSpace(meta.Notes),
		Email:            strings.TrimSpace(meta.Email),
		AmountCents:      amountCents,
		Currency:         strings.ToLower(strings.TrimSpace(currency)),
		WaiverAccepted:   meta.WaiverAccepted,
		WaiverVersion:    strings.TrimSpace(meta.WaiverVersion),
	}
	if meta.WaiverAccepted {
		b.WaiverAcceptedAt = &now
	}
	return b
}
