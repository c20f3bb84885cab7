// Package payments adapts payment provider webhooks into the booking
// finalize call. Stripe is the only provider wired today: a signed
// checkout.session.completed event carries the booking metadata that was
// attached when the session was created.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/services"
	"github.com/tbourn/go-coaching-backend/internal/utils"
)

// ProviderStripe is recorded on bookings finalized through this adapter.
const ProviderStripe = "stripe"

const (
	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

var (
	ErrNotConfigured    = errors.New("stripe webhook secret not configured")
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrMissingMetadata  = errors.New("checkout session has no slot metadata")
)

// Finalizer is the part of the booking service the adapter drives.
type Finalizer interface {
	FinalizeBooking(ctx context.Context, meta services.BookingMeta, amountCents int64, currency, paymentRef, provider string) (*services.FinalizeResult, error)
}

// StripeWebhook verifies and dispatches Stripe webhook deliveries.
type StripeWebhook struct {
	Secret    string
	Tolerance time.Duration
	Finalizer Finalizer
}

// Outcome summarizes what a delivery did.
type Outcome struct {
	EventID   string                   `json:"event_id"`
	EventType string                   `json:"event_type"`
	Handled   bool                     `json:"handled"`
	Reason    string                   `json:"reason,omitempty"`
	Result    *services.FinalizeResult `json:"result,omitempty"`
}

// Handle verifies the Stripe-Signature header over payload and finalizes the
// booking for completed, paid checkout sessions. Other event types and
// sessions without slot metadata are acknowledged and ignored so Stripe does
// not redeliver them. Only finalize failures are returned as errors.
func (w *StripeWebhook) Handle(ctx context.Context, payload []byte, sigHeader string) (*Outcome, error) {
	if strings.TrimSpace(w.Secret) == "" {
		return nil, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, w.Secret, webhook.ConstructEventOptions{
		Tolerance:                w.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("stripe signature rejected")
		return nil, ErrInvalidSignature
	}

	out := &Outcome{EventID: evt.ID, EventType: string(evt.Type)}
	log.Info().
		Str("provider", ProviderStripe).
		Str("event_id", evt.ID).
		Str("event_type", out.EventType).
		Time("occurred_at", time.Unix(evt.Created, 0).UTC()).
		Msg("payment provider event received")

	switch out.EventType {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
	default:
		out.Reason = "event type not handled"
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		log.Error().Err(err).Str("event_id", evt.ID).Msg("stripe: invalid checkout session payload")
		out.Reason = "invalid checkout session payload"
		return out, nil
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		out.Reason = "payment not settled"
		return out, nil
	}

	meta, err := MetaFromSession(&session)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("stripe: checkout session without booking metadata")
		out.Reason = err.Error()
		return out, nil
	}

	res, err := w.Finalizer.FinalizeBooking(ctx, meta, session.AmountTotal, string(session.Currency), session.ID, ProviderStripe)
	if err != nil {
		return nil, err
	}
	out.Handled = true
	out.Result = res
	return out, nil
}

// MetaFromSession maps checkout session metadata onto the booking contract.
// Slot ids come from "slot_ids" (comma separated) or "slot_id"; the email
// falls back to the customer details Stripe collected.
func MetaFromSession(s *stripe.CheckoutSession) (services.BookingMeta, error) {
	md := s.Metadata
	meta := services.BookingMeta{
		SlotID:         strings.TrimSpace(md["slot_id"]),
		SlotIDs:        domain.SplitSlotIDs(md["slot_ids"]),
		SessionType:    strings.TrimSpace(md["session_type"]),
		LiveMinutes:    utils.AtoiDefault(strings.TrimSpace(md["live_minutes"]), 0),
		Discord:        strings.TrimSpace(md["discord"]),
		Followups:      utils.AtoiDefault(strings.TrimSpace(md["followups"]), 0),
		LiveBlocks:     utils.AtoiDefault(strings.TrimSpace(md["live_blocks"]), 0),
		Email:          strings.TrimSpace(md["email"]),
		Notes:          strings.TrimSpace(md["notes"]),
		WaiverAccepted: parseBool(md["waiver_accepted"]),
		WaiverVersion:  strings.TrimSpace(md["waiver_version"]),
	}
	if meta.SlotID == "" && len(meta.SlotIDs) == 0 {
		return meta, ErrMissingMetadata
	}
	if meta.Email == "" {
		switch {
		case s.CustomerDetails != nil && s.CustomerDetails.Email != "":
			meta.Email = s.CustomerDetails.Email
		case s.CustomerEmail != "":
			meta.Email = s.CustomerEmail
		}
	}
	return meta, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
