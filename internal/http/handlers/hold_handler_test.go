package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/services"
)

func TestCreateHold(t *testing.T) {
	until := fixedNow.Add(10 * time.Minute)
	var gotRef services.StartRef
	var gotKey string
	h := newTestHandlers(Services{Holds: stubHolds{
		hold: func(_ context.Context, ref services.StartRef, minutes int, o services.HoldOptions) (*services.Hold, error) {
			gotRef, gotKey = ref, o.HoldKey
			if ref.SlotID == "taken" {
				return nil, services.ErrSlotUnavailable
			}
			return &services.Hold{HoldKey: "k1", HoldUntil: until, SlotIDs: []string{"a", "b"}}, nil
		},
	}})

	w := do(t, http.MethodPost, "/holds", "/holds", h.CreateHold,
		`{"start_time":"2030-01-07T14:00:00+01:00","minutes":30,"hold_key":" k1 "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	var hold services.Hold
	if err := json.Unmarshal(w.Body.Bytes(), &hold); err != nil {
		t.Fatalf("json: %v", err)
	}
	if hold.HoldKey != "k1" || len(hold.SlotIDs) != 2 || !hold.HoldUntil.Equal(until) {
		t.Fatalf("unexpected hold: %+v", hold)
	}
	if !gotRef.Start.Equal(time.Date(2030, 1, 7, 13, 0, 0, 0, time.UTC)) || gotRef.Start.Location() != time.UTC || gotKey != "k1" {
		t.Fatalf("service args: ref=%+v key=%q", gotRef, gotKey)
	}

	w = do(t, http.MethodPost, "/holds", "/holds", h.CreateHold, `{"slot_id":"taken","minutes":30}`)
	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodeSlotUnavailable {
		t.Fatalf("conflict: %d %s", w.Code, w.Body)
	}

	for _, body := range []string{`{"minutes":30}`, `{"slot_id":"a"}`, `{"slot_id":"a","minutes":0}`, `nope`} {
		w = do(t, http.MethodPost, "/holds", "/holds", h.CreateHold, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", body, w.Code)
		}
	}
}

func TestReleaseHold(t *testing.T) {
	h := newTestHandlers(Services{Holds: stubHolds{
		release: func(_ context.Context, req services.ReleaseRequest) (int64, error) {
			if req.HoldKey == "" && req.SlotID == "" && len(req.SlotIDs) == 0 {
				return 0, services.ErrInvalidRelease
			}
			return int64(len(req.SlotIDs)) + 1, nil
		},
	}})

	w := do(t, http.MethodPost, "/holds/release", "/holds/release", h.ReleaseHold, services.ReleaseRequest{HoldKey: "k", SlotIDs: []string{"a", "b"}})
	if w.Code != http.StatusOK || w.Body.String() != `{"released":3}` {
		t.Fatalf("release: %d %s", w.Code, w.Body)
	}
	w = do(t, http.MethodPost, "/holds/release", "/holds/release", h.ReleaseHold, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty release: %d", w.Code)
	}
}

func TestStartCheckout(t *testing.T) {
	var got services.CheckoutRequest
	h := newTestHandlers(Services{Bookings: stubBookings{
		checkout: func(_ context.Context, req services.CheckoutRequest) (*domain.Booking, error) {
			got = req
			switch req.HoldKey {
			case "late":
				return nil, services.ErrHoldExpired
			case "other":
				return nil, services.ErrHoldMismatch
			}
			return &domain.Booking{ID: "b1", PaymentRef: req.PaymentRef, Status: domain.BookingUnpaid}, nil
		},
	}})

	body := `{"hold_key":"k1","slot_ids":["a","b"],"session_type":"vod","live_minutes":30,"amount_cents":4500,"currency":" EUR ","email":"x@example.com"}`
	w := do(t, http.MethodPost, "/checkout", "/checkout", h.StartCheckout, body, "Idempotency-Key", "cs_test_1")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if got.PaymentRef != "cs_test_1" || got.HoldKey != "k1" || got.Currency != "eur" || got.AmountCents != 4500 {
		t.Fatalf("service args: %+v", got)
	}
	if got.Meta.SessionType != "vod" || got.Meta.LiveMinutes != 30 || len(got.Meta.SlotIDs) != 2 || got.Meta.Email != "x@example.com" {
		t.Fatalf("meta: %+v", got.Meta)
	}

	// Body payment_ref wins over the header.
	w = do(t, http.MethodPost, "/checkout", "/checkout", h.StartCheckout, `{"hold_key":"k1","slot_id":"a","payment_ref":"cs_body"}`, "Idempotency-Key", "cs_hdr")
	if w.Code != http.StatusCreated || got.PaymentRef != "cs_body" {
		t.Fatalf("payment ref precedence: %d %q", w.Code, got.PaymentRef)
	}

	cases := []struct {
		body   string
		status int
		code   string
	}{
		{`{"hold_key":"late","slot_id":"a","payment_ref":"p"}`, http.StatusGone, ErrCodeHoldExpired},
		{`{"hold_key":"other","slot_id":"a","payment_ref":"p"}`, http.StatusConflict, ErrCodeHoldMismatch},
		{`{"hold_key":"k1","slot_id":"a"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{`{"slot_id":"a","payment_ref":"p"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{`{"hold_key":"k1","slot_id":"a","payment_ref":"p","session_type":"vod\r\nbcc: x@example.com"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{`{"hold_key":"k1","slot_id":"a","payment_ref":"p","session_type":"` + strings.Repeat("v", 65) + `"}`, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		w = do(t, http.MethodPost, "/checkout", "/checkout", h.StartCheckout, tc.body)
		if w.Code != tc.status || decodeErr(t, w).Code != tc.code {
			t.Fatalf("%s: %d %s", tc.body, w.Code, w.Body)
		}
	}
}
