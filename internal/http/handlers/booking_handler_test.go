package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/http/middleware"
	"github.com/tbourn/go-coaching-backend/internal/services"
)

func TestFinalizeBooking(t *testing.T) {
	type call struct {
		meta     services.BookingMeta
		amount   int64
		currency string
		ref      string
		provider string
	}
	var got call
	seen := map[string]bool{}
	h := newTestHandlers(Services{Bookings: stubBookings{
		finalize: func(_ context.Context, meta services.BookingMeta, amount int64, currency, ref, provider string) (*services.FinalizeResult, error) {
			got = call{meta, amount, currency, ref, provider}
			if len(meta.SlotIDs) == 0 && meta.SlotID == "" {
				return nil, services.ErrNoSlots
			}
			dup := seen[ref]
			seen[ref] = true
			return &services.FinalizeResult{Booking: &domain.Booking{ID: "b1", PaymentRef: ref, Status: domain.BookingPaid}, Duplicate: dup}, nil
		},
	}})

	body := `{"slot_ids":["a","b"],"session_type":"live","live_minutes":30,"amount_cents":9000,"currency":"EUR","provider":"stripe"}`
	w := do(t, http.MethodPost, "/finalize", "/finalize", h.FinalizeBooking, body, "Idempotency-Key", "pi_1")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if got.ref != "pi_1" || got.amount != 9000 || got.currency != "eur" || got.provider != "stripe" || got.meta.SessionType != "live" {
		t.Fatalf("service args: %+v", got)
	}
	if w.Header().Get(headerReplay) != "" {
		t.Fatalf("first delivery must not be marked as replay")
	}
	var res services.FinalizeResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Booking == nil || res.Duplicate {
		t.Fatalf("body: %+v err=%v", res, err)
	}

	// Redelivery: same status, marked replay.
	w = do(t, http.MethodPost, "/finalize", "/finalize", h.FinalizeBooking, body, "Idempotency-Key", "pi_1")
	if w.Code != http.StatusOK || w.Header().Get(headerReplay) != "true" {
		t.Fatalf("replay: %d %v", w.Code, w.Header())
	}

	w = do(t, http.MethodPost, "/finalize", "/finalize", h.FinalizeBooking, `{"amount_cents":1}`, "Idempotency-Key", "pi_2")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no slots: %d", w.Code)
	}
	w = do(t, http.MethodPost, "/finalize", "/finalize", h.FinalizeBooking, `{"slot_id":"a"}`)
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("missing ref: %d %s", w.Code, w.Body)
	}
	w = do(t, http.MethodPost, "/finalize", "/finalize", h.FinalizeBooking, `{"slot_id":"a","amount_cents":-5}`, "Idempotency-Key", "pi_3")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: %d", w.Code)
	}
}

func TestFinalizeBooking_UsesValidatedIdempotencyKey(t *testing.T) {
	var gotRef string
	h := newTestHandlers(Services{Bookings: stubBookings{
		finalize: func(_ context.Context, _ services.BookingMeta, _ int64, _, ref, _ string) (*services.FinalizeResult, error) {
			gotRef = ref
			return &services.FinalizeResult{}, nil
		},
	}})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/finalize",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Required: true}, func(context.Context, string) (bool, error) { return true, nil }),
		h.FinalizeBooking,
	)
	req := httptest.NewRequest(http.MethodPost, "/finalize", strings.NewReader(`{"slot_id":"a"}`))
	req.Header.Set("Idempotency-Key", "  pi_9  ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || gotRef != "pi_9" || w.Header().Get(headerReplay) != "true" {
		t.Fatalf("status=%d ref=%q replay=%q", w.Code, gotRef, w.Header().Get(headerReplay))
	}
}

func TestListBookings_PaginationAndETag(t *testing.T) {
	updated := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	var gotStatus domain.BookingStatus
	var gotPage, gotSize, listCalls int
	h := newTestHandlers(Services{Bookings: stubBookings{
		stats: func(_ context.Context, st domain.BookingStatus) (int64, *time.Time, error) {
			return 45, &updated, nil
		},
		list: func(_ context.Context, st domain.BookingStatus, page, size int) ([]domain.Booking, int64, error) {
			listCalls++
			gotStatus, gotPage, gotSize = st, page, size
			return []domain.Booking{{ID: "b1"}, {ID: "b2"}}, 45, nil
		},
	}})

	w := do(t, http.MethodGet, "/bookings", "/bookings?status=PAID&page=2&page_size=20", h.ListBookings, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if gotStatus != domain.BookingPaid || gotPage != 2 || gotSize != 20 {
		t.Fatalf("service args: %q %d %d", gotStatus, gotPage, gotSize)
	}
	var resp ListBookingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	want := Pagination{Page: 2, PageSize: 20, Total: 45, TotalPages: 3, HasNext: true}
	if resp.Pagination != want || len(resp.Bookings) != 2 {
		t.Fatalf("unexpected body: %+v", resp)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag")
	}
	w = do(t, http.MethodGet, "/bookings", "/bookings?status=paid&page=2&page_size=20", h.ListBookings, nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified || listCalls != 1 {
		t.Fatalf("conditional: %d calls=%d", w.Code, listCalls)
	}
	// A different page has a different tag.
	w = do(t, http.MethodGet, "/bookings", "/bookings?status=paid&page=3&page_size=20", h.ListBookings, nil, "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("other page: %d", w.Code)
	}

	w = do(t, http.MethodGet, "/bookings", "/bookings?status=refunded", h.ListBookings, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad status: %d", w.Code)
	}
}

func TestListBookings_StatsFailureStillLists(t *testing.T) {
	h := newTestHandlers(Services{Bookings: stubBookings{
		list: func(context.Context, domain.BookingStatus, int, int) ([]domain.Booking, int64, error) {
			return []domain.Booking{}, 0, nil
		},
	}})
	w := do(t, http.MethodGet, "/bookings", "/bookings", h.ListBookings, nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != "" {
		t.Fatalf("status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}

	h = newTestHandlers(Services{Bookings: stubBookings{
		list: func(context.Context, domain.BookingStatus, int, int) ([]domain.Booking, int64, error) {
			return nil, 0, errors.New("db down")
		},
	}})
	w = do(t, http.MethodGet, "/bookings", "/bookings", h.ListBookings, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("list failure: %d", w.Code)
	}
}

func TestRescheduleBooking(t *testing.T) {
	var gotID string
	var gotRef services.StartRef
	h := newTestHandlers(Services{Bookings: stubBookings{
		reschedule: func(_ context.Context, id string, ref services.StartRef, minutes int) (*domain.Booking, error) {
			gotID, gotRef = id, ref
			if id == "missing" {
				return nil, services.ErrBookingNotFound
			}
			return &domain.Booking{ID: id, ScheduledMinutes: minutes}, nil
		},
	}})

	w := do(t, http.MethodPost, "/bookings/:id/reschedule", "/bookings/b1/reschedule", h.RescheduleBooking, `{"slot_id":"s9","minutes":60}`)
	if w.Code != http.StatusOK || gotID != "b1" || gotRef.SlotID != "s9" {
		t.Fatalf("reschedule: %d id=%q ref=%+v", w.Code, gotID, gotRef)
	}
	w = do(t, http.MethodPost, "/bookings/:id/reschedule", "/bookings/missing/reschedule", h.RescheduleBooking, `{"slot_id":"s9","minutes":60}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing booking: %d", w.Code)
	}
	w = do(t, http.MethodPost, "/bookings/:id/reschedule", "/bookings/b1/reschedule", h.RescheduleBooking, `{"minutes":60}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no start: %d", w.Code)
	}
}
