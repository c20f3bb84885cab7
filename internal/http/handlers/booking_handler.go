// Booking HTTP handlers.
//
//   - POST /internal/bookings/finalize       (payment confirmation contract)
//   - GET  /admin/bookings                   (paginated, weak ETag)
//   - POST /admin/bookings/{id}/reschedule   (forced move onto new slots)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/http/middleware"
	"github.com/tbourn/go-coaching-backend/internal/services"
	"github.com/tbourn/go-coaching-backend/internal/utils"
)

// headerReplay is set on finalize answers for an already processed payment.
const headerReplay = "Idempotent-Replay"

//
// DTOs
//

// FinalizeRequest is the payment confirmation contract. PaymentRef may be
// omitted when the Idempotency-Key header carries it.
type FinalizeRequest struct {
	services.BookingMeta
	AmountCents int64  `json:"amount_cents" binding:"min=0" example:"4500"`
	Currency    string `json:"currency,omitempty" binding:"omitempty,max=8" example:"eur"`
	PaymentRef  string `json:"payment_ref,omitempty" binding:"omitempty,max=255" example:"pi_3Nx"`
	Provider    string `json:"provider,omitempty" binding:"omitempty,max=32" example:"stripe"`
}

// RescheduleRequest moves a booking onto the block starting at a slot id or
// start instant.
type RescheduleRequest struct {
	SlotID    string     `json:"slot_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty" example:"2030-01-08T15:00:00Z"`
	Minutes   int        `json:"minutes" binding:"required,min=1" example:"60"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListBookingsResponse wraps a page of bookings and pagination information.
type ListBookingsResponse struct {
	Bookings   []domain.Booking `json:"bookings"`
	Pagination Pagination       `json:"pagination"`
}

// FinalizeBooking godoc
// @ID          finalizeBooking
// @Summary     Confirm a payment
// @Description Marks the booked slots taken and records the paid booking exactly once per payment reference. Redelivery answers 200 with duplicate=true. A payment whose slots were lost to another booking is still recorded with slot_conflict=true.
// @Tags        Bookings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  true  "Payment reference"
// @Param       body  body  handlers.FinalizeRequest  true  "Payment confirmation"
// @Success     200  {object}  services.FinalizeResult
// @Header      200  {string}  Idempotent-Replay  "true when the payment was already processed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /internal/bookings/finalize [post]
func (h *Handlers) FinalizeBooking(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ref := paymentRef(c, req.PaymentRef)
	if ref == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment_ref or Idempotency-Key required")
		return
	}
	res, err := h.bookings.FinalizeBooking(c.Request.Context(), req.BookingMeta, req.AmountCents,
		strings.ToLower(strings.TrimSpace(req.Currency)), ref, strings.TrimSpace(req.Provider))
	if err != nil {
		serviceError(c, err)
		return
	}
	if res.Duplicate || middleware.IsReplay(c) {
		c.Header(headerReplay, "true")
	}
	ok(c, http.StatusOK, res)
}

// ListBookings godoc
// @ID          listBookings
// @Summary     List bookings (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Bookings
// @Produce     json
// @Security    BearerAuth
// @Param       status         query   string  false  "Filter by status"  Enums(paid, unpaid)
// @Param       page           query   int     false  "Page number"       minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"    minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListBookingsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/bookings [get]
func (h *Handlers) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	status := domain.BookingStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", domain.BookingPaid, domain.BookingUnpaid:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be paid or unpaid")
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort).
	if count, maxTS, err := h.bookings.BookingsStats(ctx, status); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"bookings:%s:%d:%d:%d:%d"`, status, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.bookings.ListBookings(ctx, status, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListBookingsResponse{
		Bookings: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// RescheduleBooking godoc
// @ID          rescheduleBooking
// @Summary     Move a booking
// @Description Moves the booking onto the block starting at slot_id or start_time, ignoring holds and blocked status. Old slots are freed.
// @Tags        Bookings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Booking ID"
// @Param       body  body  handlers.RescheduleRequest  true  "New start"
// @Success     200  {object}  domain.Booking
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Booking or slot not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/bookings/{id}/reschedule [post]
func (h *Handlers) RescheduleBooking(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ref, valid := startRef(req.SlotID, req.StartTime)
	if id == "" || !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id and slot_id or start_time required")
		return
	}
	b, err := h.bookings.RescheduleBooking(c.Request.Context(), id, ref, req.Minutes)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}
