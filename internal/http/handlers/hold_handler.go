// Hold and checkout HTTP handlers.
//
//   - POST /holds           (reserve a block of slots under a hold key)
//   - POST /holds/release   (drop a hold by key or slot ids)
//   - POST /checkout        (verify the hold and record a pending booking)
//
// Contention is an expected outcome here: 409 slot_unavailable and
// hold_mismatch, 410 hold_expired. Clients reselect a time on any of them.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/http/middleware"
	"github.com/tbourn/go-coaching-backend/internal/services"
)

//
// DTOs
//

// HoldRequest reserves minutes starting at a slot id or a start instant.
type HoldRequest struct {
	SlotID    string     `json:"slot_id,omitempty" example:"1f0c3c1e-7a51-4a4b-9b55-44b1b33b2f0a"`
	StartTime *time.Time `json:"start_time,omitempty" example:"2030-01-07T13:00:00Z"`
	Minutes   int        `json:"minutes" binding:"required,min=1" example:"60"`
	// HoldKey extends an existing hold when supplied.
	HoldKey string `json:"hold_key,omitempty" binding:"omitempty,max=64"`
}

// ReleaseResponse reports how many slots were released.
type ReleaseResponse struct {
	Released int64 `json:"released" example:"4"`
}

// CheckoutRequest opens a pending booking for a held block. PaymentRef may
// be omitted when an Idempotency-Key header is sent.
type CheckoutRequest struct {
	services.BookingMeta
	HoldKey     string `json:"hold_key" binding:"required,max=64"`
	PaymentRef  string `json:"payment_ref,omitempty" binding:"omitempty,max=255" example:"cs_test_a1b2"`
	Provider    string `json:"provider,omitempty" binding:"omitempty,max=32" example:"stripe"`
	AmountCents int64  `json:"amount_cents" binding:"min=0" example:"4500"`
	Currency    string `json:"currency,omitempty" binding:"omitempty,max=8" example:"eur"`
}

// paymentRef prefers the body value and falls back to the validated
// Idempotency-Key, then the raw header.
func paymentRef(c *gin.Context, body string) string {
	if ref := strings.TrimSpace(body); ref != "" {
		return ref
	}
	if k, found := middleware.GetIdempotencyKey(c); found {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

// CreateHold godoc
// @ID          createHold
// @Summary     Hold a block of slots
// @Description Reserves every slot of the session for the hold TTL. Repeating the call with the same hold_key extends the hold.
// @Tags        Holds
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.HoldRequest  true  "Hold request"
// @Success     200  {object}  services.Hold
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Slot not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot unavailable"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /holds [post]
func (h *Handlers) CreateHold(c *gin.Context) {
	var req HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ref, valid := startRef(req.SlotID, req.StartTime)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "slot_id or start_time required")
		return
	}
	hold, err := h.holds.HoldSlots(c.Request.Context(), ref, req.Minutes, services.HoldOptions{HoldKey: strings.TrimSpace(req.HoldKey)})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, hold)
}

// ReleaseHold godoc
// @ID          releaseHold
// @Summary     Release a hold
// @Description Clears the hold on every slot carrying hold_key, or on the listed slots. Releasing an unknown or expired hold is not an error.
// @Tags        Holds
// @Accept      json
// @Produce     json
// @Param       body  body  services.ReleaseRequest  true  "Release request"
// @Success     200  {object}  handlers.ReleaseResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /holds/release [post]
func (h *Handlers) ReleaseHold(c *gin.Context) {
	var req services.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	n, err := h.holds.ReleaseHold(c.Request.Context(), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ReleaseResponse{Released: n})
}

// StartCheckout godoc
// @ID          startCheckout
// @Summary     Start checkout for a held block
// @Description Verifies hold_key still holds every slot and records an unpaid booking keyed by the payment reference.
// @Tags        Checkout
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Payment reference when payment_ref is omitted"
// @Param       body  body  handlers.CheckoutRequest  true  "Checkout request"
// @Success     201  {object}  domain.Booking
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Slot not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Held by another checkout"
// @Failure     410  {object}  handlers.ErrorResponse  "Hold expired"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /checkout [post]
func (h *Handlers) StartCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ref := paymentRef(c, req.PaymentRef)
	if ref == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment_ref or Idempotency-Key required")
		return
	}
	b, err := h.bookings.StartCheckout(c.Request.Context(), services.CheckoutRequest{
		HoldKey:     req.HoldKey,
		PaymentRef:  ref,
		Provider:    strings.TrimSpace(req.Provider),
		AmountCents: req.AmountCents,
		Currency:    strings.ToLower(strings.TrimSpace(req.Currency)),
		Meta:        req.BookingMeta,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}
