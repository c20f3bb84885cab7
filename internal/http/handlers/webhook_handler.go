package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/payments"
)

// maxWebhookBody caps the Stripe event payload.
const maxWebhookBody = 1 << 20

// StripeWebhook godoc
// @ID          stripeWebhook
// @Summary     Stripe event callback
// @Description Verifies Stripe-Signature and finalizes the booking for paid checkout sessions. Events that need no action are acknowledged with handled=false.
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature  header  string  true  "Stripe signature header"
// @Success     200  {object}  payments.Outcome
// @Failure     400  {object}  handlers.ErrorResponse  "Bad signature or payload"
// @Failure     503  {object}  handlers.ErrorResponse  "Webhook not configured"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/stripe [post]
func (h *Handlers) StripeWebhook(c *gin.Context) {
	if h.webhook == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "payments webhook not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(payload) > maxWebhookBody {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable or oversized payload")
		return
	}
	out, err := h.webhook.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, payments.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "payments webhook not configured")
	case errors.Is(err, payments.ErrInvalidSignature):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "signature verification failed")
	case err != nil:
		// Non-2xx makes Stripe redeliver; finalize is idempotent.
		serviceError(c, err)
	default:
		ok(c, http.StatusOK, out)
	}
}
