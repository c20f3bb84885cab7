// Package middleware contains the Gin middleware shared by the booking API.
//
// This file validates the Idempotency-Key header on the internal finalize
// route. The key is the payment reference, so a lookup against the
// processed-event ledger tells whether the payment was already turned into a
// booking. Replays are marked on the context (IsReplay) and skip rate
// limiting; the finalize transaction itself stays the source of truth.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderIdempotencyKey carries the payment reference on finalize calls.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// Payment references look like "cs_test_a1B2", "pi_3N...", or UUIDs.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; values <= 0 mean 255 (the ledger column width).
	MaxLen int
	// Pattern restricts allowed characters; nil uses a token-safe default.
	Pattern *regexp.Regexp
	// Required rejects requests without the header.
	Required bool
}

// ProcessedLookup reports whether key was already processed. Errors are
// logged and treated as "not processed".
type ProcessedLookup func(ctx context.Context, key string) (bool, error)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether the key was found in the ledger.
func IsReplay(c *gin.Context) bool { return c.GetBool(ctxKeyIdemReplay) }

// IsRateBypass reports whether rate limiting should skip this request.
func IsRateBypass(c *gin.Context) bool { return c.GetBool(ctxKeyRateBypass) }

// IdempotencyValidator validates and stashes the Idempotency-Key header and,
// when lookup is set, marks requests whose key is already in the ledger.
func IdempotencyValidator(opts IdempotencyOptions, lookup ProcessedLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 255
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if opts.Required {
				abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "Idempotency-Key header required")
				return
			}
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			seen, err := lookup(c.Request.Context(), key)
			if err != nil {
				log.Warn().Err(err).Str("payment_ref", key).Msg("idempotency lookup failed")
			}
			if seen {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
