// Package middleware contains the Gin middleware shared by the booking API.
//
// This file implements RedactingLogger, the access logger used in
// production. Booking traffic carries customer emails, Discord handles, hold
// keys, and payment signatures; none of them may reach the logs verbatim.
// Bodies are never logged. Query values and header values are scrubbed with
// pattern rules, and credential headers are masked outright.
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions extends the built-in scrub rules.
type RedactOptions struct {
	// MaskHeaders are additional header names (case-insensitive) whose values
	// are replaced by "[REDACTED]".
	MaskHeaders []string
	// MaskParams are additional query parameter names whose values are
	// replaced by "[REDACTED]".
	MaskParams []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs ids first so the loose phone rule cannot bite into them.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				out[v] = struct{}{}
			}
		}
	}
	return out
}

// RedactingLogger logs one line per request with scrubbed query and headers.
// Authorization, Cookie, Set-Cookie, Stripe-Signature, and Idempotency-Key
// are always masked; the hold_key and email query parameters likewise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{
		"authorization", "cookie", "set-cookie", "stripe-signature", strings.ToLower(HeaderIdempotencyKey),
	}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"hold_key", "email", "discord"}, opts.MaskParams)

	scrubQuery := func(raw string) string {
		if raw == "" {
			return ""
		}
		vals, err := url.ParseQuery(raw)
		if err != nil {
			return redact(raw)
		}
		for k, vv := range vals {
			_, masked := maskParams[strings.ToLower(k)]
			for i := range vv {
				if masked {
					vv[i] = "[REDACTED]"
				} else {
					vv[i] = redact(vv[i])
				}
			}
		}
		// Encode escapes the brackets; keep the log readable.
		q, _ := url.QueryUnescape(vals.Encode())
		return q
	}

	return func(c *gin.Context) {
		start := time.Now()
		query := truncate(scrubQuery(c.Request.URL.RawQuery), maxQueryLogLength)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400 && status != http.StatusConflict && status != http.StatusGone:
			ev = log.Warn()
		}

		rid := c.Writer.Header().Get(requestIDHeader)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}
		ev.
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Bool("admin", IsAdmin(c)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
