package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxKeyAdmin = "auth.admin"

// AdminToken guards the internal and admin routes with a static bearer
// token. An empty token disables the routes entirely (503) rather than
// leaving them open.
func AdminToken(token string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(token))
	return func(c *gin.Context) {
		if len(want) == 0 {
			abortJSON(c, http.StatusServiceUnavailable, "admin_disabled", "admin API not configured")
			return
		}
		got, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			abortJSON(c, http.StatusForbidden, "forbidden", "invalid token")
			return
		}
		c.Set(ctxKeyAdmin, true)
		c.Next()
	}
}

// IsAdmin reports whether AdminToken authenticated this request.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ctxKeyAdmin)
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

// abortJSON writes the standard error envelope from middleware, which cannot
// import the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
