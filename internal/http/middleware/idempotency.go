// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the widget's unsafe endpoints
// (message POSTs retried on flaky connections). It validates an
// Idempotency-Key request header, optionally performs a caller-defined lookup
// to detect previously completed requests, and annotates the request context
// so downstream handlers can read the normalized key (GetIdempotencyKey),
// detect replays (IsReplay), and bypass rate limiting when a replay is
// served. Persistence stays behind the narrow IdempotencyLookup type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header widget clients use to convey an
// idempotency key for unsafe operations. The value is expected to be stable
// for a given semantic operation so retries can be safely deduplicated.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderVisitorID carries the widget's visitor id so the replay lookup can
// run before the JSON body is parsed.
const HeaderVisitorID = "X-Visitor-ID"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates
// presence. Handlers should prefer this over reading the header directly.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request would replay a previously completed
// operation. When true, handlers short-circuit and return the previously
// persisted result.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it replays a completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation for IdempotencyValidator.
// TTL enforcement is out of scope here and belongs inside the lookup.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative
	// RFC7230-like token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a successful, still-valid result exists
// for (visitorID, conversationID, key) at the given time. Implementations
// typically consult a database record with a TTL window. Return an error only
// for lookup failures; those should not block normal processing.
type IdempotencyLookup func(ctx context.Context, visitorID, conversationID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the request context, and optionally checks for a prior
// completed request via the supplied lookup.
//
// Behavior:
//   - Absent header: no-op.
//   - Invalid header: 400 with a compact error body.
//   - Detected replay: replay + rate-bypass flags are set; the handler stays
//     in control of serving the cached payload.
//
// The visitor identity comes from the X-Visitor-ID header and the
// conversation from the :id route param, both available before body parsing.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		// RFC-7230-ish token + common safe chars.
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			visitorID := c.GetHeader(HeaderVisitorID)
			conversationID := c.Param("id") // POST /conversations/:id/messages
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), visitorID, conversationID, key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
