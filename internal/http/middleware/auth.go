// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the dashboard-facing
// endpoints. Widget endpoints authorize per request against visitor session
// tokens inside the service layer and do not pass through here.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// userIDKey is the Gin context key under which the authenticated dashboard
// user id is stored. Logger() and the rate limiter read the same key.
const userIDKey = "userID"

// UserID returns the authenticated dashboard user id set by RequireAuth.
// The second return value indicates presence.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// RequireAuth returns a Gin middleware that validates an HS256 bearer token
// and resolves the caller's identity from its subject claim.
//
// Behavior:
//   - Missing or malformed Authorization header, an invalid signature, an
//     expired token, or an empty subject all abort with 401 and a compact
//     JSON body. The principal's id is never guessed or defaulted.
//   - On success the subject is stored in the Gin context under "userID".
func RequireAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		token, err := jwt.Parse(raw,
			func(t *jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{"HS256"}),
		)
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(sub) == "" {
			abortUnauthorized(c, "invalid token claims")
			return
		}

		c.Set(userIDKey, sub)
		c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value, returning "" when the scheme is absent or different.
func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// abortUnauthorized writes the standard 401 envelope.
func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
