package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_ScrubsQueryAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{" X-Session-Token "}}))
	r.GET("/conversations", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/conversations?visitor=141add05-4415-4938-b5a1-17e0d3171aff&email=jane.doe%40clinic.example&phone=%2B1+212-555-1212", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Cookie", "sid=abc")
	req.Header.Set("X-Session-Token", "sess_8Qn3xT")
	req.Header.Set("X-Contact", "reach me at jane.doe@clinic.example")
	r.ServeHTTP(w, req)

	logs := buf.String()
	for _, leaked := range []string{
		"141add05-4415-4938-b5a1-17e0d3171aff",
		"jane.doe@clinic.example",
		"212-555-1212",
		"secret-token",
		"sid=abc",
		"sess_8Qn3xT",
	} {
		if strings.Contains(logs, leaked) {
			t.Fatalf("log leaked %q:\n%s", leaked, logs)
		}
	}
	if !strings.Contains(logs, "[REDACTED:id]") ||
		!strings.Contains(logs, "[REDACTED:email]") ||
		!strings.Contains(logs, "[REDACTED:phone]") {
		t.Fatalf("missing redaction markers:\n%s", logs)
	}
	// Fully masked headers use the bare marker.
	if !strings.Contains(logs, `"Authorization":"[REDACTED]"`) ||
		!strings.Contains(logs, `"X-Session-Token":"[REDACTED]"`) {
		t.Fatalf("masked headers not fully redacted:\n%s", logs)
	}
}

func TestRedactingLogger_LevelsAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/teapot", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	r.GET("/die", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/teapot", "/die"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(requestIDHeader, "rid-"+path[1:])
		r.ServeHTTP(w, req)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"level":"info"`) ||
		!strings.Contains(logs, `"level":"warn"`) ||
		!strings.Contains(logs, `"level":"error"`) {
		t.Fatalf("missing log levels:\n%s", logs)
	}
	if !strings.Contains(logs, `"request_id":"rid-ok"`) {
		t.Fatalf("request id not carried into log:\n%s", logs)
	}
	// Raw path fallback for unmatched routes.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gone", nil))
	if !strings.Contains(buf.String(), `"path":"/gone"`) {
		t.Fatalf("missing raw path fallback:\n%s", buf.String())
	}
}
