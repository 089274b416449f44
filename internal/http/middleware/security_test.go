package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securityRouter(opt SecurityOptions, pre gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := securityRouter(SecurityOptions{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	// Optional groups stay off by default.
	for _, k := range []string{"Permissions-Policy", "X-Permitted-Cross-Domain-Policies", "Cache-Control", "Pragma", "Expires", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s: %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("added when absent", func(t *testing.T) {
		r := securityRouter(SecurityOptions{}, func(c *gin.Context) {
			c.Header("X-Request-ID", "rid-1")
			c.Next()
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
			t.Fatalf("expose header = %q", got)
		}
	})

	t.Run("appended to existing", func(t *testing.T) {
		r := securityRouter(SecurityOptions{}, func(c *gin.Context) {
			c.Header("X-Request-ID", "rid-2")
			c.Header("Access-Control-Expose-Headers", "ETag")
			c.Next()
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "ETag, X-Request-ID" {
			t.Fatalf("expose header = %q", got)
		}
	})

	t.Run("not duplicated", func(t *testing.T) {
		r := securityRouter(SecurityOptions{}, func(c *gin.Context) {
			c.Header("X-Request-ID", "rid-3")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, ETag")
			c.Next()
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID, ETag" {
			t.Fatalf("expose header changed: %q", got)
		}
	})
}

func TestSecurityHeaders_OptionalGroups(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := securityRouter(SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil)

	// HTTPS via TLS state.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.TLS = &tls.ConnectionState{}
	r.ServeHTTP(w, req)

	h := w.Header()
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %#v", h)
	}
	hsts := h.Get("Strict-Transport-Security")
	if !strings.Contains(hsts, "max-age="+strconv.Itoa(86400)) || !strings.Contains(hsts, "includeSubDomains") {
		t.Fatalf("hsts = %q", hsts)
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := securityRouter(SecurityOptions{EnableHSTS: true}, nil)

	// Plain HTTP never gets HSTS.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS emitted on plain HTTP")
	}

	// Proxy-terminated TLS counts, and the zero max-age falls back to 180d.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	r.ServeHTTP(w, req)
	hsts := w.Header().Get("Strict-Transport-Security")
	wantAge := strconv.Itoa(int((180 * 24 * time.Hour).Seconds()))
	if !strings.Contains(hsts, "max-age="+wantAge) {
		t.Fatalf("forwarded-proto hsts = %q", hsts)
	}
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain request should not be https")
	}
	req.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(req) {
		t.Fatalf("forwarded https not detected")
	}
	req.Header.Set("X-Forwarded-Proto", "http")
	if isHTTPS(req) {
		t.Fatalf("forwarded http misdetected")
	}
	req.Header.Del("X-Forwarded-Proto")
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatalf("tls request not detected")
	}
}
