package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/careassist/handoff-backend/internal/services"
)

func sweepRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/conversations/sweep", h.SweepConversations)
	return r
}

func TestSweepConversations_EmptyBodyIsValid(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotProperty string
	var gotSeconds int
	svc := stubSweepSvc{
		sweep: func(_ context.Context, uid, propertyID string, staleSeconds int) (services.SweepResult, error) {
			if uid != "u-1" {
				t.Fatalf("userID = %q", uid)
			}
			gotProperty, gotSeconds = propertyID, staleSeconds
			return services.SweepResult{ClosedCount: 0, StaleSeconds: 45, PropertyIDs: []string{}}, nil
		},
	}
	h := New(stubPresenceSvc{}, stubQueueSvc{}, svc, stubConvSvc{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations/sweep", nil)
	req.Header.Set("X-User-ID", "u-1")
	sweepRouter(h).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if gotProperty != "" || gotSeconds != 0 {
		t.Fatalf("defaults forwarded: property=%q seconds=%d", gotProperty, gotSeconds)
	}

	// propertyIds must serialize as [] rather than null even when empty.
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	ids, ok := raw["propertyIds"].([]any)
	if !ok || len(ids) != 0 {
		t.Fatalf("propertyIds = %v", raw["propertyIds"])
	}
}

func TestSweepConversations_MalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newStubHandlers()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations/sweep", bytes.NewBufferString("{not json"))
	sweepRouter(h).ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body -> %d", w.Code)
	}
}

func TestSweepConversations_ScopedRequestAndResult(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := stubSweepSvc{
		sweep: func(_ context.Context, _, propertyID string, staleSeconds int) (services.SweepResult, error) {
			if propertyID != "p-9" || staleSeconds != 120 {
				t.Fatalf("forwarded property=%q seconds=%d", propertyID, staleSeconds)
			}
			return services.SweepResult{ClosedCount: 3, StaleSeconds: 120, PropertyIDs: []string{"p-9"}}, nil
		},
	}
	h := New(stubPresenceSvc{}, stubQueueSvc{}, svc, stubConvSvc{})

	w := httptest.NewRecorder()
	body := `{"propertyId":"p-9","staleSeconds":120}`
	req := httptest.NewRequest(http.MethodPost, "/conversations/sweep", bytes.NewBufferString(body))
	sweepRouter(h).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var out SweepResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !out.OK || out.ClosedCount != 3 || out.StaleSeconds != 120 {
		t.Fatalf("unexpected result: %#v", out)
	}
	if len(out.PropertyIDs) != 1 || out.PropertyIDs[0] != "p-9" {
		t.Fatalf("propertyIds = %v", out.PropertyIDs)
	}
}

func TestSweepConversations_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"outside scope", services.ErrForbiddenScope, http.StatusForbidden, ErrCodeForbidden},
		{"storage failure", errors.New("boom"), http.StatusInternalServerError, ErrCodeSweepFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubSweepSvc{
				sweep: func(context.Context, string, string, int) (services.SweepResult, error) {
					return services.SweepResult{}, tc.err
				},
			}
			h := New(stubPresenceSvc{}, stubQueueSvc{}, svc, stubConvSvc{})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/conversations/sweep", bytes.NewBufferString(`{"propertyId":"p-1"}`))
			sweepRouter(h).ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var out ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
				t.Fatalf("json: %v", err)
			}
			if out.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", out.Code, tc.wantCode)
			}
		})
	}
}
