// Presence HTTP handler.
//
// POST /presence records that a visitor's widget is open (active) or has been
// closed, refreshing the newest conversation for the (property, visitor)
// pair. The widget sends these on a timer while the chat window is open; that
// client-side timer is also the retry mechanism for transient failures, so
// the server never retries.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careassist/handoff-backend/internal/services"
)

// PresenceRequest is the JSON payload for a presence ping.
type PresenceRequest struct {
	PropertyID string `json:"propertyId" binding:"required" example:"3f1c8f2e-9d4a-4c62-8f21-90ab52c7f001"`
	VisitorID  string `json:"visitorId"  binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	SessionID  string `json:"sessionId"  binding:"required" example:"sess_8Qn3xT"`
	Status     string `json:"status"     binding:"required" example:"active"`
}

// PresenceResponse acknowledges a presence ping. ConversationID is null when
// the pair has no conversation yet; Updated reports whether a write occurred.
type PresenceResponse struct {
	OK             bool    `json:"ok"`
	ConversationID *string `json:"conversationId"`
	Updated        bool    `json:"updated"`
	Status         string  `json:"status,omitempty"`
}

// UpdatePresence godoc
// @ID          updatePresence
// @Summary     Record widget presence
// @Description Propagates a widget open/closed signal into the visitor's newest conversation.
// @Tags        Presence
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PresenceRequest  true  "Presence payload"
//
// @Success     200  {object}  handlers.PresenceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session mismatch"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /presence [post]
func (h *Handlers) UpdatePresence(c *gin.Context) {
	var req PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "propertyId, visitorId, sessionId and status are required")
		return
	}

	ack, err := h.presenceSvc.Update(c.Request.Context(), req.PropertyID, req.VisitorID, req.SessionID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus),
			errors.Is(err, services.ErrInvalidVisitor),
			errors.Is(err, services.ErrPropertyMismatch):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrSessionMismatch):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodePresenceFailed, "presence update failed")
		}
		return
	}

	resp := PresenceResponse{OK: true, Updated: ack.Updated, Status: ack.Status}
	if ack.ConversationID != "" {
		id := ack.ConversationID
		resp.ConversationID = &id
	}
	ok(c, http.StatusOK, resp)
}
