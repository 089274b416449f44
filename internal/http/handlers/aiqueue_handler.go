// AI-queue HTTP handlers.
//
// POST /ai-queue carries the widget-side queue/clear/pause/resume actions
// that implement human priority over the auto-responder; GET
// /conversations/:id/ai-queue serves the dashboard the countdown snapshot.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careassist/handoff-backend/internal/services"
)

// QueueActionRequest is the JSON payload for an AI-queue action.
type QueueActionRequest struct {
	ConversationID string `json:"conversationId" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	VisitorID      string `json:"visitorId"      binding:"required" example:"9c40b6f0-55f7-4f3a-9a1e-6a65b3b20a44"`
	SessionID      string `json:"sessionId"      binding:"required" example:"sess_8Qn3xT"`
	Action         string `json:"action"         binding:"required" example:"queue"`
	Preview        string `json:"preview,omitempty"  example:"Thanks for reaching out! We can help with..."`
	WindowMS       *int   `json:"windowMs,omitempty" example:"8000"`
}

// QueueActionResponse acknowledges the action performed.
type QueueActionResponse struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
}

// QueueStateResponse is the dashboard countdown view of a conversation's
// AI-queue state.
type QueueStateResponse struct {
	State       string  `json:"state"`
	QueuedAt    *string `json:"queuedAt,omitempty"`
	Preview     string  `json:"preview,omitempty"`
	WindowMS    *int    `json:"windowMs,omitempty"`
	RemainingMS *int    `json:"remainingMs,omitempty"`
	Paused      bool    `json:"paused"`
}

// QueueAction godoc
// @ID          queueAction
// @Summary     Apply an AI-queue action
// @Description Queues, clears, pauses, or resumes the pending AI reply of a conversation.
// @Tags        AIQueue
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.QueueActionRequest  true  "Queue action payload"
//
// @Success     200  {object}  handlers.QueueActionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session or conversation mismatch"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /ai-queue [post]
func (h *Handlers) QueueAction(c *gin.Context) {
	var req QueueActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversationId, visitorId, sessionId and action are required")
		return
	}

	err := h.queueSvc.Apply(c.Request.Context(), req.ConversationID, req.VisitorID, req.SessionID, req.Action, req.Preview, req.WindowMS)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAction),
			errors.Is(err, services.ErrInvalidVisitor),
			errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrSessionMismatch),
			errors.Is(err, services.ErrConversationMismatch):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeQueueFailed, "queue action failed")
		}
		return
	}

	ok(c, http.StatusOK, QueueActionResponse{OK: true, Action: req.Action})
}

// QueueState godoc
// @ID          queueState
// @Summary     Read a conversation's AI-queue state
// @Description Returns the pending-reply countdown snapshot for dashboard rendering.
// @Tags        AIQueue
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.QueueStateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not owner or agent"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/ai-queue [get]
func (h *Handlers) QueueState(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	snap, err := h.convSvc.Queue(c.Request.Context(), userID(c), convID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrForbiddenScope):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "queue state read failed")
		}
		return
	}

	resp := QueueStateResponse{
		State:       string(snap.Phase),
		Preview:     snap.Preview,
		WindowMS:    snap.WindowMS,
		RemainingMS: snap.RemainingMS,
		Paused:      snap.Paused,
	}
	if snap.QueuedAt != nil {
		iso := snap.QueuedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		resp.QueuedAt = &iso
	}
	ok(c, http.StatusOK, resp)
}
