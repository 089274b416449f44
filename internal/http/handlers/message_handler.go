// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - POST /conversations/{id}/messages   (append a visitor message)
//   - GET  /conversations/{id}/messages   (list paginated messages)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (ConversationService)
//   - implement idempotency semantics for safe widget retries
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (visitor, conversation, key), the handler returns that
// recorded message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careassist/handoff-backend/internal/domain"
	"github.com/careassist/handoff-backend/internal/http/middleware"
	"github.com/careassist/handoff-backend/internal/repo"
	"github.com/careassist/handoff-backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a visitor message.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer. The service also enforces
// a maximum rune count, which can be configured in ConversationService.
type PostMessageRequest struct {
	VisitorID string `json:"visitorId" binding:"required" example:"9c40b6f0-55f7-4f3a-9a1e-6a65b3b20a44"`
	SessionID string `json:"sessionId" binding:"required" example:"sess_8Qn3xT"`
	// Content is the visitor's message. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"Hi, my order never arrived."`
}

// PostMessageResponse is the JSON envelope for a newly stored message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes visitor text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxContentRunes inspects the concrete ConversationService for a
// configured content-length limit. If unavailable, it returns a conservative
// fallback.
func discoverMaxContentRunes(convSvc ConversationService) int {
	const fallback = 4000
	if cs, ok := convSvc.(*services.ConversationService); ok {
		if cs.MaxContentRunes > 0 {
			return cs.MaxContentRunes
		}
	}
	return fallback
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a visitor message
// @Description Appends a visitor message to an active conversation and refreshes its activity timestamp.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Visitor message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Stored message"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Session or conversation mismatch"
// @Failure     409  {object}  handlers.ErrorResponse        "Conversation closed"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "visitorId, sessionId and content are required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	maxRunes := discoverMaxContentRunes(h.convSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Idempotency replay path. The session must authorize before a stored
	// result is served; on failure the normal path below re-runs the same
	// checks and reports the error.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.convSvc.(*services.ConversationService); okSvc && svc.DB != nil {
			if _, authErr := svc.AuthorizeParticipant(ctx, convID, req.VisitorID, req.SessionID); authErr == nil {
				if rec, err := repo.GetIdempotency(ctx, svc.DB, req.VisitorID, convID, idemKey, time.Now().UTC()); err == nil && rec != nil {
					if prev, err2 := repo.GetMessage(svc.DB, rec.MessageID); err2 == nil {
						c.Header("Idempotency-Replayed", "true")
						ok(c, http.StatusOK, PostMessageResponse{Message: prev})
						return
					}
				}
			}
		}
	}

	m, err := h.convSvc.PostMessage(ctx, convID, req.VisitorID, req.SessionID, content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidVisitor),
			errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrSessionMismatch),
			errors.Is(err, services.ErrConversationMismatch):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		case errors.Is(err, services.ErrConversationClosed):
			fail(c, http.StatusConflict, ErrCodeConflict, "conversation is closed")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodePostFailed, "post message failed")
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, ok := h.convSvc.(*services.ConversationService); ok && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, req.VisitorID, convID, idemKey, m.ID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a paginated list of messages for the given conversation.
// @Tags        Messages
// @Produce     json
//
// @Param       id         path   string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       visitor_id query  string  true  "Visitor ID"
// @Param       session_id query  string  true  "Visitor session token"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Session or conversation mismatch"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}
	visitorID := strings.TrimSpace(c.Query("visitor_id"))
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if visitorID == "" || sessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "visitor_id and session_id are required")
		return
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.convSvc.ListMessages(ctx, convID, visitorID, sessionID, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidVisitor),
			errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrSessionMismatch),
			errors.Is(err, services.ErrConversationMismatch):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "list messages failed")
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
