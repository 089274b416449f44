// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST   /conversations                          (widget open-or-resume)
//   - GET    /properties/{id}/conversations          (dashboard list, paginated, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"
	"github.com/careassist/handoff-backend/internal/repo"
	"github.com/careassist/handoff-backend/internal/services"
)

//
// DTOs
//

// OpenConversationRequest is the JSON payload the widget sends to open or
// resume a conversation.
type OpenConversationRequest struct {
	PropertyID string `json:"propertyId" binding:"required" example:"b0a8f1c2-7c6d-4e1a-9b0f-2d3e4f5a6b7c"`
	VisitorID  string `json:"visitorId"  binding:"required" example:"9c40b6f0-55f7-4f3a-9a1e-6a65b3b20a44"`
	SessionID  string `json:"sessionId"  binding:"required" example:"sess_8Qn3xT"`
}

// OpenConversationResponse returns the conversation the widget should use.
type OpenConversationResponse struct {
	OK           bool                 `json:"ok"`
	Conversation *domain.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

// ListConversationsResponse wraps a page of conversations and pagination
// information.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

//
// Handlers
//

// OpenConversation godoc
// @ID          openConversation
// @Summary     Open or resume a conversation
// @Description Returns the visitor's active conversation for the property, creating one when none exists.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.OpenConversationRequest  true  "Open conversation payload"
//
// @Success     200  {object}  handlers.OpenConversationResponse  "Existing conversation resumed"
// @Success     201  {object}  handlers.OpenConversationResponse  "New conversation created"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session mismatch"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [post]
func (h *Handlers) OpenConversation(c *gin.Context) {
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "propertyId, visitorId and sessionId are required")
		return
	}

	conv, created, err := h.convSvc.Open(c.Request.Context(), req.PropertyID, req.VisitorID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidVisitor),
			errors.Is(err, services.ErrPropertyMismatch):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrSessionMismatch):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeOpenFailed, "open conversation failed")
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, OpenConversationResponse{OK: true, Conversation: conv, Created: created})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List a property's conversations (paginated)
// @Description Returns a page of the property's conversations, newest activity first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       id             path    string  true  "Property ID (UUID)"          format(uuid)
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Not owner or agent"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /properties/{id}/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	propertyID := c.Param("id")
	if _, err := uuid.Parse(propertyID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "property id must be a UUID")
		return
	}
	page, pageSize := clampPagination(c)

	// Authorization gates the ETag pre-check as well: the validator encodes
	// the property's conversation count and last activity, which a caller
	// outside the property's scope must not observe.
	if err := h.convSvc.AuthorizeDashboard(ctx, uid, propertyID); err != nil {
		switch {
		case errors.Is(err, services.ErrForbiddenScope):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "list conversations failed")
		}
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.convSvc.(*services.ConversationService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ConversationsStats(ctx, db, propertyID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"convs:%s:%d:%d"`, propertyID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.DashboardList(ctx, uid, propertyID, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrForbiddenScope):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "list conversations failed")
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}
