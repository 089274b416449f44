// Handler wiring for the public API.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results (including service sentinel errors) into
// HTTP responses. Widget endpoints authorize inside the services against
// visitor session tokens; dashboard endpoints rely on the bearer-auth
// middleware having resolved a user id.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/careassist/handoff-backend/internal/domain"
	"github.com/careassist/handoff-backend/internal/services"
	"github.com/careassist/handoff-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// PresenceService applies presence pings to conversations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PresenceService interface {
	// Update applies one presence ping for the (property, visitor) pair.
	Update(ctx context.Context, propertyID, visitorID, sessionID, status string) (services.PresenceAck, error)
}

// QueueService applies AI-queue actions to conversations.
type QueueService interface {
	// Apply performs one queue/clear/pause/resume action.
	Apply(ctx context.Context, conversationID, visitorID, sessionID, action, preview string, windowMS *int) error
}

// SweepService closes stale conversations across the caller's properties.
type SweepService interface {
	// Sweep closes active conversations older than the staleness threshold.
	Sweep(ctx context.Context, userID, propertyID string, staleSeconds int) (services.SweepResult, error)
}

// ConversationService covers conversation/message lifecycle and the
// dashboard read paths.
type ConversationService interface {
	// Open returns the visitor's current conversation, creating one if needed.
	Open(ctx context.Context, propertyID, visitorID, sessionID string) (*domain.Conversation, bool, error)
	// PostMessage appends a visitor message to an active conversation.
	PostMessage(ctx context.Context, conversationID, visitorID, sessionID, content string) (*domain.Message, error)
	// ListMessages returns a page of messages for the widget.
	ListMessages(ctx context.Context, conversationID, visitorID, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	// AuthorizeDashboard reports whether userID may read the property's
	// dashboard data. Handlers call it before emitting anything derived
	// from the property, ETags included.
	AuthorizeDashboard(ctx context.Context, userID, propertyID string) error
	// DashboardList returns a page of a property's conversations.
	DashboardList(ctx context.Context, userID, propertyID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// Queue returns the AI-queue countdown snapshot of a conversation.
	Queue(ctx context.Context, userID, conversationID string) (services.QueueSnapshot, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for presence, AI-queue, sweep, and
// conversations. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	presenceSvc PresenceService
	queueSvc    QueueService
	sweepSvc    SweepService
	convSvc     ConversationService
}

// New constructs a Handlers instance bound to the given services.
func New(presenceSvc PresenceService, queueSvc QueueService, sweepSvc SweepService, convSvc ConversationService) *Handlers {
	return &Handlers{presenceSvc: presenceSvc, queueSvc: queueSvc, sweepSvc: sweepSvc, convSvc: convSvc}
}

// userID extracts the authenticated dashboard user id from the Gin context
// (set by the bearer-auth middleware). If absent, it falls back to the
// "X-User-ID" header (tests use it), and finally to "demo-user". It never
// touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
