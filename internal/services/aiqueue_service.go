// Package services – QueueService
//
// This file implements the QueueService, which coordinates the "human gets
// priority" behavior: when an AI-generated reply is ready, the widget queues
// it here rather than sending it, which gives a live human agent a window to
// intervene. Agents pause/resume the countdown; the widget clears the state
// after sending or cancelling.
//
// Transitions operate on the tagged domain.QueueState and flatten back to the
// conversation row in a single UPDATE, so concurrent actions from different
// requests serialize at the storage layer (last write wins). There is no
// automatic expiry encoded here; the window is advisory and drives display
// logic elsewhere.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/unicode/norm"
)

// QueueRepo defines the repository contract required by QueueService.
type QueueRepo interface {
	// GetVisitor fetches the visitor used as the authorization anchor.
	GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error)

	// GetConversation fetches the targeted conversation.
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)

	// UpdateQueueState writes the flattened AI-queue columns in one statement.
	UpdateQueueState(ctx context.Context, db *gorm.DB, id string, st domain.QueueState) error
}

// QueueService applies AI-queue actions to conversations.
type QueueService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the repository used by this service.
	Repo QueueRepo

	// DefaultWindowMS is applied when a queue action omits windowMs and the
	// conversation has no window from an earlier queue action.
	DefaultWindowMS int
	// PreviewMaxRunes caps stored previews by rune length.
	PreviewMaxRunes int
}

// NewQueueService constructs a QueueService with sane defaults.
func NewQueueService(db *gorm.DB, r QueueRepo) *QueueService {
	return &QueueService{
		DB:              db,
		Repo:            r,
		DefaultWindowMS: 8000,
		PreviewMaxRunes: 160,
	}
}

// Apply performs one AI-queue action on a conversation.
//
// Semantics:
//   - action must be one of queue/clear/pause/resume; anything else is
//     ErrInvalidAction. There is no implicit no-op action.
//   - The visitor must exist (ErrInvalidVisitor) and carry the supplied
//     session token (ErrSessionMismatch).
//   - The conversation must exist (ErrConversationNotFound) and belong to the
//     supplied visitor (ErrConversationMismatch), which prevents a visitor
//     mutating another's queue state.
//   - queue resets the countdown basis with a fresh timestamp and preview and
//     forces the paused flag off; an omitted windowMs keeps a previously
//     supplied window and falls back to the default only when none exists.
//     pause/resume flip the flag without touching the timestamp; clear
//     returns the conversation to idle.
//   - All failures are synchronous with no partial writes: the transition is
//     one UPDATE that fully succeeds or fully fails.
func (s *QueueService) Apply(ctx context.Context, conversationID, visitorID, sessionID, action, preview string, windowMS *int) error {
	tr := otel.Tracer("services/QueueService")
	ctx, span := tr.Start(ctx, "Apply",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("visitor.id", visitorID),
			attribute.String("queue.action", action),
		),
	)
	defer span.End()

	if !domain.ValidQueueAction(action) {
		return ErrInvalidAction
	}

	v, err := s.Repo.GetVisitor(ctx, s.DB, visitorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidVisitor
		}
		return err
	}
	if v.SessionID != sessionID {
		return ErrSessionMismatch
	}

	conv, err := s.Repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if conv.VisitorID != visitorID {
		return ErrConversationMismatch
	}

	cur := domain.QueueStateOf(conv)
	if action == domain.ActionQueue {
		preview = s.clipPreview(preview)
		// The default window applies only when no window exists yet. A
		// re-queue with windowMs omitted keeps the window supplied earlier;
		// the transition itself carries it forward.
		if windowMS == nil && cur.WindowMS == nil && s.DefaultWindowMS > 0 {
			w := s.DefaultWindowMS
			windowMS = &w
		}
	}

	next, changed := cur.Apply(action, time.Now().UTC(), preview, windowMS)
	if !changed {
		return nil
	}
	return s.Repo.UpdateQueueState(ctx, s.DB, conversationID, next)
}

// clipPreview normalizes a preview to NFC, trims it, and truncates it to the
// configured maximum rune length.
func (s *QueueService) clipPreview(p string) string {
	p = strings.TrimSpace(norm.NFC.String(p))
	if s.PreviewMaxRunes > 0 && utf8.RuneCountInString(p) > s.PreviewMaxRunes {
		return string([]rune(p)[:s.PreviewMaxRunes])
	}
	return p
}
