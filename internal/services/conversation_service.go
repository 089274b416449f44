// Package services – ConversationService
//
// This file implements ConversationService, which owns the conversation and
// message lifecycle around the handoff core: opening a conversation when a
// visitor starts a session, appending messages (which refreshes the liveness
// timestamp the stale sweep reads), widget-side message listing, and the
// dashboard read paths (conversation listing, AI-queue countdown snapshot).
//
// Widget-side methods authorize against the visitor's session token; the
// dashboard methods authorize against property ownership or agent assignment.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// conversation/visitor identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"
	"github.com/careassist/handoff-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// placeholder labels eligible for auto-generation from the first message.
const defaultLabelNew = "New conversation"

// ConversationService coordinates conversation and message persistence.
type ConversationService struct {
	DB *gorm.DB

	// MaxContentRunes caps message content length; 0 disables the guard.
	MaxContentRunes int

	// Label generation config.
	LabelLocale  language.Tag
	LabelMaxLen  int
	LabelMaxWord int
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{
		DB:              db,
		MaxContentRunes: 4000,
		LabelLocale:     language.English,
		LabelMaxLen:     60,
		LabelMaxWord:    6,
	}
}

// Open returns the visitor's current conversation, creating one when the pair
// has none or the newest one is closed. Opening never resurrects a closed
// conversation; a fresh row is created instead, and the newest row is the one
// all later operations address.
func (s *ConversationService) Open(ctx context.Context, propertyID, visitorID, sessionID string) (*domain.Conversation, bool, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Open",
		trace.WithAttributes(
			attribute.String("property.id", propertyID),
			attribute.String("visitor.id", visitorID),
		),
	)
	defer span.End()

	if err := s.authVisitor(ctx, propertyID, visitorID, sessionID); err != nil {
		return nil, false, err
	}

	conv, err := repo.LatestConversation(ctx, s.DB, propertyID, visitorID)
	switch {
	case err == nil && conv.Status == domain.StatusActive:
		return conv, false, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	created, err := repo.CreateConversation(ctx, s.DB, propertyID, visitorID, defaultLabelNew)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// PostMessage appends a visitor message to an active conversation and
// refreshes the conversation's updated_at in the same transaction. The first
// message also replaces a placeholder label with one generated from the
// content.
func (s *ConversationService) PostMessage(ctx context.Context, conversationID, visitorID, sessionID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "PostMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("visitor.id", visitorID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	conv, err := s.authConversation(ctx, conversationID, visitorID, sessionID)
	if err != nil {
		return nil, err
	}
	if conv.Status != domain.StatusActive {
		return nil, ErrConversationClosed
	}

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, conversationID, domain.RoleVisitor, content)
		if err != nil {
			return err
		}
		msg = m

		if err := repo.Touch(ctx, tx, conversationID, time.Now().UTC()); err != nil {
			return err
		}

		if s.shouldAutoLabel(conv.Label) {
			if gen := s.generateLabel(content); gen != "" {
				if uerr := repo.UpdateConversationLabel(ctx, tx, conversationID, gen); uerr == nil {
					conv.Label = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a page of a conversation's messages for the widget,
// oldest first, with the total count.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, visitorID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if _, err := s.authConversation(ctx, conversationID, visitorID, sessionID); err != nil {
		return nil, 0, err
	}

	page, pageSize, offset := normalizePage(page, pageSize)

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// DashboardList returns a page of a property's conversations for an
// authorized dashboard user, newest first, with the total count.
func (s *ConversationService) DashboardList(ctx context.Context, userID, propertyID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "DashboardList",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("property.id", propertyID),
		),
	)
	defer span.End()

	if err := s.authDashboard(ctx, userID, propertyID); err != nil {
		return nil, 0, err
	}

	page, pageSize, offset := normalizePage(page, pageSize)

	total, err := repo.CountConversations(ctx, s.DB, propertyID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := repo.ListConversationsPage(ctx, s.DB, propertyID, offset, pageSize)
	return items, total, err
}

// QueueSnapshot is the dashboard view of a conversation's AI-queue state,
// carrying everything needed to render a countdown.
type QueueSnapshot struct {
	Phase       domain.QueuePhase
	QueuedAt    *time.Time
	Preview     string
	WindowMS    *int
	RemainingMS *int
	Paused      bool
}

// Queue returns the AI-queue snapshot of a conversation for an authorized
// dashboard user. RemainingMS is derived from the queued timestamp and window
// at read time; it reaches zero without any server-side action because the
// window is advisory.
func (s *ConversationService) Queue(ctx context.Context, userID, conversationID string) (QueueSnapshot, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Queue",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("conversation.id", conversationID),
		),
	)
	defer span.End()

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return QueueSnapshot{}, ErrConversationNotFound
		}
		return QueueSnapshot{}, err
	}
	if err := s.authDashboard(ctx, userID, conv.PropertyID); err != nil {
		return QueueSnapshot{}, err
	}

	st := domain.QueueStateOf(conv)
	snap := QueueSnapshot{Phase: st.Phase, Paused: st.Phase == domain.QueuePaused}
	if !st.Pending() {
		return snap, nil
	}
	since := st.Since
	snap.QueuedAt = &since
	snap.Preview = st.Preview
	snap.WindowMS = st.WindowMS
	if st.WindowMS != nil {
		remaining := *st.WindowMS - int(time.Since(st.Since).Milliseconds())
		if remaining < 0 {
			remaining = 0
		}
		snap.RemainingMS = &remaining
	}
	return snap, nil
}

// authVisitor verifies the (property, visitor, session) triple.
func (s *ConversationService) authVisitor(ctx context.Context, propertyID, visitorID, sessionID string) error {
	v, err := repo.GetVisitor(ctx, s.DB, visitorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidVisitor
		}
		return err
	}
	if v.SessionID != sessionID {
		return ErrSessionMismatch
	}
	if v.PropertyID != propertyID {
		return ErrPropertyMismatch
	}
	return nil
}

// authConversation verifies the (visitor, session) pair and that the
// conversation belongs to the visitor.
func (s *ConversationService) authConversation(ctx context.Context, conversationID, visitorID, sessionID string) (*domain.Conversation, error) {
	v, err := repo.GetVisitor(ctx, s.DB, visitorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidVisitor
		}
		return nil, err
	}
	if v.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}
	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.VisitorID != visitorID {
		return nil, ErrConversationMismatch
	}
	return conv, nil
}

// AuthorizeDashboard verifies that userID owns the property or is assigned
// to it as an agent. Handlers must call it before deriving anything from the
// property, including conditional-request validators; a caller outside the
// property's scope must not learn its conversation count or last activity.
func (s *ConversationService) AuthorizeDashboard(ctx context.Context, userID, propertyID string) error {
	return s.authDashboard(ctx, userID, propertyID)
}

// AuthorizeParticipant verifies that the visitor session is entitled to the
// conversation and returns it. The idempotent-replay path uses it so stored
// results are only served to the session that could have created them.
func (s *ConversationService) AuthorizeParticipant(ctx context.Context, conversationID, visitorID, sessionID string) (*domain.Conversation, error) {
	return s.authConversation(ctx, conversationID, visitorID, sessionID)
}

// authDashboard verifies that userID owns the property or is an assigned
// agent; either predicate suffices.
func (s *ConversationService) authDashboard(ctx context.Context, userID, propertyID string) error {
	owner, err := repo.IsPropertyOwner(ctx, s.DB, propertyID, userID)
	if err != nil {
		return err
	}
	if owner {
		return nil
	}
	agent, err := repo.IsPropertyAgent(ctx, s.DB, propertyID, userID)
	if err != nil {
		return err
	}
	if !agent {
		return ErrForbiddenScope
	}
	return nil
}

// shouldAutoLabel reports whether the current label is still a placeholder.
func (s *ConversationService) shouldAutoLabel(label string) bool {
	label = strings.TrimSpace(label)
	return label == "" || label == defaultLabelNew
}

// generateLabel builds a short display label from the first words of a
// message: whitespace collapsed, title-cased per the configured locale, and
// clipped by rune length.
func (s *ConversationService) generateLabel(content string) string {
	content = labelWhitespaceRE.ReplaceAllString(strings.TrimSpace(content), " ")
	if content == "" {
		return ""
	}
	words := strings.Split(content, " ")
	if s.LabelMaxWord > 0 && len(words) > s.LabelMaxWord {
		words = words[:s.LabelMaxWord]
	}
	label := cases.Title(s.LabelLocale).String(strings.Join(words, " "))
	if s.LabelMaxLen > 0 && utf8.RuneCountInString(label) > s.LabelMaxLen {
		label = string([]rune(label)[:s.LabelMaxLen])
	}
	return label
}

// normalizePage applies paging defaults and computes the offset.
func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}

// labelWhitespaceRE collapses consecutive whitespace to a single space.
var labelWhitespaceRE = regexp.MustCompile(`\s+`)
