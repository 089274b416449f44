// Package services – PresenceService
//
// This file implements the PresenceService, which records that a visitor's
// widget is currently open (active) or has been closed, and propagates that
// into the newest conversation for the (property, visitor) pair. The active
// write path is what keeps a live conversation from being swept as stale;
// the closed path is idempotent so repeated close pings cost one write at
// most.
//
// Every call is independently authorized against the visitor's stored session
// token; no client-held lock or session affinity is assumed.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PresenceRepo defines the repository contract required by PresenceService.
type PresenceRepo interface {
	// GetVisitor fetches the visitor used as the authorization anchor.
	GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error)

	// LatestConversation returns the newest conversation for the pair,
	// regardless of status.
	LatestConversation(ctx context.Context, db *gorm.DB, propertyID, visitorID string) (*domain.Conversation, error)

	// TouchActive marks a conversation active and refreshes updated_at.
	TouchActive(ctx context.Context, db *gorm.DB, id string, now time.Time) error

	// CloseConversation marks a conversation closed and refreshes updated_at.
	CloseConversation(ctx context.Context, db *gorm.DB, id string, now time.Time) error
}

// PresenceService applies presence pings to conversations.
type PresenceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the repository used by this service.
	Repo PresenceRepo
}

// PresenceAck is the result of a presence update.
type PresenceAck struct {
	// ConversationID identifies the conversation addressed; empty when the
	// pair has no conversation yet.
	ConversationID string
	// Updated reports whether a row write occurred.
	Updated bool
	// Status is the conversation's resulting status; empty when no
	// conversation exists.
	Status string
}

// Update applies one presence ping.
//
// Semantics:
//   - status must be "active" or "closed"; otherwise ErrInvalidStatus.
//   - The visitor must exist (ErrInvalidVisitor), carry the supplied session
//     token (ErrSessionMismatch), and belong to the supplied property
//     (ErrPropertyMismatch).
//   - A pair with no conversation yet acknowledges with Updated=false; a
//     presence ping before the first message is a no-op, not an error.
//   - status=active always writes: it refreshes updated_at and forces the
//     status to active, regardless of prior state.
//   - status=closed skips the write when the conversation is already closed.
//     The check-then-act race with a concurrent close is benign: at worst a
//     redundant write occurs and the final state is identical.
func (s *PresenceService) Update(ctx context.Context, propertyID, visitorID, sessionID, status string) (PresenceAck, error) {
	tr := otel.Tracer("services/PresenceService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("property.id", propertyID),
			attribute.String("visitor.id", visitorID),
			attribute.String("presence.status", status),
		),
	)
	defer span.End()

	if status != domain.StatusActive && status != domain.StatusClosed {
		return PresenceAck{}, ErrInvalidStatus
	}

	v, err := s.Repo.GetVisitor(ctx, s.DB, visitorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PresenceAck{}, ErrInvalidVisitor
		}
		return PresenceAck{}, err
	}
	if v.SessionID != sessionID {
		return PresenceAck{}, ErrSessionMismatch
	}
	if v.PropertyID != propertyID {
		return PresenceAck{}, ErrPropertyMismatch
	}

	conv, err := s.Repo.LatestConversation(ctx, s.DB, propertyID, visitorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PresenceAck{Updated: false}, nil
		}
		return PresenceAck{}, err
	}

	now := time.Now().UTC()
	if status == domain.StatusActive {
		if err := s.Repo.TouchActive(ctx, s.DB, conv.ID, now); err != nil {
			return PresenceAck{}, err
		}
		return PresenceAck{ConversationID: conv.ID, Updated: true, Status: domain.StatusActive}, nil
	}

	if conv.Status == domain.StatusClosed {
		return PresenceAck{ConversationID: conv.ID, Updated: false, Status: domain.StatusClosed}, nil
	}
	if err := s.Repo.CloseConversation(ctx, s.DB, conv.ID, now); err != nil {
		return PresenceAck{}, err
	}
	return PresenceAck{ConversationID: conv.ID, Updated: true, Status: domain.StatusClosed}, nil
}
