// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Mutation semantics matter here more than elsewhere: every state transition
// is a single UPDATE scoped by primary key (or by the stale predicate for the
// sweep), so concurrent writers serialize at the storage layer with no
// read-modify-write window. UpdateColumns is used throughout so GORM does not
// silently touch updated_at: that column is the liveness signal the sweep
// reads, and only presence pings and messages may refresh it.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateConversation inserts a new active Conversation for the given
// (property, visitor) pair. The id is a randomly generated UUID and both
// timestamps are set to UTC now.
func CreateConversation(ctx context.Context, db *gorm.DB, propertyID, visitorID, label string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:         uuid.NewString(),
		PropertyID: propertyID,
		VisitorID:  visitorID,
		Status:     domain.StatusActive,
		Label:      label,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// LatestConversation returns the most recently created conversation for the
// (property, visitor) pair regardless of its status, or ErrNotFound when the
// pair has none. Duplicates are tolerated by design; only the newest row is
// ever addressed.
func LatestConversation(ctx context.Context, db *gorm.DB, propertyID, visitorID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("property_id = ? AND visitor_id = ?", propertyID, visitorID).
		Order("created_at DESC, id DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a single conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchActive marks the conversation active and refreshes updated_at in one
// statement. This is the write that keeps a live conversation from being
// swept as stale. Returns ErrNotFound when no row matches.
func TouchActive(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     domain.StatusActive,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CloseConversation sets status=closed and refreshes updated_at in one
// statement. Returns ErrNotFound when no row matches.
func CloseConversation(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     domain.StatusClosed,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Touch refreshes updated_at only (message activity on an already-active
// conversation). Returns ErrNotFound when no row matches.
func Touch(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateQueueState writes the flattened AI-queue columns in one statement.
// updated_at is deliberately not touched: a queue transition is not visitor
// activity and must not defer the stale sweep.
func UpdateQueueState(ctx context.Context, db *gorm.DB, id string, st domain.QueueState) error {
	queuedAt, preview, paused, windowMS := st.Columns()
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"ai_queued_at":        queuedAt,
			"ai_queued_preview":   preview,
			"ai_queued_paused":    paused,
			"ai_queued_window_ms": windowMS,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateConversationLabel sets the display label. Returns ErrNotFound when no
// row matches.
func UpdateConversationLabel(ctx context.Context, db *gorm.DB, id, label string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("label", label)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CloseStale closes every active conversation of propertyID whose updated_at
// is older than threshold, in one batched UPDATE, and returns the number of
// rows affected. The predicate only moves rows active->closed, so re-running
// with the same inputs affects zero rows.
func CloseStale(ctx context.Context, db *gorm.DB, propertyID string, threshold, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("property_id = ? AND status = ? AND updated_at < ?", propertyID, domain.StatusActive, threshold).
		UpdateColumns(map[string]any{
			"status":     domain.StatusClosed,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// CountConversations returns the total number of conversations for a property.
func CountConversations(ctx context.Context, db *gorm.DB, propertyID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("property_id = ?", propertyID).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns a paginated slice of a property's
// conversations, newest first. Use CountConversations to obtain the total for
// pagination metadata.
func ListConversationsPage(ctx context.Context, db *gorm.DB, propertyID string, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
