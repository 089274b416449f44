// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Visitor
// model. Visitors are created when the widget bootstraps and are read-only
// for the handoff core, which uses them purely as authorization anchors.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"
)

// GetVisitor fetches a visitor by id, or ErrNotFound.
func GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error) {
	var v domain.Visitor
	if err := db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVisitor inserts a new visitor identity for a property with the given
// client-generated session token.
func CreateVisitor(ctx context.Context, db *gorm.DB, propertyID, sessionID string) (*domain.Visitor, error) {
	v := &domain.Visitor{
		ID:         uuid.NewString(),
		PropertyID: propertyID,
		SessionID:  sessionID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}
