// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Property and
// PropertyAgent, covering the two capability predicates used for dashboard
// authorization (ownership, agent assignment) and the scope expansion the
// stale sweep performs when no property is named.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"
)

// CreateProperty inserts a new property owned by userID.
func CreateProperty(ctx context.Context, db *gorm.DB, ownerID, name, domainName string) (*domain.Property, error) {
	p := &domain.Property{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Domain:    domainName,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// AssignAgent adds userID as an agent of propertyID.
func AssignAgent(ctx context.Context, db *gorm.DB, propertyID, userID string) (*domain.PropertyAgent, error) {
	a := &domain.PropertyAgent{
		ID:         uuid.NewString(),
		PropertyID: propertyID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// IsPropertyOwner reports whether userID owns propertyID.
func IsPropertyOwner(ctx context.Context, db *gorm.DB, propertyID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Property{}).
		Where("id = ? AND owner_id = ?", propertyID, userID).
		Count(&n).Error
	return n > 0, err
}

// IsPropertyAgent reports whether userID is an assigned agent of propertyID.
func IsPropertyAgent(ctx context.Context, db *gorm.DB, propertyID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PropertyAgent{}).
		Where("property_id = ? AND user_id = ?", propertyID, userID).
		Count(&n).Error
	return n > 0, err
}

// ListOwnedPropertyIDs returns the ids of every property owned by userID.
func ListOwnedPropertyIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Property{}).
		Where("owner_id = ?", userID).
		Pluck("id", &ids).Error
	return ids, err
}

// ListAgentPropertyIDs returns the ids of every property userID is assigned
// to as an agent.
func ListAgentPropertyIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.PropertyAgent{}).
		Where("user_id = ?", userID).
		Pluck("property_id", &ids).Error
	return ids, err
}
