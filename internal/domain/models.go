// Package domain defines the persistence models for properties, visitors,
// conversations, and messages. These types are mapped with GORM and form the
// core data layer of the handoff backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Conversation status values. A conversation is either live (the visitor's
// widget is open or was recently active) or closed. Closed conversations are
// never resurrected automatically.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Message role values.
const (
	RoleVisitor   = "visitor"
	RoleAgent     = "agent"
	RoleAssistant = "assistant"
)

// Property represents a tenant's registered site/business using the chat
// widget. The handoff core treats it mainly as a scoping id; OwnerID anchors
// dashboard-side authorization.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerID: identifier of the owning dashboard user; indexed.
//   - Name / Domain: display metadata for dashboard listings.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Property struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	OwnerID   string         `json:"owner_id"   gorm:"type:varchar(64);not null;index:idx_owner_props"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null;default:'New property'"`
	Domain    string         `json:"domain"     gorm:"type:varchar(255)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Property.
func (Property) TableName() string { return "properties" }

// PropertyAgent assigns a dashboard user to a property as an agent. Either
// ownership or an agent assignment grants access to that property's
// conversations (two independent capability predicates; either suffices).
type PropertyAgent struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	PropertyID string         `json:"property_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_agent_property_user"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index;uniqueIndex:ux_agent_property_user"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	// Property is the assigned property. Assignments are cascade-deleted
	// if the property is removed.
	Property Property `json:"-" gorm:"foreignKey:PropertyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PropertyAgent.
func (PropertyAgent) TableName() string { return "property_agents" }

// Visitor is an anonymous widget session identity scoped to one property.
// It is created upstream when the widget bootstraps and is never mutated by
// this backend; it serves purely as an authorization anchor. Every
// presence/queue mutation must present the matching SessionID and PropertyID
// or it is rejected.
type Visitor struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	PropertyID string         `json:"property_id" gorm:"type:char(36);not null;index"`
	SessionID  string         `json:"-"           gorm:"type:varchar(128);not null;index"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Visitor.
func (Visitor) TableName() string { return "visitors" }

// Conversation is the chat thread between one visitor and one property.
//
// Duplicates per (property, visitor) are tolerated; the newest by CreatedAt
// is always the one addressed, so there is no uniqueness constraint.
//
// UpdatedAt doubles as the liveness signal: it is refreshed on every presence
// ping and message, and the stale sweep closes active conversations whose
// UpdatedAt fell behind the staleness threshold.
//
// The ai_queued_* columns carry the pending-AI-reply state; see aiqueue.go
// for the typed view over them.
type Conversation struct {
	ID         string `json:"id"          gorm:"type:char(36);primaryKey"`
	PropertyID string `json:"property_id" gorm:"type:char(36);not null;index:idx_prop_visitor_convs,priority:1"`
	VisitorID  string `json:"visitor_id"  gorm:"type:char(36);not null;index:idx_prop_visitor_convs,priority:2"`
	Status     string `json:"status"      gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','closed');index"`
	Label      string `json:"label"       gorm:"type:varchar(255);not null;default:'New conversation'"`

	AIQueuedAt       *time.Time `json:"ai_queued_at,omitempty"      gorm:"index"`
	AIQueuedPreview  *string    `json:"ai_queued_preview,omitempty" gorm:"type:varchar(512)"`
	AIQueuedPaused   bool       `json:"ai_queued_paused"            gorm:"not null;default:false"`
	AIQueuedWindowMS *int       `json:"ai_queued_window_ms,omitempty"`

	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"index"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Property and Visitor are the parents of this thread. Conversations are
	// cascade-deleted if either is removed.
	Property Property `json:"-" gorm:"foreignKey:PropertyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Visitor  Visitor  `json:"-" gorm:"foreignKey:VisitorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single utterance within a conversation, authored by the
// visitor, a human agent, or the AI assistant.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('visitor','agent','assistant')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the parent thread. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
