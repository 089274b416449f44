// Package services defines the business logic for presence tracking, the
// AI-queue state machine, the stale-conversation sweep, and conversation /
// message lifecycle. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Identity / authorization errors. The distinction matters for status
// mapping: a bad reference is a client mistake (400), a mismatched session or
// conversation implies a forged identity (403).
var (
	// ErrInvalidVisitor indicates the referenced visitor does not exist.
	ErrInvalidVisitor = errors.New("invalid visitor")

	// ErrSessionMismatch indicates the supplied session token does not match
	// the visitor's stored one. Rejecting here prevents one visitor spoofing
	// another's presence or queue state.
	ErrSessionMismatch = errors.New("session mismatch")

	// ErrPropertyMismatch indicates the visitor does not belong to the
	// supplied property.
	ErrPropertyMismatch = errors.New("visitor/property mismatch")

	// ErrConversationMismatch indicates the targeted conversation does not
	// belong to the supplied visitor.
	ErrConversationMismatch = errors.New("conversation/visitor mismatch")

	// ErrForbiddenScope indicates the dashboard caller is neither owner nor
	// assigned agent of the requested property.
	ErrForbiddenScope = errors.New("not owner or agent of property")
)

// Validation errors.
var (
	// ErrInvalidStatus is returned when a presence status is outside
	// {active, closed}.
	ErrInvalidStatus = errors.New("status must be active or closed")

	// ErrInvalidAction is returned when an AI-queue action is outside
	// {queue, clear, pause, resume}.
	ErrInvalidAction = errors.New("action must be queue, clear, pause or resume")

	// ErrEmptyMessage is returned when a message POST carries no content.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when message content exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("message too long")
)

// Lifecycle errors.
var (
	// ErrConversationNotFound indicates the referenced conversation does not
	// exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationClosed is returned when a message is posted to a closed
	// conversation. Closed conversations are never resurrected.
	ErrConversationClosed = errors.New("conversation is closed")
)
