// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (bad_request, unauthorized, forbidden, conflict) mirror
//     common HTTP status semantics to aid interoperability.
//   - Domain-specific codes are reserved for business failures that a status
//     alone cannot convey.
//   - All error responses include both an HTTP status and one of these codes.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodePresenceFailed   = "presence_failed"
	ErrCodeQueueFailed      = "queue_failed"
	ErrCodeSweepFailed      = "sweep_failed"
	ErrCodePostFailed       = "post_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeOpenFailed       = "open_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
