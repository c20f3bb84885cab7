// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, domain codes
// distinguish the contention outcomes of the hold and checkout flow, which
// share status codes but call for different client reactions.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "slot_unavailable",
//	  "message": "the requested time is no longer available"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeTimeout      = "timeout"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeSlotUnavailable  = "slot_unavailable"
	ErrCodeHoldExpired      = "hold_expired"
	ErrCodeHoldMismatch     = "hold_mismatch"
	ErrCodeInvalidDuration  = "invalid_duration"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
