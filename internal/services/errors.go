// Package services defines the scheduling business logic: availability
// resolution, slot generation, block finding, holds, and booking finalization.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Validation and contention errors are expected outcomes the caller can
// recover from (pick another time, reselect). Translation into user-facing
// messages or HTTP status codes is performed at the handler layer.
package services

import "errors"

// Validation errors.
var (
	// ErrInvalidDuration is returned when a requested session length is not a
	// positive multiple of the slot step or exceeds the configured maximum.
	ErrInvalidDuration = errors.New("invalid session duration")

	// ErrInvalidDate is returned for malformed or out-of-range calendar days.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidRange is returned when a time range is empty or inverted.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrInvalidRule is returned when a weekly rule has an unknown weekday or
	// minutes outside [0, 1440].
	ErrInvalidRule = errors.New("invalid availability rule")

	// ErrInvalidException is returned when an exception has minutes outside [0, 1440].
	ErrInvalidException = errors.New("invalid availability exception")

	// ErrInvalidRelease is returned when a release names neither a hold key nor slots.
	ErrInvalidRelease = errors.New("hold key or slot ids required")

	// ErrMissingPaymentRef is returned when finalize or checkout has no payment reference.
	ErrMissingPaymentRef = errors.New("payment reference required")

	// ErrNoSlots is returned when a booking request references no slots, or an
	// admin range contains none.
	ErrNoSlots = errors.New("no slots")
)

// Lookup errors.
var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrExceptionNotFound = errors.New("availability exception not found")
	ErrBookingNotFound   = errors.New("booking not found")
)

// Contention errors.
var (
	// ErrSlotUnavailable indicates the block is not fully free: a slot is
	// missing, taken, blocked, or actively held by another key.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrHoldExpired indicates the caller's hold lapsed before checkout.
	ErrHoldExpired = errors.New("hold expired")

	// ErrHoldMismatch indicates another key holds at least one slot.
	ErrHoldMismatch = errors.New("hold belongs to another key")
)
