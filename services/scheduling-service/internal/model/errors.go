package model

import "errors"

var (
	// ErrConflict means another appointment holds (part of) the requested
	// interval. Callers should re-query slots and retry with a new choice.
	ErrConflict = errors.New("time slot already booked")

	// ErrInvalidRange means a malformed or inverted time range.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrInvalidDuration means a non-positive slot duration.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidTransition means an illegal state change was requested.
	// The appointment is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound means an unknown appointment, professional, or client id.
	ErrNotFound = errors.New("not found")
)

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidTransition)
}
