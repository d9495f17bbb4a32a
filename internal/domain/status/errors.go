package status

import "errors"

var (
	// ErrInvalidTransition is returned when a status transition is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned when a status is not a known lifecycle status
	ErrInvalidStatus = errors.New("invalid status")
)
