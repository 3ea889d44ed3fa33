package gateway

import "errors"

var (
	// ErrUnknownAction is returned for intersection control actions the
	// controller does not support.
	ErrUnknownAction = errors.New("gateway: unknown action")

	// ErrInvalidSignalLevel is returned when a SignalLevel value is not a
	// whole number in range.
	ErrInvalidSignalLevel = errors.New("gateway: invalid signal level")

	// ErrMissingField is returned when a request lacks a required field.
	ErrMissingField = errors.New("gateway: missing required field")
)
