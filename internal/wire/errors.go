package wire

import "errors"

var (
	// ErrMalformed is returned when a frame is not a JSON object.
	ErrMalformed = errors.New("wire: malformed message")

	// ErrUnknownEnvelope is returned when a frame matches neither family.
	ErrUnknownEnvelope = errors.New("wire: unrecognised envelope")

	// ErrMissingPayload is returned when a message requires a payload and has none.
	ErrMissingPayload = errors.New("wire: missing payload")

	// ErrInvalidSignal is returned for empty signal strings or characters
	// outside R, G, A and X.
	ErrInvalidSignal = errors.New("wire: invalid signal string")

	// ErrUnknownPlan is returned when a plan selector is not a weekday or CUSTOM.
	ErrUnknownPlan = errors.New("wire: unknown plan")

	// ErrMissingCustomDate is returned for a CUSTOM plan without a date.
	ErrMissingCustomDate = errors.New("wire: custom plan requires a date")
)
