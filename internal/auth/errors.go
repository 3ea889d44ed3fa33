package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenRequired is returned when a token is mandatory and missing.
	ErrTokenRequired = errors.New("auth: identity token required")
)
