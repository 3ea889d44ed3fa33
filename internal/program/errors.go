package program

import "errors"

// Domain errors for the program package.
var (
	// ErrPatternNotFound is returned when no pattern matches the requested name.
	ErrPatternNotFound = errors.New("program: pattern not found")

	// ErrPhaseNotFound is returned when a phase ID does not exist.
	ErrPhaseNotFound = errors.New("program: phase not found")

	// ErrNoPhases is returned when a pattern has no resolvable phases.
	ErrNoPhases = errors.New("program: pattern has no resolvable phases")

	// ErrSignalWidth is returned when consecutive phases control a different
	// number of approaches.
	ErrSignalWidth = errors.New("program: signal width mismatch")

	// ErrInvalidDuration is returned for negative phase durations.
	ErrInvalidDuration = errors.New("program: invalid duration")

	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("program: invalid record")
)
