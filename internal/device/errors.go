package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrControlStateNotFound is returned when a device has no control-state record.
	ErrControlStateNotFound = errors.New("device: control state not found")

	// ErrTelemetryNotFound is returned when a device has not reported telemetry.
	ErrTelemetryNotFound = errors.New("device: telemetry not found")

	// ErrInvalidSignalLevel is returned for signal levels outside [10, 100].
	ErrInvalidSignalLevel = errors.New("device: invalid signal level")

	// ErrInvalidDevice is returned when a record fails validation.
	ErrInvalidDevice = errors.New("device: invalid")
)
