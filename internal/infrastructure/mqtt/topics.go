package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "signalgw"

// Topics builds the mirror's topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// DeviceStatus returns the retained online/offline topic for a device.
//
// Example: signalgw/device/TSLC-001/status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", t.prefix(), deviceID)
}

// DeviceTelemetry returns the telemetry topic for a device.
func (t Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/telemetry", t.prefix(), deviceID)
}

// DeviceControl returns the applied-control topic for a device.
func (t Topics) DeviceControl(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/control", t.prefix(), deviceID)
}

// SystemStatus returns the gateway's own status topic.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
