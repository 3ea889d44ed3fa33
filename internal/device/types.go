package device

import (
	"fmt"
	"time"
)

// Status is a device's lifecycle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusRecalled Status = "recalled"
	StatusDeleted  Status = "deleted"
)

// DefaultType is the model recorded for controllers registered without one.
const DefaultType = "QT-TSLC"

// Device is a registered traffic signal controller.
type Device struct {
	ID         string     `json:"device_id"`
	Type       string     `json:"device_type"`
	OwnerEmail string     `json:"owner_email"`
	Status     Status     `json:"status"`
	LastSeen   *time.Time `json:"last_seen"`
	TrashedAt  *time.Time `json:"trashed_at,omitempty"`
	RecalledAt *time.Time `json:"recalled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the fields the store requires.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidDevice)
	}
	if d.OwnerEmail == "" {
		return fmt.Errorf("%w: owner email is required", ErrInvalidDevice)
	}
	switch d.Status {
	case StatusActive, StatusDisabled, StatusRecalled, StatusDeleted:
	case "":
		d.Status = StatusActive
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDevice, d.Status)
	}
	if d.Type == "" {
		d.Type = DefaultType
	}
	return nil
}

// Signal level bounds and control-state defaults.
const (
	MinSignalLevel      = 10
	MaxSignalLevel      = 100
	DefaultSignalLevel  = 20
	DefaultSignalConfig = "active_low_cp"
)

// Flag names a boolean control flag. Values match the action names used on
// the wire.
type Flag string

const (
	FlagAuto   Flag = "Auto"
	FlagHold   Flag = "Hold"
	FlagNext   Flag = "Next"
	FlagReboot Flag = "Reboot"
	FlagPower  Flag = "Power"
	FlagReset  Flag = "Reset"
)

// ControlState is a controller's live remote-control state.
type ControlState struct {
	DeviceID     string    `json:"DeviceID"`
	Auto         bool      `json:"Auto"`
	Hold         bool      `json:"Hold"`
	Next         bool      `json:"Next"`
	Reboot       bool      `json:"Reboot"`
	Power        bool      `json:"Power"`
	Reset        bool      `json:"Reset"`
	SignalLevel  int       `json:"SignalLevel"`
	ErrorFlash   bool      `json:"ErrorFlash"`
	SignalConfig string    `json:"SignalConfig"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewControlState returns a state with default signal settings.
func NewControlState(deviceID string) *ControlState {
	return &ControlState{
		DeviceID:     deviceID,
		SignalLevel:  DefaultSignalLevel,
		SignalConfig: DefaultSignalConfig,
	}
}

func (s *ControlState) flag(f Flag) *bool {
	switch f {
	case FlagAuto:
		return &s.Auto
	case FlagHold:
		return &s.Hold
	case FlagNext:
		return &s.Next
	case FlagReboot:
		return &s.Reboot
	case FlagPower:
		return &s.Power
	case FlagReset:
		return &s.Reset
	}
	return nil
}

// Get returns the value of f. Unknown flags read as false.
func (s *ControlState) Get(f Flag) bool {
	if p := s.flag(f); p != nil {
		return *p
	}
	return false
}

// Set assigns f. It reports false for unknown flags.
func (s *ControlState) Set(f Flag, v bool) bool {
	p := s.flag(f)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// Toggle inverts f and returns the new value.
func (s *ControlState) Toggle(f Flag) bool {
	v := !s.Get(f)
	s.Set(f, v)
	return v
}

// SetSignalLevel assigns the signal level after a range check.
func (s *ControlState) SetSignalLevel(level int) error {
	if level < MinSignalLevel || level > MaxSignalLevel {
		return fmt.Errorf("%w: %d", ErrInvalidSignalLevel, level)
	}
	s.SignalLevel = level
	return nil
}

// ApplyDefaults fills zero-valued signal settings.
func (s *ControlState) ApplyDefaults() {
	if s.SignalLevel == 0 {
		s.SignalLevel = DefaultSignalLevel
	}
	if s.SignalConfig == "" {
		s.SignalConfig = DefaultSignalConfig
	}
}

// Reading is one approach's battery and temperature sample as reported.
type Reading struct {
	Battery     string `json:"Bat"`
	Temperature string `json:"Temp"`
}

// Telemetry is the last junction report from a controller.
type Telemetry struct {
	DeviceID               string             `json:"DeviceID"`
	Directions             map[string]Reading `json:"directions"`
	Rtc                    string             `json:"Rtc"`
	Plan                   string             `json:"Plan"`
	Period                 string             `json:"Period"`
	JunctionID             string             `json:"JunctionId"`
	JunctionPassword       string             `json:"JunctionPassword"`
	CommunicationFrequency string             `json:"CommunicationFrequency"`
	CommunicationChannel   string             `json:"CommunicationChannel"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// Merge applies a new report onto t. Readings, clock, plan and period are
// replaced; junction and radio settings are only replaced when the report
// carries them.
func (t *Telemetry) Merge(next Telemetry) {
	t.Directions = next.Directions
	t.Rtc = next.Rtc
	t.Plan = next.Plan
	t.Period = next.Period
	keep := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	keep(&t.JunctionID, next.JunctionID)
	keep(&t.JunctionPassword, next.JunctionPassword)
	keep(&t.CommunicationFrequency, next.CommunicationFrequency)
	keep(&t.CommunicationChannel, next.CommunicationChannel)
}
