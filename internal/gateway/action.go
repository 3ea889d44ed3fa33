package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/quadrumtech/signal-gateway/internal/device"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// actionManual is the legacy name of the Auto toggle.
const actionManual = "Manual"

// Action names that are not boolean flags.
const (
	ActionSignalLevel = "SignalLevel"
	ActionErrorFlash  = "ErrorFlash"
)

// controlRequest is the payload of intersection_control_request.
type controlRequest struct {
	DeviceID    wire.Text       `json:"DeviceID"`
	Action      string          `json:"action"`
	Email       string          `json:"email"`
	Power       wire.Flag       `json:"Power"`
	ErrorFlash  wire.Flag       `json:"ErrorFlash"`
	SignalLevel json.RawMessage `json:"SignalLevel"`
}

// Action is a validated intersection control action. The concrete types are
// ToggleAction, PowerAction, SignalLevelAction, ErrorFlashAction and
// HardResetAction.
type Action interface {
	Name() string
	isAction()
}

// ToggleAction inverts one boolean flag.
type ToggleAction struct {
	Flag device.Flag
}

// PowerAction sets Power to Value when it is valid, otherwise toggles it.
type PowerAction struct {
	Value wire.Flag
}

// SignalLevelAction sets the output level.
type SignalLevelAction struct {
	Level int
}

// ErrorFlashAction sets ErrorFlash to Value when it is valid, otherwise
// toggles it.
type ErrorFlashAction struct {
	Value wire.Flag
}

// HardResetAction deletes the device and everything configured for it.
type HardResetAction struct {
	Action string
}

func (a ToggleAction) Name() string    { return string(a.Flag) }
func (PowerAction) Name() string       { return string(device.FlagPower) }
func (SignalLevelAction) Name() string { return ActionSignalLevel }
func (ErrorFlashAction) Name() string  { return ActionErrorFlash }
func (a HardResetAction) Name() string { return a.Action }
func (ToggleAction) isAction()         {}
func (PowerAction) isAction()          {}
func (SignalLevelAction) isAction()    {}
func (ErrorFlashAction) isAction()     {}
func (HardResetAction) isAction()      {}

// ParseAction validates a control request. hardReset is the action name that
// triggers a hard reset; it is matched before the flag names so a deployment
// may use "Reset" for it.
func ParseAction(req controlRequest, hardReset string) (Action, error) {
	name := req.Action
	if name == actionManual {
		name = string(device.FlagAuto)
	}

	if hardReset != "" && name == hardReset {
		return HardResetAction{Action: name}, nil
	}

	switch name {
	case string(device.FlagAuto), string(device.FlagHold), string(device.FlagNext),
		string(device.FlagReboot), string(device.FlagReset):
		return ToggleAction{Flag: device.Flag(name)}, nil
	case string(device.FlagPower):
		return PowerAction{Value: req.Power}, nil
	case ActionErrorFlash:
		return ErrorFlashAction{Value: req.ErrorFlash}, nil
	case ActionSignalLevel:
		level, err := parseSignalLevel(req.SignalLevel)
		if err != nil {
			return nil, err
		}
		return SignalLevelAction{Level: level}, nil
	case "":
		return nil, fmt.Errorf("%w: action", ErrMissingField)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
}

// parseSignalLevel accepts only a JSON number holding a whole value within
// the device's range.
func parseSignalLevel(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSignalLevel, displayRaw(raw))
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSignalLevel, displayRaw(raw))
	}
	if v != math.Trunc(v) || v < device.MinSignalLevel || v > device.MaxSignalLevel {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSignalLevel, displayRaw(raw))
	}
	return int(v), nil
}

func displayRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "undefined"
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
