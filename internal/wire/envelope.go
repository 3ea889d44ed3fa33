package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Web client events.
const (
	EventIdentify                   = "identify"
	EventStateRequest               = "state_request"
	EventInfoRequest                = "info_request"
	EventIntersectionControlRequest = "intersection_control_request"
	EventUploadRequest              = "upload_request"
	EventDownloadRequest            = "download_request"
	EventSignalRequest              = "signal_request"

	EventIdentifySuccess            = "identify_success"
	EventError                      = "error"
	EventDeviceStatus               = "device_status"
	EventIntersectionControlSuccess = "intersection_control_success"
	EventInfoFeedback               = "info_feedback"
	EventStateFeedback              = "state_feedback"
	EventSignFeedback               = "sign_feedback"
	EventUploadFeedback             = "upload_feedback"
	EventDownloadFeedback           = "download_feedback"
	EventUploadRequestSent          = "upload_request_sent"
)

// Hardware frame kinds.
const (
	FrameData = "data"
	FrameCtrl = "ctrl"

	TypeIdentify = "identify"
	TypeInfo     = "info"
	TypeSign     = "sign"
	TypeState    = "state"
	TypeProg     = "prog"
)

// ClientTypeWebApp identifies browser and admin clients.
const ClientTypeWebApp = "web_app"

// SourceHardware is the source type of device status events.
const SourceHardware = "hardware"

// TimestampLayout formats event timestamps (millisecond ISO-8601, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Family classifies an inbound frame.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyWeb
	FamilyHardware
)

// WebMessage is a web-client envelope. Identify fields are carried at the
// top level; every other event uses Payload.
type WebMessage struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	ClientID   string          `json:"clientID,omitempty"`
	UserEmail  string          `json:"userEmail,omitempty"`
	IsAdmin    Flag            `json:"isAdmin"`
	Token      string          `json:"token,omitempty"`
}

// HardwareFrame is a controller-originated frame.
type HardwareFrame struct {
	Event string          `json:"Event"`
	Type  string          `json:"Type"`
	Param json.RawMessage `json:"Param,omitempty"`
}

// Inbound is a decoded frame of either family.
type Inbound struct {
	Family   Family
	Web      WebMessage
	Hardware HardwareFrame
}

// Decode classifies a text frame by its discriminating key ("event" for web
// clients, "Event" for hardware) and decodes it.
func Decode(data []byte) (Inbound, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if _, ok := keys["event"]; ok {
		var msg WebMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Inbound{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return Inbound{Family: FamilyWeb, Web: msg}, nil
	}

	if _, ok := keys["Event"]; ok {
		frame := HardwareFrame{}
		if err := json.Unmarshal(keys["Event"], &frame.Event); err != nil {
			return Inbound{}, fmt.Errorf("%w: Event: %w", ErrMalformed, err)
		}
		if raw, ok := keys["Type"]; ok {
			if err := json.Unmarshal(raw, &frame.Type); err != nil {
				return Inbound{}, fmt.Errorf("%w: Type: %w", ErrMalformed, err)
			}
		}
		frame.Param = keys["Param"]
		return Inbound{Family: FamilyHardware, Hardware: frame}, nil
	}

	return Inbound{}, ErrUnknownEnvelope
}

// DecodePayload unmarshals a message payload into v.
func DecodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ErrMissingPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

// Command is a gateway-to-hardware frame.
type Command struct {
	Event string `json:"Event"`
	Type  string `json:"Type"`
	Param any    `json:"Param"`
}

// Ctrl builds a control command of the given type.
func Ctrl(typ string, param any) Command {
	return Command{Event: FrameCtrl, Type: typ, Param: param}
}

// DeviceParam addresses a command at one controller.
type DeviceParam struct {
	DeviceID string `json:"DeviceID"`
}

// ClockParam carries a real-time-clock sync value.
type ClockParam struct {
	DeviceID string `json:"DeviceID"`
	Rtc      int64  `json:"Rtc"`
}

// SignParam carries one manual signal frame.
type SignParam struct {
	DeviceID string `json:"DeviceID"`
	Phase    string `json:"Phase"`
}

// ProgParam uploads a program, or requests one when Pattern is empty.
type ProgParam struct {
	DeviceID string `json:"DeviceID"`
	Plan     string `json:"Plan"`
	Period   string `json:"Period,omitempty"`
	Pattern  string `json:"Pattern,omitempty"`
}

// StateCommand builds the state command for one applied control action. The
// hardware expects every value as a string.
func StateCommand(deviceID, action string, value any) Command {
	return Ctrl(TypeState, map[string]string{
		"DeviceID": deviceID,
		action:     fmt.Sprint(value),
	})
}

// Feedback is a gateway-to-web envelope with a payload.
type Feedback struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// ErrorFrame reports a failed request to its sender.
type ErrorFrame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// NewError formats an error frame.
func NewError(format string, args ...any) ErrorFrame {
	return ErrorFrame{Event: EventError, Message: fmt.Sprintf(format, args...)}
}

// ControlSuccess echoes an applied control action.
type ControlSuccess struct {
	Event  string `json:"event"`
	Action string `json:"action"`
	Value  any    `json:"value"`
}

// IdentifySuccess acknowledges an identify message.
type IdentifySuccess struct {
	Event      string `json:"event"`
	ClientType string `json:"clientType"`
	DeviceID   string `json:"deviceId,omitempty"`
	UserEmail  string `json:"userEmail,omitempty"`
	IsAdmin    bool   `json:"isAdmin"`
}

// StatusSource describes the device behind a status event. LastSeen is null
// while the device is online.
type StatusSource struct {
	Type     string  `json:"type"`
	ID       string  `json:"id"`
	Status   bool    `json:"status"`
	LastSeen *string `json:"lastSeen"`
}

// DeviceStatus announces a device going online or offline.
type DeviceStatus struct {
	Event     string       `json:"event"`
	Source    StatusSource `json:"source"`
	Timestamp string       `json:"timestamp"`
}

// NewDeviceStatus builds a device_status event.
func NewDeviceStatus(deviceID string, online bool, lastSeen *time.Time, now time.Time) DeviceStatus {
	var seen *string
	if lastSeen != nil {
		s := FormatTimestamp(*lastSeen)
		seen = &s
	}
	return DeviceStatus{
		Event: EventDeviceStatus,
		Source: StatusSource{
			Type:     SourceHardware,
			ID:       deviceID,
			Status:   online,
			LastSeen: seen,
		},
		Timestamp: FormatTimestamp(now),
	}
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
