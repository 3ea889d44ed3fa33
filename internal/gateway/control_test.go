package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/quadrumtech/signal-gateway/internal/device"
	"github.com/quadrumtech/signal-gateway/internal/program"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

func control(t *testing.T, h *harness, c *Conn, payload map[string]any) {
	t.Helper()
	h.webRequest(t, c, wire.EventIntersectionControlRequest, payload)
}

func expectSuccess(t *testing.T, c *Conn, action string, value any) {
	t.Helper()
	msg := only(t, c)
	if msg["event"] != wire.EventIntersectionControlSuccess || msg["action"] != action || msg["value"] != value {
		t.Fatalf("echo = %v, want %s=%v", msg, action, value)
	}
}

func expectCommand(t *testing.T, hw *Conn, action, value string) {
	t.Helper()
	msg := only(t, hw)
	if msg["Event"] != wire.FrameCtrl || msg["Type"] != wire.TypeState {
		t.Fatalf("command = %v", msg)
	}
	if got := param(t, msg)[action]; got != value {
		t.Fatalf("command %s = %v, want %q", action, got, value)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		req     string
		want    Action
		wantErr error
	}{
		{"toggle", `{"action":"Hold"}`, ToggleAction{Flag: device.FlagHold}, nil},
		{"manual is auto", `{"action":"Manual"}`, ToggleAction{Flag: device.FlagAuto}, nil},
		{"power explicit", `{"action":"Power","Power":false}`, PowerAction{Value: wire.NewFlag(false)}, nil},
		{"power toggle", `{"action":"Power"}`, PowerAction{}, nil},
		{"error flash string", `{"action":"ErrorFlash","ErrorFlash":"true"}`, ErrorFlashAction{Value: wire.NewFlag(true)}, nil},
		{"signal level", `{"action":"SignalLevel","SignalLevel":55}`, SignalLevelAction{Level: 55}, nil},
		{"signal level as string", `{"action":"SignalLevel","SignalLevel":"55"}`, nil, ErrInvalidSignalLevel},
		{"signal level fraction", `{"action":"SignalLevel","SignalLevel":10.5}`, nil, ErrInvalidSignalLevel},
		{"signal level missing", `{"action":"SignalLevel"}`, nil, ErrInvalidSignalLevel},
		{"hard reset", `{"action":"Reset!"}`, HardResetAction{Action: "Reset!"}, nil},
		{"soft reset", `{"action":"Reset"}`, ToggleAction{Flag: device.FlagReset}, nil},
		{"unknown", `{"action":"Dance"}`, nil, ErrUnknownAction},
		{"empty", `{}`, nil, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req controlRequest
			if err := json.Unmarshal([]byte(tt.req), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, err := ParseAction(req, "Reset!")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAction() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseAction_ConfiguredHardResetName(t *testing.T) {
	got, err := ParseAction(controlRequest{Action: "Reset"}, "Reset")
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if _, ok := got.(HardResetAction); !ok {
		t.Errorf("ParseAction() = %#v, want HardResetAction", got)
	}
}

func TestControl_HoldTwiceRestoresValue(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	web := h.web("alice@x.com", false)
	hw := h.hardware("TL-01")

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Hold"})
	expectSuccess(t, web, "Hold", true)
	expectCommand(t, hw, "Hold", "true")
	if !h.devices.state(t, "TL-01").Hold {
		t.Fatal("Hold not persisted")
	}

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Hold"})
	expectSuccess(t, web, "Hold", false)
	expectCommand(t, hw, "Hold", "false")
	if h.devices.state(t, "TL-01").Hold {
		t.Fatal("Hold should be back to false")
	}
}

func TestControl_ManualTogglesAuto(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	web := h.web("alice@x.com", false)
	hw := h.hardware("TL-01")

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Manual"})
	expectSuccess(t, web, "Auto", true)
	expectCommand(t, hw, "Auto", "true")
}

func TestControl_SignalLevelBoundaries(t *testing.T) {
	tests := []struct {
		level  any
		accept bool
	}{
		{9, false},
		{10, true},
		{100, true},
		{101, false},
		{"50", false},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.seedDevice("TL-01", "alice@x.com")
		web := h.web("alice@x.com", false)
		hw := h.hardware("TL-01")

		control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "SignalLevel", "SignalLevel": tt.level})

		if !tt.accept {
			expectError(t, web, "Invalid Signal Level value")
			expectNone(t, hw)
			if got := h.devices.state(t, "TL-01").SignalLevel; got != device.DefaultSignalLevel {
				t.Errorf("level %v: state mutated to %d", tt.level, got)
			}
			if h.devices.saves != 0 {
				t.Errorf("level %v: state saved on rejection", tt.level)
			}
			continue
		}

		n := tt.level.(int)
		expectSuccess(t, web, "SignalLevel", float64(n))
		if got := h.devices.state(t, "TL-01").SignalLevel; got != n {
			t.Errorf("level %d persisted as %d", n, got)
		}
		drain(t, hw)
	}
}

func TestControl_PowerOffAnnouncesOffline(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	st := h.devices.states["TL-01"]
	st.Power = true
	h.devices.states["TL-01"] = st

	requester := h.web("alice@x.com", false)
	watcher := h.web("alice@x.com", false)
	stranger := h.web("bob@x.com", false)
	hw := h.hardware("TL-01")

	control(t, h, requester, map[string]any{"DeviceID": "TL-01", "action": "Power", "Power": false})

	expectSuccess(t, requester, "Power", false)
	expectCommand(t, hw, "Power", "false")

	msg := only(t, watcher)
	if msg["event"] != wire.EventDeviceStatus {
		t.Fatalf("watcher got %v, want device_status", msg)
	}
	expectNone(t, stranger)

	d := h.devices.devices["TL-01"]
	if d.LastSeen == nil || !d.LastSeen.Equal(epoch) {
		t.Errorf("lastSeen = %v, want %v", d.LastSeen, epoch)
	}
	if h.devices.state(t, "TL-01").Power {
		t.Error("Power still true")
	}
	if got := h.presence.offline; len(got) != 1 || got[0] != "TL-01" {
		t.Errorf("presence marked offline = %v, want [TL-01]", got)
	}
}

func TestControl_PowerToggleOn(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	web := h.web("alice@x.com", false)

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Power"})
	expectSuccess(t, web, "Power", true)
	if h.devices.devices["TL-01"].LastSeen != nil {
		t.Error("power on should not set lastSeen")
	}
}

func TestControl_ErrorFlash(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	web := h.web("alice@x.com", false)

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "ErrorFlash", "ErrorFlash": true})
	expectSuccess(t, web, "ErrorFlash", true)

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "ErrorFlash", "ErrorFlash": true})
	expectSuccess(t, web, "ErrorFlash", true)

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "ErrorFlash"})
	expectSuccess(t, web, "ErrorFlash", false)
}

func TestControl_Errors(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	web := h.web("alice@x.com", false)
	hw := h.hardware("TL-01")

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Dance"})
	expectError(t, web, "Unknown action: Dance")

	control(t, h, web, map[string]any{"DeviceID": "TL-404", "action": "Hold"})
	expectError(t, web, "Device with ID TL-404 not found.")

	control(t, h, web, map[string]any{"action": "Hold"})
	expectError(t, web, "DeviceID is required")

	expectNone(t, hw)
	if h.devices.saves != 0 {
		t.Errorf("saves = %d, want 0", h.devices.saves)
	}
}

func TestControl_SaveFailureStillCommands(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	h.devices.saveErr = errStore
	web := h.web("alice@x.com", false)
	hw := h.hardware("TL-01")

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Next"})

	expectSuccess(t, web, "Next", true)
	expectCommand(t, hw, "Next", "true")
}

func TestControl_HardResetCascade(t *testing.T) {
	h := newHarness(t)
	h.seedDevice("TL-01", "alice@x.com")
	h.seedDevice("TL-02", "alice@x.com")
	h.devices.telemetry["TL-01"] = device.Telemetry{DeviceID: "TL-01"}
	h.devices.telemetry["TL-02"] = device.Telemetry{DeviceID: "TL-02"}
	for _, id := range []string{"TL-01", "TL-02"} {
		h.programs.phases = append(h.programs.phases, program.Phase{ID: "ph-" + id, OwnerEmail: "alice@x.com", DeviceID: id, Signal: "RG"})
		h.programs.patterns = append(h.programs.patterns, program.Pattern{ID: "pa-" + id, OwnerEmail: "alice@x.com", DeviceID: id})
		h.programs.plans = append(h.programs.plans, program.Plan{ID: "pl-" + id, OwnerEmail: "alice@x.com", DeviceID: id})
	}

	web := h.web("root@x.com", true)
	hw := h.hardware("TL-01")

	control(t, h, web, map[string]any{"DeviceID": "TL-01", "action": "Reset!", "email": "someone@else.com"})

	expectSuccess(t, web, "Reset!", true)
	expectCommand(t, hw, "Reset!", "true")

	if _, ok := h.devices.devices["TL-01"]; ok {
		t.Error("device record survived")
	}
	if _, ok := h.devices.states["TL-01"]; ok {
		t.Error("control state survived")
	}
	if _, ok := h.devices.telemetry["TL-01"]; ok {
		t.Error("telemetry survived")
	}
	if _, ok := h.devices.states["TL-02"]; !ok {
		t.Error("other device's control state removed")
	}
	if _, ok := h.devices.telemetry["TL-02"]; !ok {
		t.Error("other device's telemetry removed")
	}

	if len(h.programs.removed) != 1 || h.programs.removed[0] != "alice@x.com/TL-01" {
		t.Errorf("RemoveDevice calls = %v, want owner from device record", h.programs.removed)
	}
	if len(h.programs.phases) != 1 || h.programs.phases[0].DeviceID != "TL-02" {
		t.Errorf("phases = %+v", h.programs.phases)
	}
	if len(h.programs.patterns) != 1 || len(h.programs.plans) != 1 {
		t.Errorf("patterns = %d, plans = %d, want 1 each", len(h.programs.patterns), len(h.programs.plans))
	}
	if h.devices.saves != 0 {
		t.Error("hard reset saved a control state")
	}
	if len(h.presence.forgotten) != 1 || h.presence.forgotten[0] != "TL-01" {
		t.Errorf("forgotten = %v", h.presence.forgotten)
	}
}

func TestControl_HardResetWithoutDeviceRecordUsesRequestEmail(t *testing.T) {
	h := newHarness(t)
	web := h.web("alice@x.com", false)

	control(t, h, web, map[string]any{"DeviceID": "TL-05", "action": "Reset!", "email": "alice@x.com"})

	expectSuccess(t, web, "Reset!", true)
	if len(h.programs.removed) != 1 || h.programs.removed[0] != "alice@x.com/TL-05" {
		t.Errorf("RemoveDevice calls = %v", h.programs.removed)
	}
}
