package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quadrumtech/signal-gateway/internal/audit"
	"github.com/quadrumtech/signal-gateway/internal/device"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// controlEcho is mirrored to the bus for every applied action.
type controlEcho struct {
	DeviceID string `json:"DeviceID"`
	Action   string `json:"action"`
	Value    any    `json:"value"`
}

// intersectionControl applies one remote-control action to a device.
func (g *Gateway) intersectionControl(ctx context.Context, c *Conn, raw json.RawMessage) {
	var req controlRequest
	if !g.decode(c, wire.EventIntersectionControlRequest, raw, &req) {
		return
	}
	if req.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}
	deviceID := req.DeviceID.String()

	action, err := ParseAction(req, g.opts.HardResetAction)
	switch {
	case errors.Is(err, ErrInvalidSignalLevel):
		g.replyError(c, "Invalid Signal Level value: %s. Must be a number between %d and %d.",
			displayRaw(req.SignalLevel), device.MinSignalLevel, device.MaxSignalLevel)
		return
	case errors.Is(err, ErrMissingField):
		g.replyError(c, "action is required")
		return
	case err != nil:
		g.replyError(c, "Unknown action: %s", req.Action)
		return
	}

	if reset, ok := action.(HardResetAction); ok {
		g.hardReset(ctx, c, deviceID, req.Email, reset)
		return
	}

	state, err := g.devices.GetControlState(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, device.ErrControlStateNotFound) {
			g.logger.Error("loading control state", "device_id", deviceID, "error", err)
		}
		g.replyError(c, "Device with ID %s not found.", deviceID)
		return
	}
	state.ApplyDefaults()

	value := applyAction(state, action)

	if err := g.devices.SaveControlState(ctx, state); err != nil {
		g.logger.Error("saving control state", "device_id", deviceID, "action", action.Name(), "error", err)
	}

	if _, isPower := action.(PowerAction); isPower && !state.Power {
		g.powerOff(ctx, c, deviceID)
	}

	g.finishControl(c, deviceID, action.Name(), value)
	g.record(ctx, actorOf(c, req.Email), audit.ActionControl, deviceID, map[string]any{
		"action": action.Name(),
		"value":  value,
	})
}

// applyAction mutates state and returns the value sent to the controller.
func applyAction(state *device.ControlState, action Action) any {
	switch a := action.(type) {
	case ToggleAction:
		return state.Toggle(a.Flag)
	case PowerAction:
		state.Power = a.Value.Or(!state.Power)
		return state.Power
	case ErrorFlashAction:
		state.ErrorFlash = a.Value.Or(!state.ErrorFlash)
		return state.ErrorFlash
	case SignalLevelAction:
		state.SignalLevel = a.Level
		return a.Level
	}
	return nil
}

// powerOff records the device as last seen now and tells its authorized
// clients it went offline. The next heartbeat brings it back online.
func (g *Gateway) powerOff(ctx context.Context, origin *Conn, deviceID string) {
	now := g.clock.Now().UTC()
	if err := g.devices.SetLastSeen(ctx, deviceID, &now); err != nil {
		g.logger.Error("recording last seen", "device_id", deviceID, "error", err)
	}
	if g.presence != nil {
		g.presence.MarkOffline(deviceID)
	}
	g.publishStatus(ctx, origin, deviceID, false, &now)
}

// hardReset deletes the device's records and its phases, patterns and plans.
// The owner on the device record wins over the email in the request.
func (g *Gateway) hardReset(ctx context.Context, c *Conn, deviceID, email string, action HardResetAction) {
	owner := g.ownerOf(ctx, deviceID)
	if owner == "" {
		owner = email
	}

	if err := g.devices.DeleteDevice(ctx, deviceID); err != nil {
		g.logger.Error("deleting device records", "device_id", deviceID, "error", err)
	}
	if owner != "" {
		removed, err := g.programs.RemoveDevice(ctx, owner, deviceID)
		if err != nil {
			g.logger.Error("removing device programs", "device_id", deviceID, "error", err)
		} else {
			g.logger.Info("device programs removed", "device_id", deviceID,
				"phases", removed.Phases, "patterns", removed.Patterns, "plans", removed.Plans)
		}
	}

	g.cancelSequence(deviceID)
	if g.presence != nil {
		g.presence.Forget(deviceID)
	}

	g.logger.Info("device hard reset", "device_id", deviceID, "owner", owner)
	g.finishControl(c, deviceID, action.Name(), true)
	g.record(ctx, actorOf(c, email), audit.ActionHardReset, deviceID, map[string]any{
		"owner": owner,
	})
}

// finishControl commands the controller and echoes the result to the
// requester.
func (g *Gateway) finishControl(c *Conn, deviceID, action string, value any) {
	g.command(deviceID, wire.StateCommand(deviceID, action, value))
	g.reply(c, wire.ControlSuccess{
		Event:  wire.EventIntersectionControlSuccess,
		Action: action,
		Value:  value,
	})

	if g.mirror != nil {
		echo := controlEcho{DeviceID: deviceID, Action: action, Value: value}
		if err := g.mirror.PublishControl(deviceID, echo); err != nil {
			g.logger.Warn("mirroring control action", "device_id", deviceID, "error", err)
		}
	}
}
