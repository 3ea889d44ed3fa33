package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/device"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// relayInfo stores a junction report and forwards it to web clients. Reports
// from a controller whose clock disagrees with ours are dropped and the
// controller is sent the correct time instead.
func (g *Gateway) relayInfo(ctx context.Context, c *Conn, raw json.RawMessage) {
	var p wire.InfoParam
	if !g.decode(c, wire.TypeInfo, raw, &p) {
		return
	}
	if p.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}
	deviceID := p.DeviceID.String()

	if skew, ok := g.clockSkew(p.Rtc); !ok {
		g.logger.Info("controller clock out of sync", "device_id", deviceID, "rtc", p.Rtc.String(), "skew", skew)
		g.command(deviceID, wire.Ctrl(wire.TypeInfo, wire.ClockParam{DeviceID: deviceID, Rtc: g.rtc()}))
		return
	}

	report := telemetryFromInfo(deviceID, p)
	current, err := g.devices.GetTelemetry(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, device.ErrTelemetryNotFound) {
			g.logger.Error("loading telemetry", "device_id", deviceID, "error", err)
		}
		current = &device.Telemetry{DeviceID: deviceID}
	}
	current.Merge(report)
	if err := g.devices.SaveTelemetry(ctx, current); err != nil {
		g.logger.Error("saving telemetry", "device_id", deviceID, "error", err)
	}

	if g.sink != nil {
		now := g.clock.Now()
		for approach, r := range report.Directions {
			g.sink.WriteApproachReading(deviceID, approach, r.Battery, r.Temperature, now)
		}
	}
	if g.mirror != nil {
		if err := g.mirror.PublishTelemetry(deviceID, current); err != nil {
			g.logger.Warn("mirroring telemetry", "device_id", deviceID, "error", err)
		}
	}

	g.relay(c, wire.EventInfoFeedback, raw)
}

// clockSkew returns the difference between the controller's clock and ours
// and whether it is within tolerance. A missing clock is never in sync.
func (g *Gateway) clockSkew(rtc wire.Text) (time.Duration, bool) {
	if rtc.Empty() {
		return 0, false
	}
	reported, err := rtc.Int64()
	if err != nil {
		return 0, false
	}
	skew := time.Duration(g.rtc()-reported) * time.Second
	return skew, skew.Abs() <= g.opts.ClockSkewTolerance
}

func telemetryFromInfo(deviceID string, p wire.InfoParam) device.Telemetry {
	directions := make(map[string]device.Reading, 4)
	for name, r := range p.Directions() {
		directions[name] = device.Reading{Battery: r.Bat.String(), Temperature: r.Temp.String()}
	}
	return device.Telemetry{
		DeviceID:               deviceID,
		Directions:             directions,
		Rtc:                    p.Rtc.String(),
		Plan:                   p.Plan.String(),
		Period:                 p.Period.String(),
		JunctionID:             p.JunctionID.String(),
		JunctionPassword:       p.JunctionPassword.String(),
		CommunicationFrequency: p.CommunicationFrequency.String(),
		CommunicationChannel:   p.CommunicationChannel.String(),
	}
}

// relayState mirrors a controller's reported flags into its control state
// and forwards the report to web clients.
func (g *Gateway) relayState(ctx context.Context, c *Conn, raw json.RawMessage) {
	var p wire.StateParam
	if !g.decode(c, wire.TypeState, raw, &p) {
		return
	}
	if p.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}
	deviceID := p.DeviceID.String()

	state, err := g.devices.GetControlState(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, device.ErrControlStateNotFound) {
			g.logger.Error("loading control state", "device_id", deviceID, "error", err)
		}
		state = device.NewControlState(deviceID)
	}
	applyStateReport(state, p)

	if err := g.devices.SaveControlState(ctx, state); err != nil {
		g.logger.Error("saving control state", "device_id", deviceID, "error", err)
	}

	g.relay(c, wire.EventStateFeedback, raw)
}

// applyStateReport copies reported values onto state. Absent flags read as
// false; an absent or non-numeric SignalLevel and an absent SignalConfig
// keep their previous values.
func applyStateReport(state *device.ControlState, p wire.StateParam) {
	state.Auto = p.Auto.Value
	state.Power = p.Power.Value
	state.Next = p.Next.Value
	state.Hold = p.Hold.Value
	state.Reset = p.Reset.Value
	state.Reboot = p.Reboot.Value
	state.ErrorFlash = p.ErrorFlash.Value

	if !p.SignalLevel.Empty() {
		if v, err := p.SignalLevel.Float(); err == nil {
			state.SignalLevel = int(math.Round(v))
		}
	}
	if !p.SignalConfig.Empty() {
		state.SignalConfig = p.SignalConfig.String()
	}
	state.ApplyDefaults()
}

// relaySign forwards a controller's signal report unchanged.
func (g *Gateway) relaySign(c *Conn, raw json.RawMessage) {
	var p wire.IdentifyParam
	if !g.decode(c, wire.TypeSign, raw, &p) {
		return
	}
	if p.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}
	g.relay(c, wire.EventSignFeedback, raw)
}

// relayProg forwards the answer to a program download, or the confirmation
// of an upload with its plan slot and time segment made readable.
func (g *Gateway) relayProg(c *Conn, raw json.RawMessage) {
	var p wire.ProgReport
	if !g.decode(c, wire.TypeProg, raw, &p) {
		return
	}
	if p.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}

	if len(p.Program) > 0 && string(p.Program) != "null" {
		g.relay(c, wire.EventDownloadFeedback, raw)
		return
	}

	day, _ := wire.PlanToDay(p.Plan.String())
	g.relay(c, wire.EventUploadFeedback, wire.UploadFeedback{
		DeviceID: p.DeviceID.String(),
		Plan:     day,
		Period:   wire.PeriodLabel(p.Period.String()),
	})
}
