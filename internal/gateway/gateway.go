package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/audit"
	"github.com/quadrumtech/signal-gateway/internal/auth"
	"github.com/quadrumtech/signal-gateway/internal/device"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/config"
	"github.com/quadrumtech/signal-gateway/internal/program"
	"github.com/quadrumtech/signal-gateway/internal/timeline"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// Presence receives liveness signals. It is satisfied by *presence.Monitor.
type Presence interface {
	Heartbeat(deviceID string)
	MarkOffline(deviceID string)
	Forget(deviceID string)
}

// Mirror republishes gateway events to an external bus. It is satisfied by
// *mqtt.Client.
type Mirror interface {
	PublishDeviceStatus(deviceID string, event any) error
	PublishTelemetry(deviceID string, report any) error
	PublishControl(deviceID string, action any) error
}

// Sink records telemetry history. It is satisfied by *influxdb.Client.
type Sink interface {
	WriteApproachReading(deviceID, approach, battery, temperature string, at time.Time)
	WritePresence(deviceID string, online bool, at time.Time)
}

// Auditor records accepted operator actions. It is satisfied by
// *audit.SQLiteRepository.
type Auditor interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// Options holds protocol tunables.
type Options struct {
	// RTCOffset is added to Unix time when setting a controller's clock.
	RTCOffset time.Duration

	// ClockSkewTolerance is the largest accepted RTC disagreement.
	ClockSkewTolerance time.Duration

	// HardResetAction is the control action that deletes a device.
	HardResetAction string

	// Manual holds the manual sequencer delays.
	Manual program.ManualTiming
}

// OptionsFromConfig converts the gateway config section.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{
		RTCOffset:          cfg.RTCOffsetDuration(),
		ClockSkewTolerance: cfg.ClockSkewDuration(),
		HardResetAction:    cfg.HardResetAction,
		Manual: program.ManualTiming{
			Settle:        cfg.ManualSettleDuration(),
			BlinkInterval: cfg.BlinkIntervalDuration(),
		},
	}
}

// DefaultOptions returns the options used by the reference firmware.
func DefaultOptions() Options {
	return Options{
		RTCOffset:          time.Hour,
		ClockSkewTolerance: time.Minute,
		HardResetAction:    "Reset!",
		Manual: program.ManualTiming{
			Settle:        time.Second,
			BlinkInterval: 500 * time.Millisecond,
		},
	}
}

// Deps are the collaborators of a Gateway. Registry, Devices and Programs are
// required; the rest are optional.
type Deps struct {
	Registry *Registry
	Devices  device.Repository
	Programs program.Repository
	Presence Presence
	Verifier *auth.Verifier
	Mirror   Mirror
	Sink     Sink
	Audit    Auditor
	Clock    timeline.Clock
	Logger   Logger
	Options  Options
}

// Gateway dispatches decoded frames to their handlers.
type Gateway struct {
	registry *Registry
	devices  device.Repository
	programs program.Repository
	presence Presence
	verifier *auth.Verifier
	mirror   Mirror
	sink     Sink
	auditor  Auditor
	clock    timeline.Clock
	logger   Logger
	opts     Options

	seqMu     sync.Mutex
	sequences map[string]*timeline.Sequence
}

// New creates a Gateway.
func New(deps Deps) *Gateway {
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Logger)
	}
	if deps.Clock == nil {
		deps.Clock = timeline.Real()
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Verifier == nil {
		deps.Verifier = auth.NewVerifier("", false)
	}
	if deps.Options.HardResetAction == "" {
		deps.Options.HardResetAction = DefaultOptions().HardResetAction
	}
	if deps.Options.Manual.BlinkInterval <= 0 {
		deps.Options.Manual.BlinkInterval = DefaultOptions().Manual.BlinkInterval
	}
	return &Gateway{
		registry:  deps.Registry,
		devices:   deps.Devices,
		programs:  deps.Programs,
		presence:  deps.Presence,
		verifier:  deps.Verifier,
		mirror:    deps.Mirror,
		sink:      deps.Sink,
		auditor:   deps.Audit,
		clock:     deps.Clock,
		logger:    deps.Logger,
		opts:      deps.Options,
		sequences: make(map[string]*timeline.Sequence),
	}
}

// Registry returns the connection registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Handle processes one inbound text frame from c. It never panics.
func (g *Gateway) Handle(ctx context.Context, c *Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic in message handler", "conn_id", c.ID(), "panic", r)
			g.replyError(c, "Internal error while processing message")
		}
	}()

	in, err := wire.Decode(data)
	if err != nil {
		g.logger.Debug("undecodable frame", "conn_id", c.ID(), "error", err)
		g.replyError(c, "Invalid message format")
		return
	}

	switch in.Family {
	case wire.FamilyWeb:
		g.handleWeb(ctx, c, in.Web)
	case wire.FamilyHardware:
		g.handleHardware(ctx, c, in.Hardware)
	}
}

func (g *Gateway) handleWeb(ctx context.Context, c *Conn, msg wire.WebMessage) {
	switch msg.Event {
	case wire.EventIdentify:
		g.identify(c, msg)
	case wire.EventStateRequest:
		g.stateRequest(c, msg.Payload)
	case wire.EventInfoRequest:
		g.infoRequest(c, msg.Payload)
	case wire.EventIntersectionControlRequest:
		g.intersectionControl(ctx, c, msg.Payload)
	case wire.EventUploadRequest:
		g.uploadRequest(ctx, c, msg.Payload)
	case wire.EventDownloadRequest:
		g.downloadRequest(c, msg.Payload)
	case wire.EventSignalRequest:
		g.signalRequest(ctx, c, msg.Payload)
	default:
		g.logger.Debug("unknown web event", "conn_id", c.ID(), "event", msg.Event)
		g.replyError(c, "Unknown event: %s", msg.Event)
	}
}

func (g *Gateway) handleHardware(ctx context.Context, c *Conn, frame wire.HardwareFrame) {
	if frame.Event != wire.FrameData {
		g.replyError(c, "Unknown hardware event: %s", frame.Event)
		return
	}

	switch frame.Type {
	case wire.TypeIdentify:
		g.hardwareIdentify(c, frame.Param)
	case wire.TypeInfo:
		g.relayInfo(ctx, c, frame.Param)
	case wire.TypeState:
		g.relayState(ctx, c, frame.Param)
	case wire.TypeSign:
		g.relaySign(c, frame.Param)
	case wire.TypeProg:
		g.relayProg(c, frame.Param)
	default:
		g.logger.Debug("unknown hardware frame type", "conn_id", c.ID(), "type", frame.Type)
		g.replyError(c, "Unknown hardware frame type: %s", frame.Type)
	}
}

// Heartbeat forwards a protocol ping from c to the presence monitor. The
// ping's application data carries the device ID; a controller that has
// already identified may send an empty ping.
func (g *Gateway) Heartbeat(c *Conn, appData string) {
	if g.presence == nil {
		return
	}
	deviceID := strings.TrimSpace(appData)
	if deviceID == "" {
		deviceID = c.Role().DeviceID
	}
	if deviceID == "" {
		return
	}
	g.presence.Heartbeat(deviceID)
}

// DeviceStatus announces a presence transition to the device's authorized
// web clients and the optional mirror and sink.
func (g *Gateway) DeviceStatus(deviceID string, online bool, lastSeen *time.Time) {
	ctx := context.Background()
	g.publishStatus(ctx, nil, deviceID, online, lastSeen)
}

func (g *Gateway) publishStatus(ctx context.Context, origin *Conn, deviceID string, online bool, lastSeen *time.Time) {
	now := g.clock.Now()
	event := wire.NewDeviceStatus(deviceID, online, lastSeen, now)

	owner := g.ownerOf(ctx, deviceID)
	n, err := g.registry.Broadcast(origin, AuthorizedFor(owner), event)
	if err != nil {
		g.logger.Error("broadcasting device status", "device_id", deviceID, "error", err)
	}
	g.logger.Debug("device status sent", "device_id", deviceID, "online", online, "recipients", n)

	if g.mirror != nil {
		if err := g.mirror.PublishDeviceStatus(deviceID, event); err != nil {
			g.logger.Warn("mirroring device status", "device_id", deviceID, "error", err)
		}
	}
	if g.sink != nil {
		g.sink.WritePresence(deviceID, online, now)
	}
}

// ownerOf returns the recorded owner of a device, or "" when unknown. Events
// for unknown devices reach admins only.
func (g *Gateway) ownerOf(ctx context.Context, deviceID string) string {
	d, err := g.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			g.logger.Warn("looking up device owner", "device_id", deviceID, "error", err)
		}
		return ""
	}
	return d.OwnerEmail
}

// rtc returns the controller clock value for now.
func (g *Gateway) rtc() int64 {
	return g.clock.Now().Add(g.opts.RTCOffset).Unix()
}

func (g *Gateway) reply(c *Conn, msg any) {
	if err := g.registry.Send(c, msg); err != nil {
		g.logger.Error("sending reply", "conn_id", c.ID(), "error", err)
	}
}

func (g *Gateway) replyError(c *Conn, format string, args ...any) {
	g.reply(c, wire.NewError(format, args...))
}

// command sends a ctrl frame to a controller.
func (g *Gateway) command(deviceID string, cmd wire.Command) {
	n, err := g.registry.SendToDevice(deviceID, cmd)
	if err != nil {
		g.logger.Error("sending command", "device_id", deviceID, "type", cmd.Type, "error", err)
		return
	}
	if n == 0 {
		g.logger.Debug("command for unconnected device", "device_id", deviceID, "type", cmd.Type)
	}
}

// relay sends feedback to every web client except the origin.
func (g *Gateway) relay(origin *Conn, event string, payload any) {
	if _, err := g.registry.Broadcast(origin, WebClients, wire.Feedback{Event: event, Payload: payload}); err != nil {
		g.logger.Error("relaying feedback", "event", event, "error", err)
	}
}

// decode unmarshals a request payload, replying with an error frame on
// failure.
func (g *Gateway) decode(c *Conn, event string, raw []byte, v any) bool {
	if err := wire.DecodePayload(raw, v); err != nil {
		g.logger.Debug("invalid payload", "conn_id", c.ID(), "event", event, "error", err)
		g.replyError(c, "Invalid %s payload", event)
		return false
	}
	return true
}
