package gateway

import (
	"encoding/json"

	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// identify handles a web identify. Clients that do not declare themselves
// as web_app are older controller firmware identifying with clientID.
func (g *Gateway) identify(c *Conn, msg wire.WebMessage) {
	if msg.ClientType != wire.ClientTypeWebApp && msg.ClientID != wire.ClientTypeWebApp {
		if msg.ClientID == "" {
			g.replyError(c, "clientType is required")
			return
		}
		g.identifyDevice(c, msg.ClientID)
		return
	}

	email, isAdmin := msg.UserEmail, msg.IsAdmin.Or(false)
	claims, err := g.verifier.Verify(msg.Token)
	if err != nil {
		g.logger.Warn("identify token rejected", "conn_id", c.ID(), "error", err)
		g.replyError(c, "Identification failed: invalid or missing token")
		return
	}
	if claims != nil {
		email, isAdmin = claims.Email, claims.IsAdmin
	}

	role := WebRole(wire.ClientTypeWebApp, email, isAdmin)
	g.registry.Identify(c, role)
	g.reply(c, wire.IdentifySuccess{
		Event:      wire.EventIdentifySuccess,
		ClientType: role.ClientType,
		UserEmail:  role.UserEmail,
		IsAdmin:    role.IsAdmin,
	})
}

func (g *Gateway) hardwareIdentify(c *Conn, raw json.RawMessage) {
	var p wire.IdentifyParam
	if !g.decode(c, wire.TypeIdentify, raw, &p) {
		return
	}
	if p.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}
	g.identifyDevice(c, p.DeviceID.String())
}

// identifyDevice tags c as a controller and syncs its clock.
func (g *Gateway) identifyDevice(c *Conn, deviceID string) {
	g.registry.Identify(c, HardwareRole(deviceID))
	g.reply(c, wire.IdentifySuccess{
		Event:      wire.EventIdentifySuccess,
		ClientType: KindHardware.String(),
		DeviceID:   deviceID,
	})
	g.reply(c, wire.Ctrl(wire.TypeInfo, wire.ClockParam{DeviceID: deviceID, Rtc: g.rtc()}))
}

type deviceRequest struct {
	DeviceID wire.Text `json:"DeviceID"`
	Plan     string    `json:"Plan"`
}

func (g *Gateway) deviceRequest(c *Conn, event string, raw json.RawMessage) (deviceRequest, bool) {
	var req deviceRequest
	if !g.decode(c, event, raw, &req) {
		return req, false
	}
	if req.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return req, false
	}
	return req, true
}

// stateRequest asks a controller to report its control state.
func (g *Gateway) stateRequest(c *Conn, raw json.RawMessage) {
	req, ok := g.deviceRequest(c, wire.EventStateRequest, raw)
	if !ok {
		return
	}
	id := req.DeviceID.String()
	g.command(id, wire.Ctrl(wire.TypeState, wire.DeviceParam{DeviceID: id}))
}

// infoRequest asks a controller to report telemetry. The request carries the
// current clock so the report passes the skew check.
func (g *Gateway) infoRequest(c *Conn, raw json.RawMessage) {
	req, ok := g.deviceRequest(c, wire.EventInfoRequest, raw)
	if !ok {
		return
	}
	id := req.DeviceID.String()
	g.command(id, wire.Ctrl(wire.TypeInfo, wire.ClockParam{DeviceID: id, Rtc: g.rtc()}))
}

// downloadRequest asks a controller to send back the program stored for a
// weekday.
func (g *Gateway) downloadRequest(c *Conn, raw json.RawMessage) {
	req, ok := g.deviceRequest(c, wire.EventDownloadRequest, raw)
	if !ok {
		return
	}
	plan, ok := wire.DayToPlan(req.Plan)
	if !ok {
		g.replyError(c, "Unknown plan: %s", req.Plan)
		return
	}
	id := req.DeviceID.String()
	g.command(id, wire.Ctrl(wire.TypeProg, wire.ProgParam{DeviceID: id, Plan: plan}))
}
