package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quadrumtech/signal-gateway/internal/audit"
	"github.com/quadrumtech/signal-gateway/internal/program"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// uploadRequest is the payload of upload_request.
type uploadRequest struct {
	Email       string    `json:"email"`
	PatternName string    `json:"patternName"`
	DeviceID    wire.Text `json:"DeviceID"`
	Plan        string    `json:"plan"`
	CustomDate  wire.Text `json:"customDateUnix"`
	TimeSegment string    `json:"timeSegmentString"`
}

// UploadResult is returned to the requester once a program has been sent.
type UploadResult struct {
	DeviceID string   `json:"DeviceID"`
	Plan     string   `json:"Plan"`
	Period   string   `json:"Period"`
	Frames   []string `json:"frames"`
}

// uploadRequest compiles a stored pattern and sends it to the controller.
func (g *Gateway) uploadRequest(ctx context.Context, c *Conn, raw json.RawMessage) {
	var req uploadRequest
	if !g.decode(c, wire.EventUploadRequest, raw, &req) {
		return
	}
	switch {
	case req.Email == "":
		g.replyError(c, "email is required")
		return
	case req.PatternName == "":
		g.replyError(c, "patternName is required")
		return
	case req.DeviceID.Empty():
		g.replyError(c, "DeviceID is required")
		return
	}
	deviceID := req.DeviceID.String()

	plan, err := wire.ResolvePlan(req.Plan, req.CustomDate)
	if err != nil {
		if errors.Is(err, wire.ErrMissingCustomDate) {
			g.replyError(c, "A custom date is required for plan %s", wire.PlanCustom)
			return
		}
		g.replyError(c, "Unknown plan: %s", req.Plan)
		return
	}

	prog, err := g.compilePattern(ctx, req.Email, deviceID, req.PatternName)
	if err != nil {
		switch {
		case errors.Is(err, program.ErrPatternNotFound):
			g.replyError(c, "Pattern %s not found.", req.PatternName)
		case errors.Is(err, program.ErrNoPhases):
			g.replyError(c, "Pattern %s has no phases.", req.PatternName)
		default:
			g.logger.Warn("compiling pattern", "device_id", deviceID, "pattern", req.PatternName, "error", err)
			g.replyError(c, "Pattern %s could not be compiled: %v", req.PatternName, err)
		}
		return
	}

	g.command(deviceID, wire.Ctrl(wire.TypeProg, wire.ProgParam{
		DeviceID: deviceID,
		Plan:     plan,
		Period:   req.TimeSegment,
		Pattern:  prog.String(),
	}))
	g.logger.Info("program uploaded", "device_id", deviceID, "pattern", req.PatternName,
		"plan", plan, "period", req.TimeSegment, "frames", len(prog.Frames))

	g.record(ctx, actorOf(c, req.Email), audit.ActionUpload, deviceID, map[string]any{
		"pattern": req.PatternName,
		"plan":    plan,
		"period":  req.TimeSegment,
	})

	g.reply(c, wire.Feedback{
		Event: wire.EventUploadRequestSent,
		Payload: UploadResult{
			DeviceID: deviceID,
			Plan:     plan,
			Period:   req.TimeSegment,
			Frames:   prog.Frames,
		},
	})
}

// compilePattern loads a pattern with its phases and compiles it.
func (g *Gateway) compilePattern(ctx context.Context, owner, deviceID, name string) (program.Program, error) {
	pattern, err := g.programs.GetPatternByName(ctx, owner, deviceID, name)
	if err != nil {
		return program.Program{}, err
	}
	phases, err := g.programs.ListPhases(ctx, owner, deviceID)
	if err != nil {
		return program.Program{}, err
	}
	steps, err := program.Resolve(pattern, phases)
	if err != nil {
		return program.Program{}, err
	}
	return program.Compile(steps)
}
