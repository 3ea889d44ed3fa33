package gateway

import (
	"context"
	"encoding/json"

	"github.com/quadrumtech/signal-gateway/internal/audit"
	"github.com/quadrumtech/signal-gateway/internal/program"
	"github.com/quadrumtech/signal-gateway/internal/timeline"
	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// signalRequest is the payload of signal_request.
type signalRequest struct {
	DeviceID                wire.Text `json:"DeviceID"`
	Duration                wire.Text `json:"duration"`
	SignalString            string    `json:"signalString"`
	InitialSignalStrings    string    `json:"initialSignalStrings"`
	BlinkEnabled            wire.Flag `json:"blinkEnabled"`
	BlinkTimeGreenToRed     wire.Text `json:"blinkTimeGreenToRed"`
	AmberEnabled            wire.Flag `json:"amberEnabled"`
	AmberDurationGreenToRed wire.Text `json:"amberDurationGreenToRed"`
}

func (r signalRequest) manual() program.ManualRequest {
	return program.ManualRequest{
		Initial:                 r.InitialSignalStrings,
		Target:                  r.SignalString,
		Duration:                textInt(r.Duration),
		BlinkEnabled:            r.BlinkEnabled.Or(false),
		BlinkTimeGreenToRed:     textInt(r.BlinkTimeGreenToRed),
		AmberEnabled:            r.AmberEnabled.Or(false),
		AmberDurationGreenToRed: textInt(r.AmberDurationGreenToRed),
	}
}

// textInt reads an optional numeric field; absent or unparsable values are 0.
func textInt(t wire.Text) int {
	if t.Empty() {
		return 0
	}
	n, err := t.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

// signalRequest plays a manual phase change on a controller. A new request
// for the same device cancels the frames still pending from the last one.
func (g *Gateway) signalRequest(ctx context.Context, c *Conn, raw json.RawMessage) {
	var req signalRequest
	if !g.decode(c, wire.EventSignalRequest, raw, &req) {
		return
	}
	if req.DeviceID.Empty() {
		g.replyError(c, "DeviceID is required")
		return
	}
	deviceID := req.DeviceID.String()

	frames, err := program.ManualSequence(req.manual(), g.opts.Manual)
	if err != nil {
		g.replyError(c, "Invalid signal request: %v", err)
		return
	}

	steps := make([]timeline.Step, 0, len(frames))
	for _, f := range frames {
		cmd := wire.Ctrl(wire.TypeSign, wire.SignParam{DeviceID: deviceID, Phase: f.Frame})
		steps = append(steps, timeline.Step{
			Offset: f.Offset,
			Run:    func() { g.command(deviceID, cmd) },
		})
	}

	g.logger.Debug("manual sequence scheduled", "device_id", deviceID, "frames", len(steps))
	g.startSequence(deviceID, steps)
	g.record(ctx, actorOf(c, ""), audit.ActionManual, deviceID, map[string]any{
		"signal": req.SignalString,
		"frames": len(steps),
	})
}

// startSequence replaces any sequence running for deviceID.
func (g *Gateway) startSequence(deviceID string, steps []timeline.Step) {
	g.seqMu.Lock()
	prev := g.sequences[deviceID]
	if prev != nil {
		prev.Cancel()
	}
	seq := timeline.Schedule(g.clock, steps)
	g.sequences[deviceID] = seq
	g.seqMu.Unlock()

	go func() {
		<-seq.Done()
		g.seqMu.Lock()
		if g.sequences[deviceID] == seq {
			delete(g.sequences, deviceID)
		}
		g.seqMu.Unlock()
	}()
}

func (g *Gateway) cancelSequence(deviceID string) {
	g.seqMu.Lock()
	seq := g.sequences[deviceID]
	delete(g.sequences, deviceID)
	g.seqMu.Unlock()

	if seq != nil {
		seq.Cancel()
	}
}

// Shutdown cancels every pending manual sequence.
func (g *Gateway) Shutdown() {
	g.seqMu.Lock()
	pending := g.sequences
	g.sequences = make(map[string]*timeline.Sequence)
	g.seqMu.Unlock()

	for _, seq := range pending {
		seq.Cancel()
	}
}
