package program

import (
	"fmt"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// ManualRequest describes a one-off change from the current signal to a
// target signal.
type ManualRequest struct {
	Initial                 string
	Target                  string
	Duration                int
	BlinkEnabled            bool
	BlinkTimeGreenToRed     int
	AmberEnabled            bool
	AmberDurationGreenToRed int
}

// ManualTiming holds the sequencer's fixed delays.
type ManualTiming struct {
	Settle        time.Duration
	BlinkInterval time.Duration
}

// TimedFrame is a sign frame and its offset from the start of the sequence.
type TimedFrame struct {
	Offset time.Duration
	Frame  string
}

// ManualSequence computes the frames for a manual phase change. The initial
// signal is sent at once. After the settle delay the green approaches blink
// for 2×BlinkTimeGreenToRed half-periods, then show amber, then the target
// signal is sent with its duration.
func ManualSequence(req ManualRequest, timing ManualTiming) ([]TimedFrame, error) {
	if err := wire.ValidateSignal(req.Initial); err != nil {
		return nil, fmt.Errorf("initial signal: %w", err)
	}
	if err := wire.ValidateSignal(req.Target); err != nil {
		return nil, fmt.Errorf("target signal: %w", err)
	}
	if len(req.Initial) != len(req.Target) {
		return nil, fmt.Errorf("%w: initial %q, target %q", ErrSignalWidth, req.Initial, req.Target)
	}
	if req.Duration < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, req.Duration)
	}

	blinkTime := clampSeconds(req.BlinkTimeGreenToRed)
	amberTime := clampSeconds(req.AmberDurationGreenToRed)

	frames := []TimedFrame{{Offset: 0, Frame: wire.SteadyFrame(0, req.Initial)}}
	at := timing.Settle

	if req.BlinkEnabled && blinkTime > 0 {
		blanked := wire.ReplaceSignal(req.Initial, wire.Green, wire.Off)
		count := 2 * blinkTime
		for i := 0; i < count; i++ {
			signal := req.Initial
			if i%2 == 0 {
				signal = blanked
			}
			frames = append(frames, TimedFrame{
				Offset: at + time.Duration(i)*timing.BlinkInterval,
				Frame:  wire.SteadyFrame(0, signal),
			})
		}
		at += time.Duration(count) * timing.BlinkInterval
	}

	if req.AmberEnabled && amberTime > 0 {
		frames = append(frames, TimedFrame{
			Offset: at,
			Frame:  wire.SteadyFrame(amberTime, wire.ReplaceSignal(req.Initial, wire.Green, wire.Amber)),
		})
		at += time.Duration(amberTime) * time.Second
	}

	frames = append(frames, TimedFrame{Offset: at, Frame: wire.SteadyFrame(req.Duration, req.Target)})
	return frames, nil
}

func clampSeconds(s int) int {
	switch {
	case s < 0:
		return 0
	case s > int(MaxTransitionDelay):
		return int(MaxTransitionDelay)
	}
	return s
}
