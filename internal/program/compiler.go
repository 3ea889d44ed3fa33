package program

import (
	"fmt"
	"math"

	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// blinkHalfPeriod is the length of one blink or amber-blink frame, in seconds.
const blinkHalfPeriod = 0.5

// Program is a compiled pattern.
type Program struct {
	Frames []string
}

// String returns the newline-joined program text sent to the controller.
func (p Program) String() string {
	return wire.JoinProgram(p.Frames)
}

// Compile expands resolved steps into a program. Each step contributes its
// steady frame followed by the transition into the next step; the last step
// has no outgoing transition.
func Compile(steps []Step) (Program, error) {
	if len(steps) == 0 {
		return Program{}, ErrNoPhases
	}

	for i, s := range steps {
		if err := wire.ValidateSignal(s.Signal); err != nil {
			return Program{}, fmt.Errorf("phase %d (%s): %w", i, s.Name, err)
		}
		if s.Duration < 0 {
			return Program{}, fmt.Errorf("%w: phase %d (%s): %d", ErrInvalidDuration, i, s.Name, s.Duration)
		}
		if i > 0 && len(s.Signal) != len(steps[0].Signal) {
			return Program{}, fmt.Errorf("%w: phase %d (%s) has %d positions, want %d",
				ErrSignalWidth, i, s.Name, len(s.Signal), len(steps[0].Signal))
		}
	}

	var frames []string
	for i, cur := range steps {
		frames = append(frames, wire.SteadyFrame(cur.Duration, cur.Signal))
		if i == len(steps)-1 {
			break
		}
		frames = append(frames, transitionFrames(cur, steps[i+1])...)
	}
	return Program{Frames: frames}, nil
}

// transitionFrames synthesises the blink and amber frames between cur and next.
func transitionFrames(cur, next Step) []string {
	tr := cur.Transition
	var frames []string

	if tr.EnableBlink {
		positions, delay := changing(cur.Signal, next.Signal, tr.RedToGreenDelay, tr.GreenToRedDelay)
		if delay > 0 {
			blanked := mask(cur.Signal, positions, func(byte) byte { return wire.Off })
			for n := 0; n < halfPeriods(delay); n++ {
				if n%2 == 0 {
					frames = append(frames, wire.HoldFrame(blanked))
				} else {
					frames = append(frames, wire.HoldFrame(cur.Signal))
				}
			}
		}
	}

	if tr.EnableAmber {
		positions, delay := changing(cur.Signal, next.Signal, tr.RedToGreenAmberDelay, tr.GreenToRedAmberDelay)
		if delay > 0 {
			amber := mask(cur.Signal, positions, func(c byte) byte {
				switch {
				case c == wire.Red && tr.HoldRedSignalOnAmber:
					return c
				case c == wire.Green && tr.HoldGreenSignalOnAmber:
					return c
				}
				return wire.Amber
			})
			if tr.EnableAmberBlink {
				for n := 0; n < halfPeriods(delay); n++ {
					if n%2 == 0 {
						frames = append(frames, wire.HoldFrame(amber))
					} else {
						frames = append(frames, wire.HoldFrame(cur.Signal))
					}
				}
			} else {
				seconds := int(math.Round(delay))
				if seconds < 1 {
					seconds = 1
				}
				frames = append(frames, wire.TimedFrame(seconds, amber))
			}
		}
	}

	return frames
}

// changing returns the positions that differ between cur and next and whose
// direction-specific delay is positive, together with the longest such delay.
// A position leaving green uses greenToRed; any other change uses redToGreen.
func changing(cur, next string, redToGreen, greenToRed float64) ([]int, float64) {
	redToGreen = clampDelay(redToGreen)
	greenToRed = clampDelay(greenToRed)

	var (
		positions []int
		longest   float64
	)
	for i := 0; i < len(cur) && i < len(next); i++ {
		if cur[i] == next[i] {
			continue
		}
		delay := redToGreen
		if cur[i] == wire.Green {
			delay = greenToRed
		}
		if delay <= 0 {
			continue
		}
		positions = append(positions, i)
		if delay > longest {
			longest = delay
		}
	}
	return positions, longest
}

func mask(signal string, positions []int, f func(byte) byte) string {
	b := []byte(signal)
	for _, i := range positions {
		b[i] = f(b[i])
	}
	return string(b)
}

func halfPeriods(delay float64) int {
	return int(math.Ceil(delay / blinkHalfPeriod))
}

func clampDelay(d float64) float64 {
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	return math.Min(d, MaxTransitionDelay)
}
