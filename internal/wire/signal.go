package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Signal characters.
const (
	Red   = 'R'
	Green = 'G'
	Amber = 'A'
	Off   = 'X'
)

// Indefinite is the duration symbol for "hold until told otherwise".
const Indefinite = "X"

// ValidateSignal checks that s is a non-empty string over R, G, A and X.
func ValidateSignal(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSignal)
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case Red, Green, Amber, Off:
		default:
			return fmt.Errorf("%w: %q at position %d", ErrInvalidSignal, s[i], i)
		}
	}
	return nil
}

// Duration renders seconds as a frame duration; zero means indefinite.
func Duration(seconds int) string {
	if seconds <= 0 {
		return Indefinite
	}
	return strconv.Itoa(seconds)
}

// SteadyFrame renders "*<duration><signals>".
func SteadyFrame(seconds int, signals string) string {
	return "*" + Duration(seconds) + signals
}

// HoldFrame renders an indefinite transition frame "*X*<signals>#".
func HoldFrame(signals string) string {
	return "*" + Indefinite + "*" + signals + "#"
}

// TimedFrame renders a timed transition frame "*<seconds>*<signals>#".
func TimedFrame(seconds int, signals string) string {
	return "*" + Duration(seconds) + "*" + signals + "#"
}

// JoinProgram joins compiled frames into the uploaded program text.
func JoinProgram(frames []string) string {
	return strings.Join(frames, "\n")
}

// ReplaceSignal substitutes every from character with to.
func ReplaceSignal(signals string, from, to byte) string {
	return strings.ReplaceAll(signals, string(from), string(to))
}

// PeriodLabel extracts the time-segment label a controller reports in its
// Period field (characters 1 to 5).
func PeriodLabel(period string) string {
	if len(period) <= 1 {
		return ""
	}
	end := 6
	if len(period) < end {
		end = len(period)
	}
	return period[1:end]
}
