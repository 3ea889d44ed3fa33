package program

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/wire"
)

// MaxTransitionDelay bounds every transition delay, in seconds.
const MaxTransitionDelay = 5.0

// Transition holds the blink and amber timing applied when a phase hands
// over to the next one. Delays are in seconds.
type Transition struct {
	EnableBlink     bool    `json:"enableBlink"`
	RedToGreenDelay float64 `json:"redToGreenDelay"`
	GreenToRedDelay float64 `json:"greenToRedDelay"`

	EnableAmber          bool    `json:"enableAmber"`
	RedToGreenAmberDelay float64 `json:"redToGreenAmberDelay"`
	GreenToRedAmberDelay float64 `json:"greenToRedAmberDelay"`
	EnableAmberBlink     bool    `json:"enableAmberBlink"`

	HoldRedSignalOnAmber   bool `json:"holdRedSignalOnAmber"`
	HoldGreenSignalOnAmber bool `json:"holdGreenSignalOnAmber"`
}

// Phase is a named signal configuration for one device.
type Phase struct {
	ID         string     `json:"id"`
	OwnerEmail string     `json:"owner_email"`
	DeviceID   string     `json:"device_id"`
	Name       string     `json:"name"`
	Signal     string     `json:"signal_string"`
	Transition Transition `json:"transition"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate checks a phase before it is stored.
func (p *Phase) Validate() error {
	if p.OwnerEmail == "" || p.DeviceID == "" || p.Name == "" {
		return fmt.Errorf("%w: phase requires owner, device and name", ErrInvalidRecord)
	}
	return wire.ValidateSignal(p.Signal)
}

// PatternPhase is one occurrence of a phase in a pattern. Duration is in
// seconds; zero holds the phase indefinitely.
type PatternPhase struct {
	PhaseID  string `json:"phase_id"`
	Duration int    `json:"duration"`
}

// Pattern is an ordered cycle of phases.
type Pattern struct {
	ID         string         `json:"id"`
	OwnerEmail string         `json:"owner_email"`
	DeviceID   string         `json:"device_id"`
	Name       string         `json:"name"`
	Phases     []PatternPhase `json:"phases"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Plan assigns patterns to time segments for a weekday or a custom date.
type Plan struct {
	ID         string          `json:"id"`
	OwnerEmail string          `json:"owner_email"`
	DeviceID   string          `json:"device_id"`
	Name       string          `json:"name"`
	DayType    string          `json:"day_type"`
	Schedule   json.RawMessage `json:"schedule"`
	CustomDate string          `json:"custom_date,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Removed counts the records deleted for a device.
type Removed struct {
	Phases   int64
	Patterns int64
	Plans    int64
}

// Step is a resolved pattern occurrence ready for compilation.
type Step struct {
	Name       string
	Signal     string
	Duration   int
	Transition Transition
}

// Resolve joins a pattern's occurrences with their phases, in pattern order.
// References to phases that no longer exist are skipped.
func Resolve(p *Pattern, phases []Phase) ([]Step, error) {
	byID := make(map[string]Phase, len(phases))
	for _, ph := range phases {
		byID[ph.ID] = ph
	}

	steps := make([]Step, 0, len(p.Phases))
	for _, occ := range p.Phases {
		ph, ok := byID[occ.PhaseID]
		if !ok {
			continue
		}
		steps = append(steps, Step{
			Name:       ph.Name,
			Signal:     ph.Signal,
			Duration:   occ.Duration,
			Transition: ph.Transition,
		})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPhases, p.Name)
	}
	return steps, nil
}
