package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/quadrumtech/signal-gateway/internal/timeline"
)

// States of a tracked device.
const (
	StateUnknown = "unknown"
	StateOnline  = "online"
	StateOffline = "offline"
)

const (
	eventHeartbeat = "heartbeat"
	eventExpire    = "expire"
	eventPowerOff  = "power_off"

	storeTimeout = 5 * time.Second
)

// DefaultTimeout is used when Config.Timeout is not positive.
const DefaultTimeout = 20 * time.Second

// Store persists presence transitions.
type Store interface {
	SetPower(ctx context.Context, deviceID string, on bool) error
	SetLastSeen(ctx context.Context, deviceID string, lastSeen *time.Time) error
}

// Notifier receives presence transitions. lastSeen is nil when online.
type Notifier interface {
	DeviceStatus(deviceID string, online bool, lastSeen *time.Time)
}

// Logger is the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Monitor.
type Config struct {
	Timeout time.Duration
	Clock   timeline.Clock
	Logger  Logger
}

// Stats summarises tracked devices.
type Stats struct {
	Tracked int `json:"tracked"`
	Online  int `json:"online"`
}

// Monitor tracks heartbeat-driven presence for every device seen.
type Monitor struct {
	store   Store
	clock   timeline.Clock
	timeout time.Duration
	logger  Logger

	mu       sync.Mutex
	devices  map[string]*tracker
	notifier Notifier
	stopped  bool
}

type tracker struct {
	mu      sync.Mutex
	machine *fsm.FSM
	timer   timeline.Timer
	gen     uint64
}

// New creates a Monitor.
func New(store Store, cfg Config) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeline.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Monitor{
		store:   store,
		clock:   cfg.Clock,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		devices: make(map[string]*tracker),
	}
}

// SetNotifier sets the receiver of presence transitions.
func (m *Monitor) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// Timeout returns the expiry window.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

// Heartbeat records a liveness signal from deviceID. It re-arms the device's
// expiry timer, persists power on with no last-seen time, and announces the
// device online when it was not already.
func (m *Monitor) Heartbeat(deviceID string) {
	if deviceID == "" {
		return
	}
	tr := m.lockTracker(deviceID)
	if tr == nil {
		return
	}
	defer tr.mu.Unlock()

	if tr.timer != nil {
		tr.timer.Stop()
	}
	tr.gen++
	gen := tr.gen
	tr.timer = m.clock.AfterFunc(m.timeout, func() { m.expire(deviceID, tr, gen) })

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.SetPower(ctx, deviceID, true); err != nil {
		m.logger.Error("persisting power on", "device_id", deviceID, "error", err)
	}
	if err := m.store.SetLastSeen(ctx, deviceID, nil); err != nil {
		m.logger.Error("clearing last seen", "device_id", deviceID, "error", err)
	}

	if !tr.machine.Can(eventHeartbeat) {
		return
	}
	if err := tr.machine.Event(context.Background(), eventHeartbeat); err != nil {
		m.logger.Error("presence transition failed", "device_id", deviceID, "error", err)
		return
	}
	m.notify(deviceID, true, nil)
}

// MarkOffline moves an online device to offline without touching the store
// or announcing anything. The caller has already done both. The next
// heartbeat announces the device online again.
func (m *Monitor) MarkOffline(deviceID string) {
	m.mu.Lock()
	tr, ok := m.devices[deviceID]
	m.mu.Unlock()
	if !ok {
		return
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.machine.Can(eventPowerOff) {
		return
	}
	if err := tr.machine.Event(context.Background(), eventPowerOff); err != nil {
		m.logger.Error("presence transition failed", "device_id", deviceID, "error", err)
	}
}

// expire runs when a device's timer fires. Timers superseded by a later
// heartbeat carry a stale generation and do nothing.
func (m *Monitor) expire(deviceID string, tr *tracker, gen uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if gen != tr.gen || tr.timer == nil {
		return
	}
	tr.timer = nil

	// Already offline after an explicit power off.
	if !tr.machine.Can(eventExpire) {
		return
	}
	if err := tr.machine.Event(context.Background(), eventExpire); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			m.logger.Error("presence transition failed", "device_id", deviceID, "error", err)
		}
		return
	}

	lastSeen := m.clock.Now()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.SetPower(ctx, deviceID, false); err != nil {
		m.logger.Error("persisting power off", "device_id", deviceID, "error", err)
	}
	if err := m.store.SetLastSeen(ctx, deviceID, &lastSeen); err != nil {
		m.logger.Error("persisting last seen", "device_id", deviceID, "error", err)
	}
	m.notify(deviceID, false, &lastSeen)
}

// Forget stops tracking deviceID without announcing a transition. It is used
// when a device's records are deleted.
func (m *Monitor) Forget(deviceID string) {
	m.mu.Lock()
	tr, ok := m.devices[deviceID]
	delete(m.devices, deviceID)
	m.mu.Unlock()
	if !ok {
		return
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.timer != nil {
		tr.timer.Stop()
		tr.timer = nil
	}
	tr.gen++
}

// State returns the presence state of deviceID.
func (m *Monitor) State(deviceID string) string {
	m.mu.Lock()
	tr, ok := m.devices[deviceID]
	m.mu.Unlock()
	if !ok {
		return StateUnknown
	}
	return tr.machine.Current()
}

// Stats returns counts of tracked and online devices.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	trackers := make([]*tracker, 0, len(m.devices))
	for _, tr := range m.devices {
		trackers = append(trackers, tr)
	}
	m.mu.Unlock()

	s := Stats{Tracked: len(trackers)}
	for _, tr := range trackers {
		if tr.machine.Is(StateOnline) {
			s.Online++
		}
	}
	return s
}

// Stop cancels every timer. Heartbeats received afterwards are ignored.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	trackers := make([]*tracker, 0, len(m.devices))
	for _, tr := range m.devices {
		trackers = append(trackers, tr)
	}
	m.mu.Unlock()

	for _, tr := range trackers {
		tr.mu.Lock()
		if tr.timer != nil {
			tr.timer.Stop()
			tr.timer = nil
		}
		tr.gen++
		tr.mu.Unlock()
	}
}

// lockTracker returns deviceID's tracker with its mutex held, creating it if
// needed. A tracker removed by Forget between lookup and locking is never
// returned. It returns nil once the monitor is stopped.
func (m *Monitor) lockTracker(deviceID string) *tracker {
	for {
		tr := m.tracker(deviceID)
		if tr == nil {
			return nil
		}
		tr.mu.Lock()
		m.mu.Lock()
		current := m.devices[deviceID] == tr
		m.mu.Unlock()
		if current {
			return tr
		}
		tr.mu.Unlock()
	}
}

func (m *Monitor) tracker(deviceID string) *tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	tr, ok := m.devices[deviceID]
	if !ok {
		tr = &tracker{machine: m.newMachine(deviceID)}
		m.devices[deviceID] = tr
	}
	return tr
}

func (m *Monitor) newMachine(deviceID string) *fsm.FSM {
	return fsm.NewFSM(
		StateUnknown,
		fsm.Events{
			{Name: eventHeartbeat, Src: []string{StateUnknown, StateOffline}, Dst: StateOnline},
			{Name: eventExpire, Src: []string{StateOnline}, Dst: StateOffline},
			{Name: eventPowerOff, Src: []string{StateOnline}, Dst: StateOffline},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Info("device presence changed",
					"device_id", deviceID,
					"from", e.Src,
					"to", e.Dst,
				)
			},
		},
	)
}

func (m *Monitor) notify(deviceID string, online bool, lastSeen *time.Time) {
	m.mu.Lock()
	n := m.notifier
	m.mu.Unlock()
	if n != nil {
		n.DeviceStatus(deviceID, online, lastSeen)
	}
}
