package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/timeline"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	mu       sync.Mutex
	power    map[string]bool
	lastSeen map[string]*time.Time
	fail     bool
}

func newMockStore() *mockStore {
	return &mockStore{power: map[string]bool{}, lastSeen: map[string]*time.Time{}}
}

func (s *mockStore) SetPower(_ context.Context, id string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.power[id] = on
	return nil
}

func (s *mockStore) SetLastSeen(_ context.Context, id string, t *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.lastSeen[id] = t
	return nil
}

type statusEvent struct {
	id       string
	online   bool
	lastSeen *time.Time
}

type recorder struct {
	mu     sync.Mutex
	events []statusEvent
}

func (r *recorder) DeviceStatus(id string, online bool, lastSeen *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, statusEvent{id, online, lastSeen})
}

func (r *recorder) snapshot() []statusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusEvent(nil), r.events...)
}

func setup(t *testing.T) (*Monitor, *mockStore, *recorder, *timeline.ManualClock) {
	t.Helper()
	clock := timeline.NewManualClock(epoch)
	store := newMockStore()
	rec := &recorder{}
	m := New(store, Config{Timeout: 20 * time.Second, Clock: clock})
	m.SetNotifier(rec)
	t.Cleanup(m.Stop)
	return m, store, rec, clock
}

func TestHeartbeatsWithinWindowAnnounceOnce(t *testing.T) {
	m, store, rec, clock := setup(t)

	for i := 0; i < 5; i++ {
		m.Heartbeat("D1")
		clock.Advance(10 * time.Second)
	}

	events := rec.snapshot()
	if len(events) != 1 || !events[0].online || events[0].lastSeen != nil {
		t.Fatalf("events = %+v, want one online event", events)
	}
	if !store.power["D1"] {
		t.Error("Power should be true")
	}
	if m.State("D1") != StateOnline {
		t.Errorf("State() = %q, want online", m.State("D1"))
	}
	if clock.Pending() != 1 {
		t.Errorf("Pending() = %d, want exactly one live timer", clock.Pending())
	}
}

func TestTimeoutFiresOnceWithLastSeen(t *testing.T) {
	m, store, rec, clock := setup(t)

	m.Heartbeat("D1")
	clock.Advance(5 * time.Second)
	m.Heartbeat("D1")
	last := clock.Now()

	clock.Advance(19 * time.Second)
	if len(rec.snapshot()) != 1 {
		t.Fatalf("offline fired early: %+v", rec.snapshot())
	}

	clock.Advance(time.Minute)
	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("events = %+v, want online then offline", events)
	}
	off := events[1]
	if off.online || off.lastSeen == nil {
		t.Fatalf("second event = %+v, want offline with lastSeen", off)
	}
	if off.lastSeen.Before(last.Add(20 * time.Second)) {
		t.Errorf("lastSeen = %v, want >= %v", off.lastSeen, last.Add(20*time.Second))
	}
	if store.power["D1"] {
		t.Error("Power should be false after expiry")
	}
	if got := store.lastSeen["D1"]; got == nil || !got.Equal(*off.lastSeen) {
		t.Errorf("stored lastSeen = %v", got)
	}
	if m.State("D1") != StateOffline {
		t.Errorf("State() = %q, want offline", m.State("D1"))
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after expiry", clock.Pending())
	}
}

func TestHeartbeatAfterOfflineComesBackOnline(t *testing.T) {
	m, store, rec, clock := setup(t)

	m.Heartbeat("D1")
	clock.Advance(21 * time.Second)
	m.Heartbeat("D1")

	events := rec.snapshot()
	if len(events) != 3 || !events[2].online {
		t.Fatalf("events = %+v, want online, offline, online", events)
	}
	if store.lastSeen["D1"] != nil {
		t.Error("lastSeen should be cleared when back online")
	}
	if m.State("D1") != StateOnline {
		t.Errorf("State() = %q, want online", m.State("D1"))
	}
}

func TestDevicesAreIndependent(t *testing.T) {
	m, _, rec, clock := setup(t)

	m.Heartbeat("D1")
	clock.Advance(10 * time.Second)
	m.Heartbeat("D2")
	clock.Advance(15 * time.Second)

	events := rec.snapshot()
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[2].id != "D1" || events[2].online {
		t.Errorf("third event = %+v, want D1 offline", events[2])
	}
	if got := m.Stats(); got.Tracked != 2 || got.Online != 1 {
		t.Errorf("Stats() = %+v, want tracked 2 online 1", got)
	}
}

func TestStoreFailureDoesNotSuppressAnnouncement(t *testing.T) {
	m, store, rec, clock := setup(t)
	store.fail = true

	m.Heartbeat("D1")
	clock.Advance(time.Minute)

	events := rec.snapshot()
	if len(events) != 2 || !events[0].online || events[1].online {
		t.Fatalf("events = %+v, want online then offline", events)
	}
}

func TestForgetCancelsTimer(t *testing.T) {
	m, _, rec, clock := setup(t)

	m.Heartbeat("D1")
	m.Forget("D1")
	clock.Advance(time.Minute)

	if len(rec.snapshot()) != 1 {
		t.Errorf("events = %+v, want only the online event", rec.snapshot())
	}
	if m.State("D1") != StateUnknown {
		t.Errorf("State() = %q, want unknown", m.State("D1"))
	}
	m.Forget("never-seen")
}

func TestStopIgnoresLaterHeartbeats(t *testing.T) {
	m, _, rec, clock := setup(t)

	m.Heartbeat("D1")
	m.Stop()
	m.Heartbeat("D2")
	clock.Advance(time.Minute)

	if len(rec.snapshot()) != 1 {
		t.Errorf("events = %+v, want only D1 online", rec.snapshot())
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clock.Pending())
	}
}

func TestEmptyDeviceIDIgnored(t *testing.T) {
	m, _, rec, clock := setup(t)
	m.Heartbeat("")
	if clock.Pending() != 0 || len(rec.snapshot()) != 0 {
		t.Error("empty device id should be ignored")
	}
}

func TestConcurrentHeartbeats(t *testing.T) {
	store := newMockStore()
	rec := &recorder{}
	m := New(store, Config{Timeout: time.Hour})
	m.SetNotifier(rec)
	defer m.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Heartbeat("D1")
		}()
	}
	wg.Wait()

	if len(rec.snapshot()) != 1 {
		t.Errorf("online events = %d, want 1", len(rec.snapshot()))
	}
}

func TestHeartbeatRestoresPowerWhileOnline(t *testing.T) {
	m, store, rec, clock := setup(t)

	m.Heartbeat("D1")
	t0 := clock.Now()
	store.power["D1"] = false
	store.lastSeen["D1"] = &t0

	clock.Advance(5 * time.Second)
	m.Heartbeat("D1")

	if !store.power["D1"] || store.lastSeen["D1"] != nil {
		t.Errorf("power = %v, lastSeen = %v, want true and nil", store.power["D1"], store.lastSeen["D1"])
	}
	if len(rec.snapshot()) != 1 {
		t.Errorf("events = %+v, want the single online event", rec.snapshot())
	}
}

func TestMarkOfflineThenHeartbeatAnnouncesOnline(t *testing.T) {
	m, store, rec, clock := setup(t)

	m.Heartbeat("D1")
	m.MarkOffline("D1")
	if m.State("D1") != StateOffline {
		t.Fatalf("State() = %q, want offline", m.State("D1"))
	}

	// The pending expiry must not announce a second offline.
	clock.Advance(25 * time.Second)
	if len(rec.snapshot()) != 1 {
		t.Fatalf("events = %+v, want only the first online", rec.snapshot())
	}

	m.Heartbeat("D1")
	events := rec.snapshot()
	if len(events) != 2 || !events[1].online {
		t.Fatalf("events = %+v, want online again", events)
	}
	if !store.power["D1"] || store.lastSeen["D1"] != nil {
		t.Error("heartbeat should persist power on and clear lastSeen")
	}

	m.MarkOffline("never-seen")
}

func TestHeartbeatRacingForgetLeavesNoOrphanTimer(t *testing.T) {
	for i := 0; i < 200; i++ {
		clock := timeline.NewManualClock(epoch)
		m := New(newMockStore(), Config{Timeout: 20 * time.Second, Clock: clock})

		m.Heartbeat("D1")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Heartbeat("D1")
		}()
		go func() {
			defer wg.Done()
			m.Forget("D1")
		}()
		wg.Wait()

		tracked := m.State("D1") != StateUnknown
		if !tracked && clock.Pending() != 0 {
			t.Fatalf("iteration %d: untracked device has %d live timers", i, clock.Pending())
		}
		m.Stop()
	}
}
