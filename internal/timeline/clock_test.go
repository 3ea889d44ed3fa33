package timeline

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestManualClockFiresInOrder(t *testing.T) {
	c := NewManualClock(epoch)
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() { got = append(got, "a") })
	c.AfterFunc(2*time.Second, func() { got = append(got, "c") })

	c.Advance(1500 * time.Millisecond)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("after 1.5s fired %v, want [a]", got)
	}

	c.Advance(time.Second)
	if len(got) != 3 || got[1] != "b" || got[2] != "c" {
		t.Fatalf("after 2.5s fired %v, want [a b c]", got)
	}
	if !c.Now().Equal(epoch.Add(2500 * time.Millisecond)) {
		t.Errorf("Now() = %v", c.Now())
	}
}

func TestManualClockStop(t *testing.T) {
	c := NewManualClock(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop() should report true")
	}
	if timer.Stop() {
		t.Error("second Stop() should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestManualClockTimerArmedWhileFiring(t *testing.T) {
	c := NewManualClock(epoch)
	var at []time.Time
	c.AfterFunc(time.Second, func() {
		at = append(at, c.Now())
		c.AfterFunc(time.Second, func() { at = append(at, c.Now()) })
	})

	c.Advance(5 * time.Second)
	if len(at) != 2 {
		t.Fatalf("fired %d callbacks, want 2", len(at))
	}
	if !at[1].Equal(epoch.Add(2 * time.Second)) {
		t.Errorf("chained timer fired at %v, want +2s", at[1])
	}
}
