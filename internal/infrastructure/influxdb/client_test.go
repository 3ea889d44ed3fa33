package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/infrastructure/config"
)

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "signalgw-dev-token",
		Org:           "quadrum",
		Bucket:        "junctions",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	c, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	c, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() error = %v, want ErrDisabled", err)
	}
	if c != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
}

func TestClosedClient_DropsWrites(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	// Must not panic with a nil write API.
	c.WriteApproachReading("TL-01", "North", "12", "30", time.Now())
	c.WritePresence("TL-01", true, time.Now())
	c.Flush()
}

func TestApproachPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := approachPoint("TL-01", "North", "12.5", " 31 ", at)
	if p == nil {
		t.Fatal("approachPoint() = nil")
	}
	if p.Name() != MeasurementApproach {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "TL-01" || tags["approach"] != "north" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["battery"] != 12.5 {
		t.Errorf("battery = %v, want 12.5", fields["battery"])
	}
	if fields["temperature"] != 31.0 {
		t.Errorf("temperature = %v, want 31", fields["temperature"])
	}
}

func TestApproachPoint_SkipsNonNumeric(t *testing.T) {
	p := approachPoint("TL-01", "East", "low", "28", time.Now())
	if p == nil {
		t.Fatal("approachPoint() = nil, want temperature only")
	}
	if n := len(p.FieldList()); n != 1 {
		t.Errorf("len(FieldList()) = %d, want 1", n)
	}

	if p := approachPoint("TL-01", "East", "", "n/a", time.Now()); p != nil {
		t.Error("approachPoint() with no numeric values should be nil")
	}
}

func TestPresencePoint(t *testing.T) {
	p := presencePoint("TL-02", false, time.Now())
	if p.Name() != MeasurementPresence {
		t.Errorf("Name() = %q", p.Name())
	}
	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "online" || fields[0].Value != false {
		t.Errorf("fields = %+v", fields)
	}
}

func TestWrite_Integration(t *testing.T) {
	c := connectOrSkip(t)

	var (
		mu       sync.Mutex
		writeErr error
	)
	c.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	c.WriteApproachReading("TL-TEST", "South", "11.9", "29", time.Now())
	c.WritePresence("TL-TEST", true, time.Now())
	c.Flush()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("async write error: %v", writeErr)
	}
}
