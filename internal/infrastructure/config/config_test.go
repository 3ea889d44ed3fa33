package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/signalgw-test.db"
api:
  host: "127.0.0.1"
  port: 9000
gateway:
  heartbeat_timeout: 30
  hard_reset_action: "Restart"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/signalgw-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/signalgw-test.db")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Gateway.HeartbeatTimeoutDuration() != 30*time.Second {
		t.Errorf("HeartbeatTimeoutDuration() = %v, want 30s", cfg.Gateway.HeartbeatTimeoutDuration())
	}
	if cfg.Gateway.HardResetAction != "Restart" {
		t.Errorf("HardResetAction = %q, want %q", cfg.Gateway.HardResetAction, "Restart")
	}
	// Unset values keep their defaults.
	if cfg.Gateway.RTCOffset != 3600 {
		t.Errorf("RTCOffset = %d, want 3600", cfg.Gateway.RTCOffset)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want /ws", cfg.WebSocket.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/from-file.db"
`)
	t.Setenv("SIGNALGW_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("SIGNALGW_API_PORT", "7070")
	t.Setenv("SIGNALGW_HEARTBEAT_TIMEOUT", "11")
	t.Setenv("SIGNALGW_JWT_SECRET", "an-identify-secret-that-is-long-enough")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want 7070", cfg.API.Port)
	}
	if cfg.Gateway.HeartbeatTimeout != 11 {
		t.Errorf("HeartbeatTimeout = %d, want 11", cfg.Gateway.HeartbeatTimeout)
	}
	if cfg.Security.JWT.Secret == "" {
		t.Error("JWT secret should be taken from the environment")
	}
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	path := writeConfig(t, "database:\n  path: /tmp/x.db\n")
	t.Setenv("SIGNALGW_API_PORT", "not-a-port")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for non-numeric SIGNALGW_API_PORT")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "zero heartbeat timeout",
			mutate:  func(c *Config) { c.Gateway.HeartbeatTimeout = 0 },
			wantErr: "heartbeat_timeout",
		},
		{
			name:    "empty hard reset action",
			mutate:  func(c *Config) { c.Gateway.HardResetAction = "" },
			wantErr: "hard_reset_action",
		},
		{
			name:    "token required without secret",
			mutate:  func(c *Config) { c.Security.JWT.RequireIdentifyToken = true },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "influxdb enabled without bucket",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://localhost:8086" },
			wantErr: "influxdb",
		},
		{
			name:    "websocket path without slash",
			mutate:  func(c *Config) { c.WebSocket.Path = "ws" },
			wantErr: "websocket.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestGatewayConfig_Durations(t *testing.T) {
	g := defaultConfig().Gateway

	if got := g.ManualSettleDuration(); got != time.Second {
		t.Errorf("ManualSettleDuration() = %v, want 1s", got)
	}
	if got := g.BlinkIntervalDuration(); got != 500*time.Millisecond {
		t.Errorf("BlinkIntervalDuration() = %v, want 500ms", got)
	}
	if got := g.ClockSkewDuration(); got != time.Minute {
		t.Errorf("ClockSkewDuration() = %v, want 1m", got)
	}
	if got := g.RTCOffsetDuration(); got != time.Hour {
		t.Errorf("RTCOffsetDuration() = %v, want 1h", got)
	}
}

func TestAPIConfig_Timeouts(t *testing.T) {
	a := defaultConfig().API

	if a.ReadTimeout() != 30*time.Second || a.WriteTimeout() != 30*time.Second {
		t.Errorf("read/write = %v/%v, want 30s each", a.ReadTimeout(), a.WriteTimeout())
	}
	if a.IdleTimeout() != time.Minute {
		t.Errorf("IdleTimeout() = %v, want 1m", a.IdleTimeout())
	}
}
