package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override.
const envPrefix = "SIGNALGW_"

// minJWTSecretLength is the shortest identify-token secret accepted.
const minJWTSecretLength = 32

// Config is the root configuration structure for the signal gateway.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Security  SecurityConfig  `yaml:"security"`
}

// APIConfig contains HTTP listener settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the duplex socket endpoint.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains settings for the optional status mirror.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// GatewayConfig holds the protocol tunables that differ between hardware
// firmware generations.
type GatewayConfig struct {
	// HeartbeatTimeout is the number of seconds without a ping after which a
	// device is declared offline.
	HeartbeatTimeout int `yaml:"heartbeat_timeout"`

	// RTCOffset is added (in seconds) to Unix time when producing the
	// controller's real-time-clock value.
	RTCOffset int `yaml:"rtc_offset"`

	// ClockSkewTolerance is the largest RTC disagreement, in seconds, under
	// which info telemetry is accepted.
	ClockSkewTolerance int `yaml:"clock_skew_tolerance"`

	// HardResetAction is the control action name that triggers a hard reset.
	HardResetAction string `yaml:"hard_reset_action"`

	// ManualSettleDelay is the pause in milliseconds between the initial
	// frame of a manual phase change and its transition frames.
	ManualSettleDelay int `yaml:"manual_settle_delay"`

	// BlinkInterval is the spacing in milliseconds between manual blink frames.
	BlinkInterval int `yaml:"blink_interval"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig configures verification of signed web-client identify tokens.
type JWTConfig struct {
	Secret               string `yaml:"secret"`
	RequireIdentifyToken bool   `yaml:"require_identify_token"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading order is:
//  1. Default values
//  2. .env file (if present in the working directory)
//  3. YAML file values
//  4. SIGNALGW_* environment variables
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8443,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    30,
			SendBuffer:     256,
		},
		Database: DatabaseConfig{
			Path:        "./data/signalgw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "signalgw",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "signalgw",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Gateway: GatewayConfig{
			HeartbeatTimeout:   20,
			RTCOffset:          3600,
			ClockSkewTolerance: 60,
			HardResetAction:    "Reset!",
			ManualSettleDelay:  1000,
			BlinkInterval:      500,
		},
	}
}

// applyEnvOverrides applies SIGNALGW_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv(envPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv(envPrefix + "API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sAPI_PORT: %w", envPrefix, err)
		}
		cfg.API.Port = port
	}

	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv(envPrefix + "HEARTBEAT_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHEARTBEAT_TIMEOUT: %w", envPrefix, err)
		}
		cfg.Gateway.HeartbeatTimeout = secs
	}
	if v := os.Getenv(envPrefix + "HARD_RESET_ACTION"); v != "" {
		cfg.Gateway.HardResetAction = v
	}

	if v := os.Getenv(envPrefix + "JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Gateway.HeartbeatTimeout <= 0 {
		errs = append(errs, "gateway.heartbeat_timeout must be positive")
	}
	if c.Gateway.ClockSkewTolerance < 0 {
		errs = append(errs, "gateway.clock_skew_tolerance cannot be negative")
	}
	if c.Gateway.HardResetAction == "" {
		errs = append(errs, "gateway.hard_reset_action is required")
	}
	if c.Gateway.ManualSettleDelay < 0 || c.Gateway.BlinkInterval <= 0 {
		errs = append(errs, "gateway.manual_settle_delay cannot be negative and gateway.blink_interval must be positive")
	}

	// An unsigned deployment is allowed, but a configured secret must be strong.
	if c.Security.JWT.RequireIdentifyToken && c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required when identify tokens are required (set SIGNALGW_JWT_SECRET)")
	} else if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the HTTP read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the HTTP keep-alive timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// HeartbeatTimeoutDuration returns the presence expiry window.
func (g GatewayConfig) HeartbeatTimeoutDuration() time.Duration {
	return time.Duration(g.HeartbeatTimeout) * time.Second
}

// RTCOffsetDuration returns the offset applied to controller clock values.
func (g GatewayConfig) RTCOffsetDuration() time.Duration {
	return time.Duration(g.RTCOffset) * time.Second
}

// ClockSkewDuration returns the largest accepted controller clock drift.
func (g GatewayConfig) ClockSkewDuration() time.Duration {
	return time.Duration(g.ClockSkewTolerance) * time.Second
}

// ManualSettleDuration returns the settle delay for manual phase changes.
func (g GatewayConfig) ManualSettleDuration() time.Duration {
	return time.Duration(g.ManualSettleDelay) * time.Millisecond
}

// BlinkIntervalDuration returns the spacing between manual blink frames.
func (g GatewayConfig) BlinkIntervalDuration() time.Duration {
	return time.Duration(g.BlinkInterval) * time.Millisecond
}
