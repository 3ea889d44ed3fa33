// signalgw is the traffic-signal gateway: a single socket endpoint that
// relays commands from web operators to junction controllers and feeds
// controller telemetry and presence back to the operators allowed to see it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/quadrumtech/signal-gateway/migrations"

	"github.com/quadrumtech/signal-gateway/internal/api"
	"github.com/quadrumtech/signal-gateway/internal/audit"
	"github.com/quadrumtech/signal-gateway/internal/auth"
	"github.com/quadrumtech/signal-gateway/internal/device"
	"github.com/quadrumtech/signal-gateway/internal/gateway"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/config"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/database"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/influxdb"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/logging"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/mqtt"
	"github.com/quadrumtech/signal-gateway/internal/presence"
	"github.com/quadrumtech/signal-gateway/internal/program"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "SIGNALGW_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// cleanups run in reverse order of start-up.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting signal gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	devices := device.NewSQLiteRepository(db.DB)
	programs := program.NewSQLiteRepository(db.DB)
	audits := audit.NewSQLiteRepository(db.DB)

	mqttClient := connectMQTT(cfg.MQTT, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInfluxDB(cfg.InfluxDB, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	monitor := presence.New(devices, presence.Config{
		Timeout: cfg.Gateway.HeartbeatTimeoutDuration(),
		Logger:  log.With("component", "presence"),
	})
	defer monitor.Stop()

	gwLog := log.With("component", "gateway")
	deps := gateway.Deps{
		Registry: gateway.NewRegistry(gwLog),
		Devices:  devices,
		Programs: programs,
		Presence: monitor,
		Audit:    audits,
		Verifier: auth.NewVerifier(cfg.Security.JWT.Secret, cfg.Security.JWT.RequireIdentifyToken),
		Logger:   gwLog,
		Options:  gateway.OptionsFromConfig(cfg.Gateway),
	}
	// A nil *Client stored in an interface is not a nil interface.
	if mqttClient != nil {
		deps.Mirror = mqttClient
	}
	if influxClient != nil {
		deps.Sink = influxClient
	}
	gw := gateway.New(deps)
	defer gw.Shutdown()
	monitor.SetNotifier(gw)

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.With("component", "api"),
		Gateway:  gw,
		Audit:    audits,
		DB:       db,
		MQTT:     mqttClient,
		Influx:   influxClient,
		Presence: monitor,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"address", server.Addr(),
		"ws_path", cfg.WebSocket.Path,
		"mqtt_mirror", mqttClient != nil,
		"influxdb_sink", influxClient != nil,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when the mirror is disabled or unreachable. The
// gateway runs without it.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT mirror disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT mirror unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// connectInfluxDB returns nil when the sink is disabled or unreachable.
func connectInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client
}

func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
