package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/audit"
	"github.com/quadrumtech/signal-gateway/internal/gateway"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/config"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/database"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/influxdb"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/logging"
	"github.com/quadrumtech/signal-gateway/internal/infrastructure/mqtt"
	"github.com/quadrumtech/signal-gateway/internal/presence"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server. Config, Logger and
// Gateway are required. Audit enables the audit listing; the rest only feed
// the health and metrics endpoints.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Gateway  *gateway.Gateway
	Audit    audit.Repository
	DB       *database.DB
	MQTT     *mqtt.Client
	Influx   *influxdb.Client
	Presence *presence.Monitor
	Version  string
}

// Server is the HTTP and socket front end of the gateway.
//
// The server is created with New and started with Start.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	gateway   *gateway.Gateway
	audit     audit.Repository
	db        *database.DB
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	presence  *presence.Monitor
	version   string
	startTime time.Time

	server *http.Server
	addr   net.Addr
	ctx    context.Context
	cancel context.CancelFunc
	pumps  sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	ws := deps.WS
	if ws.Path == "" {
		ws.Path = "/ws"
	}
	if ws.MaxMessageSize <= 0 {
		ws.MaxMessageSize = defaultMaxMessageSize
	}
	if ws.PingInterval <= 0 {
		ws.PingInterval = defaultPingInterval
	}
	if ws.PongTimeout <= 0 {
		ws.PongTimeout = defaultPongTimeout
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     ws,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		audit:     deps.Audit,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		presence:  deps.Presence,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens synchronously so a port already in use is reported here
// rather than in the logs.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.addr = ln.Addr()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
				"ws_path", s.wsCfg.Path,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting",
				"address", ln.Addr().String(),
				"ws_path", s.wsCfg.Path,
			)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Close stops accepting connections, closes every open socket and waits up
// to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	// Hijacked sockets are not tracked by http.Server.
	s.gateway.Registry().CloseAll()
	s.pumps.Wait()

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
