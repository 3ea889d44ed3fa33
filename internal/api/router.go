package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component probe in the health endpoint.
const healthCheckTimeout = 3 * time.Second

// Component health values.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
	healthDown     = "down"
	healthDisabled = "disabled"
)

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// The socket endpoint reads its own frames; the body limit applies only
	// to the plain HTTP routes.
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.bodySizeLimitMiddleware)

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		if s.audit != nil {
			r.Get("/audit", s.handleListAudit)
		}
	})

	return r
}

// handleHealth reports the state of the database and the optional outbound
// components. Only a failing database makes the gateway unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     healthOK,
		Version:    s.version,
		Components: make(map[string]string, 3),
	}
	status := http.StatusOK

	switch {
	case s.db == nil:
		resp.Components["database"] = healthDisabled
	case s.db.HealthCheck(ctx) != nil:
		resp.Components["database"] = healthDown
		resp.Status = healthDown
		status = http.StatusServiceUnavailable
	default:
		resp.Components["database"] = healthOK
	}

	resp.Components["mqtt"] = optionalHealth(s.mqtt != nil, s.mqtt.IsConnected())
	resp.Components["influxdb"] = optionalHealth(s.influx != nil, s.influx.IsConnected())

	if resp.Status == healthOK {
		for _, v := range resp.Components {
			if v == healthDown {
				resp.Status = healthDegraded
				break
			}
		}
	}

	writeJSON(w, status, resp)
}

func optionalHealth(enabled, connected bool) string {
	switch {
	case !enabled:
		return healthDisabled
	case connected:
		return healthOK
	default:
		return healthDown
	}
}
