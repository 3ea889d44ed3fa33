// Package logging provides structured logging for the signal gateway.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device online", "device_id", id)
//	logger.With("component", "presence").Warn("persisting power failed", "error", err)
//
// Never log identify tokens, broker passwords or junction passwords.
package logging
