// Package config loads and validates the signal gateway configuration.
//
// Configuration is assembled in layers:
//   - Built-in defaults
//   - An optional .env file in the working directory (never overrides
//     variables already present in the environment)
//   - The YAML configuration file
//   - SIGNALGW_* environment variable overrides
//
// Security Considerations:
//   - Broker passwords, InfluxDB tokens and the identify-token secret should be
//     supplied through the environment rather than the YAML file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.HeartbeatTimeout)
package config
