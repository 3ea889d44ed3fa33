// Package api hosts the gateway's network surface: the duplex socket that
// controllers and web clients connect to, plus a small HTTP API for health
// and metrics.
//
// # Socket Endpoint
//
// Every accepted socket becomes a gateway.Conn registered with the gateway's
// registry. Text frames are handed to Gateway.Handle one at a time, so each
// connection's frames are processed in arrival order. Protocol-level pings
// are heartbeats: their application data carries the controller's device ID
// and is forwarded to Gateway.Heartbeat before the pong is written.
//
// # Graceful Degradation
//
// The MQTT mirror, the InfluxDB sink and the database are optional for the
// metrics and health endpoints; absent components are reported as such
// rather than failing the request.
package api
