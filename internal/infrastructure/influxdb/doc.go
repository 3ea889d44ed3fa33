// Package influxdb records junction telemetry as time series.
//
// The gateway persists the latest telemetry snapshot per device in SQLite;
// this package keeps the history. Every accepted info report becomes one
// point per approach carrying battery and temperature, and every presence
// transition becomes a presence point.
//
// Writes are non-blocking and batched by the underlying client. Write
// failures surface through the callback registered with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	client.WriteApproachReading("TL-01", "North", "12.4", "31", time.Now())
package influxdb
