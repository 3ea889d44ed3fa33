package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementApproach = "junction_approach"
	MeasurementPresence = "device_presence"
)

// WriteApproachReading queues the battery and temperature reported for one
// approach of a junction. Values that are not numeric are left out; if
// neither parses nothing is written.
func (c *Client) WriteApproachReading(deviceID, approach, battery, temperature string, at time.Time) {
	p := approachPoint(deviceID, approach, battery, temperature, at)
	if p == nil {
		return
	}
	c.writePoint(p)
}

// WritePresence queues a presence transition for a device.
func (c *Client) WritePresence(deviceID string, online bool, at time.Time) {
	c.writePoint(presencePoint(deviceID, online, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func approachPoint(deviceID, approach, battery, temperature string, at time.Time) *write.Point {
	fields := make(map[string]interface{}, 2)
	if v, ok := parseReading(battery); ok {
		fields["battery"] = v
	}
	if v, ok := parseReading(temperature); ok {
		fields["temperature"] = v
	}
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{
		"device_id": deviceID,
		"approach":  strings.ToLower(approach),
	}
	return write.NewPoint(MeasurementApproach, tags, fields, at)
}

func presencePoint(deviceID string, online bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPresence,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"online": online},
		at,
	)
}

func parseReading(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
