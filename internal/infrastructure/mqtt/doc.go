// Package mqtt mirrors gateway events onto an MQTT broker.
//
// The mirror is optional and one-way: device status changes, telemetry
// reports and applied control actions are published so dashboards and other
// services can follow the fleet without holding a socket open. Nothing is
// consumed from the broker.
//
// # Topics
//
//	<prefix>/device/<id>/status     retained, device_status events
//	<prefix>/device/<id>/telemetry  info reports
//	<prefix>/device/<id>/control    applied control actions
//	<prefix>/system/status          retained, gateway online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishDeviceStatus("TSLC-001", event)
package mqtt
