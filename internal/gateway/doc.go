// Package gateway routes socket traffic between traffic signal controllers
// and the browser clients that supervise them.
//
// Every connection is held in a Registry and tagged with a Role once it
// identifies. Inbound text frames are handed to Gateway.Handle, which decodes
// them with package wire and dispatches on message family:
//
//   - web clients send {event, payload} requests: identify, state and info
//     requests, intersection control, program upload and download, and
//     manual signal changes
//   - controllers send {Event:"data", Type, Param} reports: identify, info,
//     state, sign and prog
//
// Replies, commands and feedback go back out through the Registry. Errors
// never escape Handle: each failure becomes an {event:"error"} frame for the
// sender, and panics are recovered so one bad frame cannot drop the process.
//
// Presence is not tracked here. Protocol pings are forwarded to the presence
// monitor through Heartbeat, and the monitor reports transitions back through
// DeviceStatus, which fans them out to authorized clients.
package gateway
