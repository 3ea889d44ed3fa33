// Package device holds the persisted records the gateway keeps per traffic
// signal controller:
//
//   - Device: identity, owning account and lifecycle status. Rows are created
//     by the registration flow; the gateway reads ownership and maintains
//     LastSeen (nil while the controller is online).
//   - ControlState: the live remote-control flags mutated by intersection
//     control requests and mirrored from hardware state frames.
//   - Telemetry: the last junction report received in an info frame.
//
// All access goes through Repository. SQLiteRepository is the production
// implementation; tests in other packages use in-memory fakes.
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use. Records returned by it are
// copies owned by the caller.
package device
