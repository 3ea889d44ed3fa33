// Package presence infers controller liveness from heartbeats.
//
// Each device ID gets a small state machine (unknown → online → offline →
// online) and at most one expiry timer. A heartbeat cancels and replaces the
// timer; when it fires without a newer heartbeat the device goes offline.
// Transitions are persisted through Store and announced through Notifier.
// Store failures are logged and never suppress the announcement.
//
// Timers are keyed by device ID, not by connection: closing a socket does not
// cancel its device's timer.
package presence
