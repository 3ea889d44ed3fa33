// Package wire defines the gateway's message formats.
//
// Two families share the socket endpoint:
//
//   - Web clients send {"event": name, "payload": {...}} envelopes and receive
//     feedback envelopes in the same shape.
//   - Hardware controllers send {"Event": "data", "Type": name, "Param": {...}}
//     frames and receive {"Event": "ctrl", ...} commands.
//
// It also owns the signal-string grammar used inside programs and sign
// commands, and the single weekday↔plan-slot table shared by upload and
// download.
package wire
