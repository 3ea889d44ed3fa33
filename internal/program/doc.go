// Package program stores signal phases, patterns and plans, and compiles a
// pattern into the program text a controller executes.
//
// A Phase is a fixed-width signal string (one character per approach) plus
// the transition timing used when leaving it. A Pattern is an ordered cycle
// of phase references with per-occurrence durations. Compile expands a
// resolved pattern into steady frames with blink and amber transition frames
// synthesised between consecutive phases.
//
// ManualSequence builds the timed frames for a one-off manual phase change;
// the caller hands them to a timeline scheduler.
package program
