// Package timeline provides the clock used by timer-driven components and a
// scheduler for precomputed sequences of delayed steps.
//
// Production code uses Real(). Tests use a ManualClock and call Advance to
// fire timers deterministically without sleeping.
package timeline
