// Package scheduler drives command execution: a fixed-cadence tick loop that
// detects lost wall-clock time (system sleep or power-off), evaluates which
// commands are due, dispatches them concurrently with per-command timeouts,
// and persists every outcome through the state store.
//
// Concurrency model: one coordinating goroutine owns the loop. Dispatched
// commands run on their own goroutines and report back over a completion
// channel; the loop applies each mutation under a single mutex and flushes
// the store synchronously. On shutdown no new work is dispatched, in-flight
// commands finish under their own timeout rules, and a final flush is
// guaranteed before the loop reports stopped.
package scheduler
