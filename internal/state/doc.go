// Package state persists per-command execution history and the scheduler's
// last tick across restarts.
//
// The whole State is flushed in a single transaction, so a crash can
// never leave a partially-updated record on disk. Rows for commands that no
// longer appear in the config are retained: history must survive a command
// being temporarily disabled or removed.
package state
