package state

import "time"

// Outcome classifies how the last execution of a command finished.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeExit        Outcome = "exit"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeSpawnFailed Outcome = "spawn_failed"
)

// Command is the persisted execution state for one command.
// Zero time values mean "never"/"not set".
type Command struct {
	// LastRunAt is when the last execution *started*.
	LastRunAt time.Time

	LastOutcome Outcome
	// LastExitStatus is only meaningful when LastOutcome == OutcomeExit.
	LastExitStatus int
	LastDuration   time.Duration

	// NextDueOverride is set when a sleep-recovery catch-up run has been
	// scheduled, and cleared once consumed.
	NextDueOverride time.Time
}

// State is the aggregate persisted scheduler state.
type State struct {
	Commands   map[string]Command
	LastTickAt time.Time
}

// NewState returns an empty state ready for first use.
func NewState() *State {
	return &State{Commands: map[string]Command{}}
}

// Clone returns a deep copy, used to hand a snapshot to the store without
// holding the scheduler's lock during I/O.
func (s *State) Clone() *State {
	cp := &State{
		Commands:   make(map[string]Command, len(s.Commands)),
		LastTickAt: s.LastTickAt,
	}
	for name, cs := range s.Commands {
		cp.Commands[name] = cs
	}
	return cp
}
