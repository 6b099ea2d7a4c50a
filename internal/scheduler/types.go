package scheduler

import (
	"fmt"
	"time"

	"github.com/ztroop/zephyr/internal/config"
	"github.com/ztroop/zephyr/internal/executor"
	"github.com/ztroop/zephyr/internal/schedule"
	"github.com/ztroop/zephyr/internal/state"
)

// Phase is the coarse lifecycle state of the scheduler service.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Config carries the loop-level knobs. The caller resolves durations and
// the timezone from raw configuration before constructing the service.
type Config struct {
	// TickInterval is the cadence of the scheduling loop.
	TickInterval time.Duration
	// SleepThresholdFactor scales TickInterval into the gap size that is
	// classified as a sleep rather than ordinary timer jitter.
	SleepThresholdFactor float64
	// MaxCatchUpDispatches caps how many commands a single sleep event may
	// mark for catch-up. Commands beyond the cap reschedule naturally.
	MaxCatchUpDispatches int
	// Location is the timezone cron expressions are evaluated in.
	Location *time.Location
}

func (c Config) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

// sleepThreshold is the minimum gap between consecutive ticks that counts
// as lost time.
func (c Config) sleepThreshold() time.Duration {
	return time.Duration(float64(c.TickInterval) * c.SleepThresholdFactor)
}

// Command is a fully resolved, immutable unit of scheduled work.
type Command struct {
	executor.Spec

	Schedule  schedule.Schedule
	Enabled   bool
	Immediate bool
}

// BuildCommands resolves validated configuration entries into runnable
// commands. Validation has already rejected malformed schedules and
// durations, so errors here indicate a caller skipping Validate.
func BuildCommands(cfgs []config.CommandConfig) ([]Command, error) {
	out := make([]Command, 0, len(cfgs))
	for _, cc := range cfgs {
		sched, err := schedule.New(cc.IntervalMinutes, cc.Cron)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", cc.Name, err)
		}
		out = append(out, Command{
			Spec: executor.Spec{
				Name:       cc.Name,
				Command:    cc.Command,
				WorkingDir: cc.WorkingDir,
				Env:        cc.Environment,
				MaxRuntime: cc.MaxRuntimeDuration(),
			},
			Schedule:  sched,
			Enabled:   cc.IsEnabled(),
			Immediate: cc.Immediate,
		})
	}
	return out, nil
}

// runResult ties a completed execution back to the command it belongs to.
type runResult struct {
	name      string
	startedAt time.Time
	res       executor.Result
}

// pendingRun shadows a command's durable record while dispatches are in
// flight. Persisted snapshots carry rec instead of the live record, so a
// crash mid-run leaves the last completed run on disk and the restarted
// daemon re-fires instead of silently skipping.
type pendingRun struct {
	rec state.Command
	n   int
}

// TickEvent is published on every loop pass.
type TickEvent struct {
	At         time.Time
	Dispatched int
}

// SleepEvent is published when a tick gap exceeds the sleep threshold.
type SleepEvent struct {
	Gap      time.Duration
	Affected int
	Capped   int
}

// CommandEvent is published when a command is dispatched or completes.
type CommandEvent struct {
	Name     string
	Outcome  string
	ExitCode int
	Duration time.Duration
}
