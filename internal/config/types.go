package config

// Config is zephyr's on-disk configuration (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	General  GeneralConfig   `json:"general"`
	Logging  LoggingConfig   `json:"logging,omitempty"`
	Commands []CommandConfig `json:"commands"`
}

// GeneralConfig carries scheduler-wide knobs.
//
// Defaults (when fields are omitted/zero):
//   - state_path: "~/.local/state/zephyr/state.db"
//   - tick_interval: "30s"
//   - sleep_threshold_factor: 10.0 (a tick gap above tick*factor counts as
//     a system sleep; 5 minutes at the default cadence)
//   - max_catchup_dispatches: 10
type GeneralConfig struct {
	StatePath string `json:"state_path,omitempty"`

	TickInterval         string  `json:"tick_interval,omitempty"`
	SleepThresholdFactor float64 `json:"sleep_threshold_factor,omitempty"`

	// MaxCatchUpDispatches caps how many commands get a catch-up run after a
	// single sleep event; the rest fall back to their natural schedule.
	MaxCatchUpDispatches int `json:"max_catchup_dispatches,omitempty"`

	// Timezone is the IANA zone cron expressions are evaluated in.
	// Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console *bool          `json:"console,omitempty"` // default true
	File    LoggingFile    `json:"file,omitempty"`
	Journal LoggingJournal `json:"journal,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingJournal struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// CommandConfig describes one scheduled command. Exactly one of
// interval_minutes / cron must be set.
type CommandConfig struct {
	Name    string `json:"name"`
	Command string `json:"command"`

	IntervalMinutes float64 `json:"interval_minutes,omitempty"`
	Cron            string  `json:"cron,omitempty"`

	// MaxRuntime bounds a single execution; empty means no timeout.
	MaxRuntime string `json:"max_runtime,omitempty"`

	Enabled   *bool `json:"enabled,omitempty"` // default true
	Immediate bool  `json:"immediate,omitempty"`

	WorkingDir string `json:"working_dir,omitempty"`

	// Environment entries are ordered; later entries may reference earlier
	// ones via the process environment only. Values of the form "$NAME" are
	// resolved against the daemon's environment at dispatch time.
	Environment []EnvVar `json:"environment,omitempty"`
}

// EnvVar is one environment entry. A list of pairs (not a map) so the
// configured order survives decoding.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c CommandConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}
