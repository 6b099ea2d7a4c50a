package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ztroop/zephyr/internal/schedule"
)

const (
	// DefaultStatePath is the history database location used when
	// general.state_path is omitted. Tilde expansion happens at open time.
	DefaultStatePath = "~/.local/state/zephyr/state.db"

	defaultTickInterval   = 30 * time.Second
	defaultSleepThreshold = 10.0
	defaultMaxCatchUp     = 10
)

// Load reads, strictly decodes and validates a config file.
// Any error here is fatal for the daemon: a config that does not validate
// must never reach the scheduler.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}

// Parse decodes config bytes. The path is only used to sniff the format
// (.yaml/.yml vs JSON).
func Parse(path string, b []byte) (*Config, error) {
	jb, err := toJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything the scheduler assumes at startup: unique command
// names, exactly one schedule kind per command, parseable cron expressions
// and durations. It never mutates the config.
func (c *Config) Validate() error {
	if _, err := parseDurationOrDefault("general.tick_interval", c.General.TickInterval, defaultTickInterval); err != nil {
		return err
	}
	if c.General.SleepThresholdFactor < 0 {
		return fmt.Errorf("general.sleep_threshold_factor must be >= 0")
	}
	if c.General.MaxCatchUpDispatches < 0 {
		return fmt.Errorf("general.max_catchup_dispatches must be >= 0")
	}
	if tz := strings.TrimSpace(c.General.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("general.timezone: unknown zone %q", tz)
		}
	}

	seen := make(map[string]struct{}, len(c.Commands))
	for i, cmd := range c.Commands {
		where := fmt.Sprintf("commands[%d]", i)
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%s: duplicate command name %q", where, name)
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(cmd.Command) == "" {
			return fmt.Errorf("%s (%s): command is required", where, name)
		}
		if _, err := schedule.New(cmd.IntervalMinutes, cmd.Cron); err != nil {
			return fmt.Errorf("%s (%s): %w", where, name, err)
		}
		if _, err := parseDurationField(where+".max_runtime", cmd.MaxRuntime); err != nil {
			return err
		}
		for j, env := range cmd.Environment {
			if strings.TrimSpace(env.Name) == "" {
				return fmt.Errorf("%s (%s): environment[%d]: name is required", where, name, j)
			}
		}
	}
	return nil
}

// StatePathOrDefault returns the configured database path, or
// DefaultStatePath when general.state_path is omitted.
func (g GeneralConfig) StatePathOrDefault() string {
	if p := strings.TrimSpace(g.StatePath); p != "" {
		return p
	}
	return DefaultStatePath
}

// TickInterval returns the validated tick cadence.
func (g GeneralConfig) TickDuration() time.Duration {
	d, err := parseDurationOrDefault("general.tick_interval", g.TickInterval, defaultTickInterval)
	if err != nil || d <= 0 {
		return defaultTickInterval
	}
	return d
}

// SleepFactor returns the sleep classification multiplier.
func (g GeneralConfig) SleepFactor() float64 {
	if g.SleepThresholdFactor <= 0 {
		return defaultSleepThreshold
	}
	return g.SleepThresholdFactor
}

// MaxCatchUp returns the per-sleep-event catch-up dispatch cap.
func (g GeneralConfig) MaxCatchUp() int {
	if g.MaxCatchUpDispatches <= 0 {
		return defaultMaxCatchUp
	}
	return g.MaxCatchUpDispatches
}

// Location resolves the configured cron timezone, falling back to local time.
func (g GeneralConfig) Location() *time.Location {
	tz := strings.TrimSpace(g.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// MaxRuntimeDuration returns the parsed per-command timeout; zero means none.
func (c CommandConfig) MaxRuntimeDuration() time.Duration {
	d, err := parseDurationField("max_runtime", c.MaxRuntime)
	if err != nil {
		return 0
	}
	return d
}
