package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind discriminates the two schedule variants. A Schedule is always exactly
// one of the two; New enforces this at construction time.
type Kind int

const (
	KindInterval Kind = iota
	KindCron
)

func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// Standard 5-field cron (minute hour dom month dow) plus descriptors
// like @daily. Day-of-month and day-of-week are OR-combined when both are
// restricted, per conventional cron semantics.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a closed tagged variant: interval or cron, never both.
type Schedule struct {
	Kind  Kind
	Every time.Duration // interval schedules
	Expr  string        // cron schedules

	next cron.Schedule
}

// New builds a Schedule from config inputs. Exactly one of intervalMinutes
// and cronExpr must be set; violations are config errors surfaced at load
// time, never at evaluation time.
func New(intervalMinutes float64, cronExpr string) (Schedule, error) {
	switch {
	case intervalMinutes != 0 && cronExpr != "":
		return Schedule{}, errors.New("interval_minutes and cron are mutually exclusive")
	case intervalMinutes == 0 && cronExpr == "":
		return Schedule{}, errors.New("one of interval_minutes or cron is required")
	case cronExpr != "":
		next, err := parser.Parse(cronExpr)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
		return Schedule{Kind: KindCron, Expr: cronExpr, next: next}, nil
	default:
		if intervalMinutes < 0 {
			return Schedule{}, errors.New("interval_minutes must be positive")
		}
		every := time.Duration(intervalMinutes * float64(time.Minute)).Round(time.Second)
		if every < time.Second {
			return Schedule{}, errors.New("interval_minutes must be at least one second")
		}
		return Schedule{Kind: KindInterval, Every: every}, nil
	}
}

// MustNew is a test helper; it panics on invalid input.
func MustNew(intervalMinutes float64, cronExpr string) Schedule {
	s, err := New(intervalMinutes, cronExpr)
	if err != nil {
		panic(err)
	}
	return s
}

// NextAfter returns the first activation time strictly after t.
// Cron schedules are evaluated in t's location.
func (s Schedule) NextAfter(t time.Time) time.Time {
	switch s.Kind {
	case KindCron:
		return s.next.Next(t)
	default:
		return t.Add(s.Every)
	}
}

// MinInterval is the minimum re-trigger interval: the interval itself for
// interval schedules, and the tick cadence for cron schedules. It keeps a
// catch-up run and a naturally-due trigger from firing inside the same due
// window.
func (s Schedule) MinInterval(tick time.Duration) time.Duration {
	if s.Kind == KindInterval {
		return s.Every
	}
	return tick
}

func (s Schedule) String() string {
	if s.Kind == KindCron {
		return "cron: " + s.Expr
	}
	return "every " + s.Every.String()
}
