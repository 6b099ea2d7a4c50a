// Package app wires configuration, logging, persistence, and the scheduler
// into one runnable daemon.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ztroop/zephyr/internal/config"
	"github.com/ztroop/zephyr/internal/eventbus"
	"github.com/ztroop/zephyr/internal/executor"
	"github.com/ztroop/zephyr/internal/scheduler"
	"github.com/ztroop/zephyr/internal/state"
	"github.com/ztroop/zephyr/pkg/logx"
)

// Options are the command-line level knobs for a daemon run.
type Options struct {
	ConfigPath string
	// StatePath overrides general.state_path when non-empty.
	StatePath string
	// ResetState drops all persisted history before the scheduler starts.
	ResetState bool
}

type App struct {
	opts    Options
	cfgPath string
	cfg     *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *state.Store
	sched *scheduler.Service

	cancelAux context.CancelFunc
	wg        sync.WaitGroup
}

// New loads and validates configuration and constructs every component.
// Nothing runs until Start.
func New(opts Options) (*App, error) {
	cfgPath := expandTilde(opts.ConfigPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    expandTilde(cfg.Logging.File.Path),
		},
		Journal: logx.JournalConfig{
			Enabled:    cfg.Logging.Journal.Enabled,
			MinLevel:   cfg.Logging.Journal.MinLevel,
			RatePerSec: cfg.Logging.Journal.RatePerSec,
		},
	})
	log = log.With(logx.String("comp", "app"))

	statePath := cfg.General.StatePathOrDefault()
	if strings.TrimSpace(opts.StatePath) != "" {
		statePath = opts.StatePath
	}
	store, err := state.Open(expandTilde(statePath), log.With(logx.String("comp", "state")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	cmds, err := scheduler.BuildCommands(cfg.Commands)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	runner := executor.NewShellRunner(log.With(logx.String("comp", "executor")))
	sched := scheduler.New(scheduler.Config{
		TickInterval:         cfg.General.TickDuration(),
		SleepThresholdFactor: cfg.General.SleepFactor(),
		MaxCatchUpDispatches: cfg.General.MaxCatchUp(),
		Location:             cfg.General.Location(),
	}, cmds, store, runner, log.With(logx.String("comp", "scheduler")), scheduler.Options{Bus: bus})

	return &App{
		opts:    opts,
		cfgPath: cfgPath,
		cfg:     cfg,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sched:   sched,
	}, nil
}

// Start brings the daemon up: optional state reset, the scheduler loop,
// the config lint watcher, and service-manager readiness notification.
func (a *App) Start(ctx context.Context) error {
	if a.opts.ResetState {
		if err := a.store.Reset(ctx); err != nil {
			return fmt.Errorf("reset state: %w", err)
		}
		a.log.Warn("persisted state reset")
	}

	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	auxCtx, cancel := context.WithCancel(context.Background())
	a.cancelAux = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := config.Watch(auxCtx, a.cfgPath, a.log.With(logx.String("comp", "config"))); err != nil {
			a.log.Warn("config watcher unavailable", logx.Err(err))
		}
	}()

	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		a.observe(auxCtx, events)
	}()

	a.notifyReady(auxCtx)
	a.log.Info("daemon started", logx.String("config", a.cfgPath))
	return nil
}

// Stop shuts the daemon down in dependency order: scheduler first so the
// final flush lands before the store closes.
func (a *App) Stop(ctx context.Context) error {
	a.notifyStopping()

	err := a.sched.Stop(ctx)
	if a.cancelAux != nil {
		a.cancelAux()
	}
	a.wg.Wait()

	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("daemon stopped")
	a.logs.Close()
	return err
}

// observe drains bus events, keeps the service manager status line fresh,
// and logs event traffic at debug level.
func (a *App) observe(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if e.Type == eventbus.TypeSleep {
				if se, ok := e.Data.(scheduler.SleepEvent); ok {
					a.notifyStatus(fmt.Sprintf("sleep recovery: %d catch-up run(s) after %s gap", se.Affected, se.Gap))
				}
			}
		}
	}
}
