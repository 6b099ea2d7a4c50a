package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ztroop/zephyr/internal/eventbus"
	"github.com/ztroop/zephyr/internal/executor"
	"github.com/ztroop/zephyr/internal/state"
	"github.com/ztroop/zephyr/pkg/logx"
)

// Options carries optional collaborators. Zero values select production
// defaults: the wall clock and no event publication.
type Options struct {
	Clock clock.Clock
	Bus   eventbus.Bus
}

// Service owns the scheduling loop.
type Service struct {
	cfg      Config
	log      logx.Logger
	clk      clock.Clock
	bus      eventbus.Bus
	runner   executor.Runner
	store    *state.Store
	commands []Command

	mu        sync.Mutex
	st        *state.State
	pending   map[string]pendingRun
	startedAt time.Time

	phase    atomic.Int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	idleCh   chan struct{}
	results  chan runResult
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds a scheduler service over the given commands. Start must be
// called before the loop does any work.
func New(cfg Config, commands []Command, store *state.Store, runner executor.Runner, log logx.Logger, opt Options) *Service {
	clk := opt.Clock
	if clk == nil {
		clk = clock.New()
	}
	// Sized so every command can have a completed run buffered while the
	// loop is busy; drain relies on sends never blocking past wg.Wait.
	resultCap := 4 * len(commands)
	if resultCap < 64 {
		resultCap = 64
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		clk:      clk,
		bus:      opt.Bus,
		runner:   runner,
		store:    store,
		commands: commands,
		pending:  make(map[string]pendingRun),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		idleCh:   make(chan struct{}),
		results:  make(chan runResult, resultCap),
	}
}

// Phase reports the current lifecycle state.
func (s *Service) Phase() Phase {
	return Phase(s.phase.Load())
}

// Start loads persisted state and launches the loop. A state store failure
// here is fatal; the daemon must not run without durable history.
func (s *Service) Start(ctx context.Context) error {
	if Phase(s.phase.Load()) != PhaseStarting {
		return fmt.Errorf("scheduler: already started")
	}
	st, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load state: %w", err)
	}
	rehydrate(st, s.cfg.location())

	now := s.clk.Now().In(s.cfg.location())
	s.mu.Lock()
	s.st = st
	s.startedAt = now
	s.mu.Unlock()

	enabled := 0
	for _, c := range s.commands {
		if c.Enabled {
			enabled++
		}
	}
	s.log.Info("scheduler starting",
		logx.Int("commands", len(s.commands)),
		logx.Int("enabled", enabled),
		logx.Duration("tick", s.cfg.TickInterval),
		logx.Duration("sleep_threshold", s.cfg.sleepThreshold()),
	)

	s.phase.Store(int32(PhaseRunning))
	go s.run(ctx)
	return nil
}

// rehydrate restores the configured location on timestamps loaded from the
// store, which round-trips them through UTC. Cron evaluation matches fields
// in a time's own location, so leaving them in UTC would shift every cron
// schedule by the zone offset after a restart.
func rehydrate(st *state.State, loc *time.Location) {
	st.LastTickAt = st.LastTickAt.In(loc)
	for name, cs := range st.Commands {
		cs.LastRunAt = cs.LastRunAt.In(loc)
		cs.NextDueOverride = cs.NextDueOverride.In(loc)
		st.Commands[name] = cs
	}
}

// Stop halts dispatching and blocks until in-flight commands have finished
// and the final flush is done, or until ctx expires. Stopping a service
// that was never started is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	if s.phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseStopped)) {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the live in-memory state, for status
// reporting and tests. It includes dispatch marks for runs still in
// flight; the persisted view lags those until the run completes.
func (s *Service) Snapshot() *state.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

// snapshotLocked builds the durable view: the live state with in-flight
// commands rolled back to their last completed record. Callers hold mu.
func (s *Service) snapshotLocked() *state.State {
	snap := s.st.Clone()
	for name, p := range s.pending {
		snap.Commands[name] = p.rec
	}
	return snap
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clk.Now(), Data: data})
}

// flush persists a snapshot. Persistence failures are logged, never fatal
// past startup; the next successful flush writes the complete state anyway.
func (s *Service) flush(ctx context.Context, snap *state.State) {
	if err := s.store.Flush(ctx, snap); err != nil {
		s.log.Error("state flush failed", logx.Err(err))
	}
}
