package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/ztroop/zephyr/internal/eventbus"
	"github.com/ztroop/zephyr/internal/executor"
	"github.com/ztroop/zephyr/internal/schedule"
	"github.com/ztroop/zephyr/internal/state"
	"github.com/ztroop/zephyr/pkg/logx"
)

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := s.clk.Ticker(s.cfg.TickInterval)
	defer ticker.Stop()

	// First pass right away so immediate commands do not wait a full
	// cadence after startup.
	s.tick(ctx)

	for {
		select {
		case <-s.stopCh:
			s.drain(ctx)
			return
		case <-ctx.Done():
			s.drain(context.Background())
			return
		case <-ticker.C:
			s.tick(ctx)
		case r := <-s.results:
			s.applyResult(ctx, r)
		}
	}
}

// tick is one pass of the loop: classify the gap since the previous tick,
// evaluate due commands, persist the tick, then spawn the runs. Dispatch
// marks stay in memory only; a run reaches disk when it completes, so a
// crash mid-run re-fires on restart rather than losing the run.
func (s *Service) tick(ctx context.Context) {
	now := s.clk.Now().In(s.cfg.location())

	s.mu.Lock()
	slept, gap, affected, capped := s.detectSleepLocked(now)
	s.st.LastTickAt = now
	due := s.dueLocked(now)
	for _, c := range due {
		cs := s.st.Commands[c.Name]
		if p, ok := s.pending[c.Name]; ok {
			p.n++
			s.pending[c.Name] = p
		} else {
			s.pending[c.Name] = pendingRun{rec: cs, n: 1}
		}
		cs.LastRunAt = now
		cs.NextDueOverride = time.Time{}
		s.st.Commands[c.Name] = cs
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if slept {
		s.log.Warn("system sleep detected",
			logx.Duration("gap", gap),
			logx.Int("catch_up", affected),
			logx.Int("deferred", capped),
		)
		s.publish(eventbus.TypeSleep, SleepEvent{Gap: gap, Affected: affected, Capped: capped})
	}

	s.flush(ctx, snap)

	for _, c := range due {
		s.dispatch(c, now)
	}
	s.publish(eventbus.TypeTick, TickEvent{At: now, Dispatched: len(due)})
}

// dueLocked decides which commands run at now. A set override is the
// command's exact next due time and takes precedence over schedule
// evaluation. It is consumed on its first eligible tick whether or not the
// minimum-interval guard lets it fire, so a suppressed catch-up cannot
// double-fire later.
func (s *Service) dueLocked(now time.Time) []Command {
	var due []Command
	tick := s.cfg.TickInterval
	for _, c := range s.commands {
		if !c.Enabled {
			continue
		}
		cs := s.st.Commands[c.Name]
		if !cs.NextDueOverride.IsZero() {
			if cs.NextDueOverride.After(now) {
				continue
			}
			cs.NextDueOverride = time.Time{}
			s.st.Commands[c.Name] = cs
			if cs.LastRunAt.IsZero() || now.Sub(cs.LastRunAt) >= c.Schedule.MinInterval(tick) {
				due = append(due, c)
			}
			continue
		}
		if schedule.Due(c.Schedule, cs.LastRunAt, c.Immediate, s.startedAt, now, tick) {
			due = append(due, c)
		}
	}
	return due
}

// dispatch runs one command on its own goroutine. The runner gets a fresh
// context so in-flight work survives loop shutdown and is bounded only by
// the command's own timeout.
func (s *Service) dispatch(c Command, startedAt time.Time) {
	s.log.Info("dispatching command",
		logx.String("command", c.Name),
		logx.String("schedule", c.Schedule.String()),
	)
	s.publish(eventbus.TypeDispatched, CommandEvent{Name: c.Name})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("command runner panicked",
					logx.String("command", c.Name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		res := s.runner.Run(context.Background(), c.Spec)
		s.results <- runResult{name: c.Name, startedAt: startedAt, res: res}
	}()
}

// applyResult records one finished run and persists it. Results arrive
// whenever the command finishes, independent of tick boundaries. This is
// where a run's start time becomes durable.
func (s *Service) applyResult(ctx context.Context, r runResult) {
	s.mu.Lock()
	cs := s.st.Commands[r.name]
	cs.LastOutcome = outcomeOf(r.res.Outcome)
	cs.LastExitStatus = r.res.ExitCode
	cs.LastDuration = r.res.Duration
	s.st.Commands[r.name] = cs
	if p, ok := s.pending[r.name]; ok {
		if p.n <= 1 {
			delete(s.pending, r.name)
		} else {
			// Another dispatch of the same command is still running; the
			// durable record advances to this completed run.
			p.n--
			p.rec = cs
			p.rec.LastRunAt = r.startedAt
			s.pending[r.name] = p
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	fields := []logx.Field{
		logx.String("command", r.name),
		logx.String("outcome", string(cs.LastOutcome)),
		logx.Int("exit_status", r.res.ExitCode),
		logx.Duration("duration", r.res.Duration),
	}
	switch r.res.Outcome {
	case executor.OutcomeExit:
		if r.res.ExitCode == 0 {
			s.log.Info("command completed", fields...)
			if r.res.Stdout != "" {
				s.log.Debug("command output",
					logx.String("command", r.name),
					logx.String("stdout_tail", r.res.Stdout))
			}
		} else {
			fields = append(fields, logx.String("stderr_tail", r.res.Stderr))
			s.log.Warn("command failed", fields...)
		}
	case executor.OutcomeTimedOut:
		s.log.Warn("command timed out", fields...)
	case executor.OutcomeSpawnFailed:
		fields = append(fields, logx.Err(r.res.Err))
		s.log.Error("command failed to start", fields...)
	}
	s.publish(eventbus.TypeCompleted, CommandEvent{
		Name:     r.name,
		Outcome:  string(cs.LastOutcome),
		ExitCode: r.res.ExitCode,
		Duration: r.res.Duration,
	})

	s.flush(ctx, snap)
}

// drain stops dispatching, waits for in-flight commands, applies their
// results, and performs the final flush.
func (s *Service) drain(ctx context.Context) {
	s.phase.Store(int32(PhaseStopping))
	s.log.Info("scheduler stopping; waiting for in-flight commands")

	go func() {
		s.wg.Wait()
		close(s.idleCh)
	}()

	for {
		select {
		case r := <-s.results:
			s.applyResult(ctx, r)
		case <-s.idleCh:
			// Every send completed before its wg.Done, so anything left
			// is already buffered.
			for {
				select {
				case r := <-s.results:
					s.applyResult(ctx, r)
					continue
				default:
				}
				break
			}
			s.mu.Lock()
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.flush(ctx, snap)
			s.phase.Store(int32(PhaseStopped))
			s.log.Info("scheduler stopped")
			return
		}
	}
}

func outcomeOf(o executor.Outcome) state.Outcome {
	switch o {
	case executor.OutcomeTimedOut:
		return state.OutcomeTimedOut
	case executor.OutcomeSpawnFailed:
		return state.OutcomeSpawnFailed
	default:
		return state.OutcomeExit
	}
}
