package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ztroop/zephyr/internal/config"
	"github.com/ztroop/zephyr/internal/eventbus"
	"github.com/ztroop/zephyr/internal/executor"
	"github.com/ztroop/zephyr/internal/schedule"
	"github.com/ztroop/zephyr/internal/state"
	"github.com/ztroop/zephyr/pkg/logx"
)

var testBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		TickInterval:         30 * time.Second,
		SleepThresholdFactor: 10, // 5 minute threshold
		MaxCatchUpDispatches: 10,
		Location:             time.UTC,
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	res   executor.Result

	started chan string   // optional: signals each Run entry
	release chan struct{} // optional: blocks Run until closed
}

func (f *fakeRunner) Run(_ context.Context, spec executor.Spec) executor.Result {
	f.mu.Lock()
	f.calls = append(f.calls, spec.Name)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- spec.Name
	}
	if f.release != nil {
		<-f.release
	}
	res := f.res
	if res.Duration == 0 {
		res.Duration = 10 * time.Millisecond
	}
	return res
}

func (f *fakeRunner) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func intervalCommand(name string, minutes float64, immediate bool) Command {
	return Command{
		Spec:      executor.Spec{Name: name, Command: "true"},
		Schedule:  schedule.MustNew(minutes, ""),
		Enabled:   true,
		Immediate: immediate,
	}
}

func cronCommand(name, expr string) Command {
	return Command{
		Spec:     executor.Spec{Name: name, Command: "true"},
		Schedule: schedule.MustNew(0, expr),
		Enabled:  true,
	}
}

// newTestService builds a service primed for driving tick() directly,
// bypassing Start so tests stay deterministic.
func newTestService(t *testing.T, cfg Config, cmds []Command, runner executor.Runner, opt Options) (*Service, *clock.Mock) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewMock()
	clk.Set(testBase)
	opt.Clock = clk

	s := New(cfg, cmds, store, runner, logx.Nop(), opt)
	s.st = state.NewState()
	s.startedAt = clk.Now()
	return s, clk
}

// settle waits for dispatched goroutines and applies their queued results.
func settle(t *testing.T, s *Service) {
	t.Helper()
	s.wg.Wait()
	for {
		select {
		case r := <-s.results:
			s.applyResult(context.Background(), r)
		default:
			return
		}
	}
}

func TestImmediateCommandRunsOnFirstTick(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s, clk := newTestService(t, testConfig(), []Command{
		intervalCommand("now", 60, true),
		intervalCommand("later", 60, false),
	}, fr, Options{})
	ctx := context.Background()

	s.tick(ctx)
	settle(t, s)

	if got := fr.names(); len(got) != 1 || got[0] != "now" {
		t.Fatalf("calls = %v, want [now]", got)
	}
	cs := s.Snapshot().Commands["now"]
	if !cs.LastRunAt.Equal(clk.Now()) {
		t.Fatalf("last run = %v, want %v", cs.LastRunAt, clk.Now())
	}
	if cs.LastOutcome != state.OutcomeExit || cs.LastExitStatus != 0 {
		t.Fatalf("recorded outcome = %+v", cs)
	}
	if cs.LastDuration <= 0 {
		t.Fatalf("duration = %v", cs.LastDuration)
	}
}

func TestIntervalWaitsFullPeriodFromStart(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s, clk := newTestService(t, testConfig(), []Command{
		intervalCommand("job", 1, false),
	}, fr, Options{})
	ctx := context.Background()

	s.tick(ctx)
	clk.Add(30 * time.Second)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 0 {
		t.Fatalf("ran before the interval elapsed: %v", got)
	}

	clk.Add(30 * time.Second)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 1 {
		t.Fatalf("calls = %v, want one run at start+1m", got)
	}
}

func TestReschedulingIsAdditiveFromLastStart(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s, clk := newTestService(t, testConfig(), []Command{
		intervalCommand("job", 1, true),
	}, fr, Options{})
	ctx := context.Background()

	s.tick(ctx) // immediate run at t0
	settle(t, s)

	// Half the interval: nothing new.
	clk.Add(30 * time.Second)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 1 {
		t.Fatalf("calls = %v", got)
	}

	// Full interval from the last *start*: runs again.
	clk.Add(30 * time.Second)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 2 {
		t.Fatalf("calls = %v, want 2", got)
	}
}

func TestDisabledCommandNeverRuns(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	cmd := intervalCommand("off", 1, true)
	cmd.Enabled = false
	s, clk := newTestService(t, testConfig(), []Command{cmd}, fr, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.tick(ctx)
		clk.Add(time.Minute)
	}
	settle(t, s)
	if got := fr.names(); len(got) != 0 {
		t.Fatalf("disabled command ran: %v", got)
	}
}

func TestSleepCoalescesMissedRunsIntoOneCatchUp(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s, clk := newTestService(t, testConfig(), []Command{
		intervalCommand("job", 1, false),
	}, fr, Options{Bus: bus})
	ctx := context.Background()

	// Ran at t0, then the host slept for 30 minutes: 29 occurrences missed.
	s.st.Commands["job"] = state.Command{LastRunAt: testBase}
	s.st.LastTickAt = testBase
	clk.Set(testBase.Add(30 * time.Minute))

	s.tick(ctx)
	settle(t, s)

	if got := fr.names(); len(got) != 1 {
		t.Fatalf("calls = %v, want exactly one catch-up", got)
	}
	cs := s.Snapshot().Commands["job"]
	if !cs.NextDueOverride.IsZero() {
		t.Fatalf("override not consumed: %v", cs.NextDueOverride)
	}
	if !cs.LastRunAt.Equal(clk.Now()) {
		t.Fatalf("last run = %v", cs.LastRunAt)
	}

	sawSleep := false
	for done := false; !done; {
		select {
		case e := <-events:
			if e.Type == eventbus.TypeSleep {
				se := e.Data.(SleepEvent)
				if se.Gap != 30*time.Minute || se.Affected != 1 {
					t.Fatalf("sleep event = %+v", se)
				}
				sawSleep = true
			}
		default:
			done = true
		}
	}
	if !sawSleep {
		t.Fatal("no sleep event published")
	}

	// The next tick must not fire again; rescheduling restarts from the
	// catch-up run.
	clk.Add(30 * time.Second)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 1 {
		t.Fatalf("calls after catch-up = %v, want still 1", got)
	}
}

func TestSleepCatchUpRespectsCap(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	cfg := testConfig()
	cfg.MaxCatchUpDispatches = 2

	cmds := []Command{
		intervalCommand("a", 1, false),
		intervalCommand("b", 1, false),
		intervalCommand("c", 1, false),
		intervalCommand("d", 1, false),
	}
	s, clk := newTestService(t, cfg, cmds, fr, Options{})
	ctx := context.Background()

	for _, c := range cmds {
		s.st.Commands[c.Name] = state.Command{LastRunAt: testBase}
	}
	s.st.LastTickAt = testBase
	clk.Set(testBase.Add(time.Hour))

	s.tick(ctx)
	settle(t, s)

	if got := fr.names(); len(got) != 2 {
		t.Fatalf("calls = %v, want cap of 2", got)
	}

	// Deferred commands skip the missed occurrence: their override points at
	// the first occurrence after the wake.
	snap := s.Snapshot()
	wake := clk.Now()
	for _, name := range []string{"a", "b"} {
		if ov := snap.Commands[name].NextDueOverride; !ov.IsZero() {
			t.Fatalf("%s: catch-up override not consumed: %v", name, ov)
		}
	}
	for _, name := range []string{"c", "d"} {
		if ov := snap.Commands[name].NextDueOverride; !ov.Equal(wake.Add(time.Minute)) {
			t.Fatalf("%s: deferred override = %v, want %v", name, ov, wake.Add(time.Minute))
		}
	}

	// One interval later everything is due again: a and b naturally, c and
	// d through their deferred override.
	clk.Add(time.Minute)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 6 {
		t.Fatalf("calls = %v, want all four at wake+1m", got)
	}
}

func TestSleepSkipsDisabledAndNotYetDue(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	off := intervalCommand("off", 1, false)
	off.Enabled = false
	cmds := []Command{
		off,
		intervalCommand("distant", 24*60, false), // due tomorrow, not in the gap
		intervalCommand("missed", 1, false),
	}
	s, clk := newTestService(t, testConfig(), cmds, fr, Options{})
	ctx := context.Background()

	for _, c := range cmds {
		s.st.Commands[c.Name] = state.Command{LastRunAt: testBase}
	}
	s.st.LastTickAt = testBase
	clk.Set(testBase.Add(20 * time.Minute))

	s.tick(ctx)
	settle(t, s)

	if got := fr.names(); len(got) != 1 || got[0] != "missed" {
		t.Fatalf("calls = %v, want [missed]", got)
	}
}

func TestSleepCatchUpForCron(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s, clk := newTestService(t, testConfig(), []Command{
		cronCommand("hourly", "0 * * * *"),
	}, fr, Options{})
	ctx := context.Background()

	// testBase is 12:00. Last ran at 11:00, the host slept at 11:30 and
	// woke at 13:30: both the 12:00 and 13:00 boundaries were missed.
	s.st.Commands["hourly"] = state.Command{LastRunAt: testBase.Add(-time.Hour)}
	s.st.LastTickAt = testBase.Add(-30 * time.Minute)
	clk.Set(testBase.Add(90 * time.Minute)) // 13:30

	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 1 {
		t.Fatalf("calls = %v, want one catch-up", got)
	}

	// Next natural occurrence is 14:00, not another catch-up.
	clk.Add(30 * time.Second)
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 1 {
		t.Fatalf("calls = %v after catch-up", got)
	}
	clk.Set(testBase.Add(2 * time.Hour)) // 14:00
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 2 {
		t.Fatalf("calls = %v, want natural run at 14:00", got)
	}
}

func TestShortGapIsNotSleep(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s, clk := newTestService(t, testConfig(), []Command{
		intervalCommand("job", 60, false),
	}, fr, Options{})
	ctx := context.Background()

	s.st.Commands["job"] = state.Command{LastRunAt: testBase}
	s.st.LastTickAt = testBase
	// Jitter below tick*factor: ordinary lateness, no overrides.
	clk.Set(testBase.Add(4 * time.Minute))

	s.tick(ctx)
	settle(t, s)
	if cs := s.Snapshot().Commands["job"]; !cs.NextDueOverride.IsZero() {
		t.Fatalf("override set for a short gap: %v", cs.NextDueOverride)
	}
}

func TestOutcomesAreRecorded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  executor.Result
		want state.Outcome
	}{
		{"exit", executor.Result{Outcome: executor.OutcomeExit, ExitCode: 3}, state.OutcomeExit},
		{"timeout", executor.Result{Outcome: executor.OutcomeTimedOut}, state.OutcomeTimedOut},
		{"spawn", executor.Result{Outcome: executor.OutcomeSpawnFailed}, state.OutcomeSpawnFailed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fr := &fakeRunner{res: tc.res}
			s, _ := newTestService(t, testConfig(), []Command{
				intervalCommand("job", 1, true),
			}, fr, Options{})
			ctx := context.Background()

			s.tick(ctx)
			settle(t, s)

			cs := s.Snapshot().Commands["job"]
			if cs.LastOutcome != tc.want {
				t.Fatalf("outcome = %q, want %q", cs.LastOutcome, tc.want)
			}
			if tc.want == state.OutcomeExit && cs.LastExitStatus != tc.res.ExitCode {
				t.Fatalf("exit status = %d, want %d", cs.LastExitStatus, tc.res.ExitCode)
			}

			// The record must have hit the store, not just memory.
			loaded, err := s.store.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Commands["job"].LastOutcome != tc.want {
				t.Fatalf("persisted outcome = %q", loaded.Commands["job"].LastOutcome)
			}
		})
	}
}

func TestTickPersistsLastTick(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{}
	s, clk := newTestService(t, testConfig(), nil, fr, Options{})
	ctx := context.Background()

	s.tick(ctx)

	loaded, err := s.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.LastTickAt.Equal(clk.Now()) {
		t.Fatalf("persisted tick = %v, want %v", loaded.LastTickAt, clk.Now())
	}
}

func TestBuildCommands(t *testing.T) {
	t.Parallel()

	off := false
	cmds, err := BuildCommands([]config.CommandConfig{
		{
			Name:            "backup",
			Command:         "run-backup",
			IntervalMinutes: 30,
			MaxRuntime:      "5m",
			Immediate:       true,
		},
		{
			Name:    "report",
			Command: "gen-report",
			Cron:    "0 6 * * *",
			Enabled: &off,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 2 {
		t.Fatalf("commands = %d", len(cmds))
	}
	if cmds[0].MaxRuntime != 5*time.Minute || !cmds[0].Immediate || !cmds[0].Enabled {
		t.Fatalf("backup = %+v", cmds[0])
	}
	if cmds[1].Enabled || cmds[1].Schedule.Kind != schedule.KindCron {
		t.Fatalf("report = %+v", cmds[1])
	}

	if _, err := BuildCommands([]config.CommandConfig{
		{Name: "bad", Command: "true"},
	}); err == nil {
		t.Fatal("expected error for command without a schedule")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	cfg := testConfig()
	cfg.TickInterval = 20 * time.Millisecond
	s := New(cfg, []Command{intervalCommand("job", 60, true)}, store, fr, logx.Nop(), Options{})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseRunning {
		t.Fatalf("phase = %v", s.Phase())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if cs := s.Snapshot().Commands["job"]; cs.LastOutcome == state.OutcomeExit {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("immediate command never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseStopped {
		t.Fatalf("phase after stop = %v", s.Phase())
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Commands["job"].LastOutcome != state.OutcomeExit {
		t.Fatalf("final flush missing: %+v", loaded.Commands["job"])
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	t.Parallel()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	fr := &fakeRunner{
		res:     executor.Result{Outcome: executor.OutcomeExit},
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	cfg := testConfig()
	cfg.TickInterval = 20 * time.Millisecond
	s := New(cfg, []Command{intervalCommand("slow", 60, true)}, store, fr, logx.Nop(), Options{})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-fr.started

	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop(context.Background()) }()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(fr.release)
	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}

	if cs := s.Snapshot().Commands["slow"]; cs.LastOutcome != state.OutcomeExit {
		t.Fatalf("in-flight result lost: %+v", cs)
	}
}

func TestRunPersistedOnlyAfterCompletion(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{
		res:     executor.Result{Outcome: executor.OutcomeExit},
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	s, clk := newTestService(t, testConfig(), []Command{
		intervalCommand("job", 1, true),
	}, fr, Options{})
	ctx := context.Background()

	s.tick(ctx)
	<-fr.started

	// The run is still in flight, so the durable record must not carry it
	// yet. Only the tick itself reaches the store.
	onDisk, err := s.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cs := onDisk.Commands["job"]; !cs.LastRunAt.IsZero() {
		t.Fatalf("run persisted before completion: last run = %v", cs.LastRunAt)
	}
	if !onDisk.LastTickAt.Equal(clk.Now()) {
		t.Fatalf("persisted tick = %v, want %v", onDisk.LastTickAt, clk.Now())
	}

	close(fr.release)
	settle(t, s)

	onDisk, err = s.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cs := onDisk.Commands["job"]
	if !cs.LastRunAt.Equal(clk.Now()) {
		t.Fatalf("persisted last run = %v, want %v", cs.LastRunAt, clk.Now())
	}
	if cs.LastOutcome != state.OutcomeExit {
		t.Fatalf("persisted outcome = %q, want %q", cs.LastOutcome, state.OutcomeExit)
	}
}

func TestInterruptedRunRedispatchedAfterRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := state.Open(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	fr := &fakeRunner{started: make(chan string, 1), release: make(chan struct{})}
	clk := clock.NewMock()
	clk.Set(testBase)
	cmds := []Command{intervalCommand("job", 1, true)}
	s1 := New(testConfig(), cmds, store, fr, logx.Nop(), Options{Clock: clk})
	s1.st = state.NewState()
	s1.startedAt = clk.Now()

	s1.tick(ctx)
	<-fr.started
	t.Cleanup(func() { close(fr.release) })

	// The daemon dies here with the run still in flight. Nothing about the
	// run ever reached the store.
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store2, err := state.Open(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store2.Close() })

	fr2 := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s2 := New(testConfig(), cmds, store2, fr2, logx.Nop(), Options{Clock: clk})
	loaded, err := store2.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s2.st = loaded
	clk.Set(testBase.Add(30 * time.Second))
	s2.startedAt = clk.Now()

	s2.tick(ctx)
	settle(t, s2)

	if got := fr2.names(); len(got) != 1 || got[0] != "job" {
		t.Fatalf("calls after restart = %v, want [job]", got)
	}
}

func TestCronKeepsConfiguredLocationAfterReload(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ctx := context.Background()

	cfg := testConfig()
	cfg.Location = loc
	fr := &fakeRunner{res: executor.Result{Outcome: executor.OutcomeExit}}
	s, clk := newTestService(t, cfg, []Command{
		cronCommand("daily", "0 0 * * *"),
	}, fr, Options{})

	// Persist a run at local midnight, then reload it. The store hands
	// times back in UTC; rehydrate must restore the configured zone before
	// cron evaluation sees them.
	persisted := state.NewState()
	persisted.Commands["daily"] = state.Command{
		LastRunAt:   time.Date(2025, 3, 1, 0, 0, 0, 0, loc),
		LastOutcome: state.OutcomeExit,
	}
	persisted.LastTickAt = time.Date(2025, 3, 1, 19, 29, 30, 0, loc)
	if err := s.store.Flush(ctx, persisted); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rehydrate(loaded, loc)
	s.st = loaded

	// 19:30 local is already past midnight UTC; the job must wait for the
	// next local midnight.
	clk.Set(time.Date(2025, 3, 1, 19, 30, 0, 0, loc))
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 0 {
		t.Fatalf("calls = %v, want none before local midnight", got)
	}

	s.mu.Lock()
	s.st.LastTickAt = time.Date(2025, 3, 1, 23, 59, 30, 0, loc)
	s.mu.Unlock()
	clk.Set(time.Date(2025, 3, 2, 0, 0, 0, 0, loc))
	s.tick(ctx)
	settle(t, s)
	if got := fr.names(); len(got) != 1 || got[0] != "daily" {
		t.Fatalf("calls = %v, want [daily]", got)
	}
}

func TestStopBeforeStartReturnsImmediately(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{}
	s, _ := newTestService(t, testConfig(), nil, fr, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if got := s.Phase(); got != PhaseStopped {
		t.Fatalf("phase = %v, want %v", got, PhaseStopped)
	}
}
