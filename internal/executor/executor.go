package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/ztroop/zephyr/internal/config"
	logx "github.com/ztroop/zephyr/pkg/logx"
)

// Spec is everything the executor needs to run one command once. Scheduling
// details stay out of this package on purpose.
type Spec struct {
	Name       string
	Command    string
	WorkingDir string
	Env        []config.EnvVar
	MaxRuntime time.Duration // zero means no timeout
}

// Outcome classifies a single invocation. Every outcome is terminal: the
// executor never retries; the command becomes eligible again only per its
// schedule.
type Outcome int

const (
	OutcomeExit Outcome = iota
	OutcomeTimedOut
	OutcomeSpawnFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeSpawnFailed:
		return "spawn_failed"
	default:
		return "exit"
	}
}

type Result struct {
	Outcome  Outcome
	ExitCode int // meaningful only for OutcomeExit
	Duration time.Duration
	Stdout   string // tail of captured output
	Stderr   string
	Err      error // spawn error detail, or context error on cancellation
}

// Runner runs a command to completion and reports how it went.
// Implementations must be safe for concurrent use; the scheduler dispatches
// every due command on its own goroutine.
type Runner interface {
	Run(ctx context.Context, spec Spec) Result
}

// ShellRunner executes commands through "sh -c" in their own process group,
// so a timeout can take down the command's children as well.
type ShellRunner struct {
	log logx.Logger

	// lookupEnv is swappable for tests; defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

func NewShellRunner(log logx.Logger) *ShellRunner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ShellRunner{log: log, lookupEnv: os.LookupEnv}
}

const outputTailBytes = 4096

func (r *ShellRunner) Run(ctx context.Context, spec Spec) Result {
	start := time.Now()

	cmd := exec.Command("sh", "-c", spec.Command)
	if spec.WorkingDir != "" {
		cmd.Dir = spec.WorkingDir
	}
	// Environment references are resolved now, not at config load: a
	// long-lived daemon's environment may drift.
	cmd.Env = ResolveEnv(spec.Env, r.lookup())

	var stdout, stderr tailBuffer
	stdout.max = outputTailBytes
	stderr.max = outputTailBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	setProcGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Result{
			Outcome:  OutcomeSpawnFailed,
			Duration: time.Since(start),
			Err:      err,
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if spec.MaxRuntime > 0 {
		t := time.NewTimer(spec.MaxRuntime)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case err := <-done:
		return r.finish(spec, start, cmd, err, &stdout, &stderr)
	case <-timeoutC:
		killProcGroup(cmd)
		<-done
		r.log.Warn("command timed out",
			logx.String("command", spec.Name),
			logx.Duration("max_runtime", spec.MaxRuntime))
		return Result{
			Outcome:  OutcomeTimedOut,
			Duration: time.Since(start),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	case <-ctx.Done():
		killProcGroup(cmd)
		<-done
		return Result{
			Outcome:  OutcomeExit,
			ExitCode: -1,
			Duration: time.Since(start),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      ctx.Err(),
		}
	}
}

func (r *ShellRunner) finish(spec Spec, start time.Time, cmd *exec.Cmd, waitErr error, stdout, stderr *tailBuffer) Result {
	res := Result{
		Outcome:  OutcomeExit,
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if waitErr == nil {
		res.ExitCode = 0
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	// Wait failed for a non-exit reason (I/O plumbing, rare). Treat it like a
	// failed spawn so the state record stays honest.
	res.Outcome = OutcomeSpawnFailed
	res.Err = waitErr
	return res
}

func (r *ShellRunner) lookup() func(string) (string, bool) {
	if r.lookupEnv != nil {
		return r.lookupEnv
	}
	return os.LookupEnv
}

// tailBuffer keeps the last max bytes written. Good enough for logging the
// end of a chatty command's output without unbounded memory.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if b.max > 0 && len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
