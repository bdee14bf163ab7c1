// Package schedule implements the bounded worker pool that turns a stream of
// model.Invocation into model.Result (spec §4.4/§7): a buffered channel used
// as a counting semaphore bounds concurrency to Config.Jobs, and a
// goroutine-plus-channel race against time.After enforces the per-command
// timeout. Grounded directly on the teacher's utils/processor.ToolExecutor,
// whose executeCommand method used exactly this
// "done := make(chan error, 1); go func(){ done <- cmd.Wait() }(); select"
// pattern for a single tool invocation; generalized here from one call to an
// unbounded stream of them, plus context-based cancellation for
// --exit-on-error.
package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorallel/gorallel/internal/config"
	"github.com/gorallel/gorallel/internal/logging"
	"github.com/gorallel/gorallel/internal/model"
	"github.com/gorallel/gorallel/internal/report"
	"github.com/gorallel/gorallel/internal/resolve"
	"github.com/gorallel/gorallel/internal/retry"
	"github.com/gorallel/gorallel/internal/safety"
	"github.com/gorallel/gorallel/internal/sink"
)

// Scheduler runs Invocations from an inbound channel with at most
// Config.Jobs running concurrently.
type Scheduler struct {
	cfg      *config.Config
	sink     *sink.Sink
	counters *report.Counters
	gate     *safety.Gate
	cache    *resolve.Cache
	log      *logging.Logger

	sem chan struct{}
}

// New builds a Scheduler. gate and cache may be nil, in which case every
// command is permitted and $PATH is walked directly on every spawn.
func New(cfg *config.Config, sk *sink.Sink, counters *report.Counters, gate *safety.Gate, cache *resolve.Cache, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		sink:     sk,
		counters: counters,
		gate:     gate,
		cache:    cache,
		log:      log,
		sem:      make(chan struct{}, cfg.Jobs),
	}
}

// Run consumes in until it is closed, running each Invocation in its own
// goroutine bounded by the semaphore. If cfg.ExitOnError is set, the first
// failing invocation cancels ctx, which causes every Invocation still
// in-flight or not yet dequeued to finish as OutcomeCancelled. Run returns
// once every spawned worker has finished.
func (s *Scheduler) Run(ctx context.Context, in <-chan model.Invocation) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	for inv := range in {
		select {
		case <-ctx.Done():
			// Still drain the channel so the producer never blocks on a
			// full channel after a cancellation, but every remaining
			// invocation is recorded as cancelled without spawning.
			s.recordCancelled(inv)
			continue
		case s.sem <- struct{}{}:
		}

		wg.Add(1)
		go func(inv model.Invocation) {
			defer wg.Done()
			defer func() { <-s.sem }()
			s.runOne(ctx, cancel, inv)
		}(inv)
	}

	wg.Wait()
}

func (s *Scheduler) recordCancelled(inv model.Invocation) {
	s.counters.IncStarted()
	s.counters.RecordOutcome(false, false, false, true, false)
	s.sink.Submit(sink.Record{Ordinal: inv.Ordinal, Sentinel: true})
}

// runOne executes a single Invocation end to end: dry-run short circuit,
// safety gate, path resolution, spawn-with-timeout, and outcome recording.
func (s *Scheduler) runOne(ctx context.Context, cancel context.CancelFunc, inv model.Invocation) {
	s.counters.IncStarted()

	if s.cfg.DryRun {
		line := fmt.Sprintf("cmd=%s,args=%s,line=%s:%d\n",
			inv.Argv[0], strings.Join(inv.Argv[1:], " "), inv.Origin, inv.SourceLine)
		s.sink.Submit(sink.Record{Ordinal: inv.Ordinal, Stdout: []byte(line)})
		s.counters.RecordOutcome(false, false, false, false, true)
		return
	}

	if ctx.Err() != nil {
		s.counters.RecordOutcome(false, false, false, true, false)
		s.sink.Submit(sink.Record{Ordinal: inv.Ordinal, Sentinel: true})
		return
	}

	if s.gate != nil {
		if allowed, reason := s.gate.Allowed(inv.Argv); !allowed {
			s.failSpawn(inv, fmt.Errorf("%s", reason))
			if s.cfg.ExitOnError {
				cancel()
			}
			return
		}
	}

	program := inv.Argv[0]
	if s.cache != nil {
		if resolved, err := s.cache.Resolve(program); err == nil {
			program = resolved
		}
	}

	result := s.spawn(ctx, program, inv)

	s.record(inv, result)
	if s.cfg.ExitOnError && !result.Success() {
		cancel()
	}
}

// spawn runs one command, racing its completion against the configured
// per-command timeout and the shared cancellation context, exactly the
// pattern the teacher's ToolExecutor used for a single tool call.
func (s *Scheduler) spawn(ctx context.Context, program string, inv model.Invocation) model.Result {
	start := time.Now()

	var stdout, stderr bytes.Buffer
	var cmd *exec.Cmd

	startErr := retry.WithRetry(s.log, func() error {
		cmd = exec.Command(program, inv.Argv[1:]...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		return cmd.Start()
	}, isSpawnRetryable, retryConfigFor(s.cfg))

	if startErr != nil {
		return model.Result{
			Ordinal: inv.Ordinal,
			Outcome: model.OutcomeSpawnError,
			Err:     startErr,
			Elapsed: time.Since(start),
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if s.cfg.TimeoutSeconds > 0 {
		timer := time.NewTimer(time.Duration(s.cfg.TimeoutSeconds * float64(time.Second)))
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case err := <-done:
		return classify(inv, &stdout, &stderr, err, time.Since(start))

	case <-timeoutC:
		_ = cmd.Process.Kill()
		<-done
		return model.Result{
			Ordinal: inv.Ordinal,
			Outcome: model.OutcomeTimeout,
			Stdout:  stdout.Bytes(),
			Stderr:  stderr.Bytes(),
			Elapsed: time.Since(start),
		}

	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return model.Result{
			Ordinal: inv.Ordinal,
			Outcome: model.OutcomeCancelled,
			Stdout:  stdout.Bytes(),
			Stderr:  stderr.Bytes(),
			Elapsed: time.Since(start),
		}
	}
}

func classify(inv model.Invocation, stdout, stderr *bytes.Buffer, err error, elapsed time.Duration) model.Result {
	r := model.Result{
		Ordinal: inv.Ordinal,
		Outcome: model.OutcomeCompleted,
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Elapsed: elapsed,
	}
	if err == nil {
		r.ExitCode = 0
		return r
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		r.ExitCode = exitErr.ExitCode()
		r.Err = err
		return r
	}
	r.Outcome = model.OutcomeSpawnError
	r.Err = err
	return r
}

func (s *Scheduler) failSpawn(inv model.Invocation, err error) {
	s.sink.WriteEngineErrLine(fmt.Sprintf("[ERR] %s: %v\n", inv.DisplayCommand, err))
	s.counters.RecordOutcome(false, true, false, false, false)
	s.sink.Submit(sink.Record{Ordinal: inv.Ordinal, Sentinel: true})
}

// record tallies result's outcome and submits its captured output to the
// sink, including a status_summary line for ordered-mode non-zero exits and
// timeouts so a reader scanning stdout can tell which block failed.
func (s *Scheduler) record(inv model.Invocation, result model.Result) {
	exitStatusErr := result.Outcome == model.OutcomeCompleted && result.ExitCode != 0
	spawnErr := result.Outcome == model.OutcomeSpawnError
	timedOut := result.Outcome == model.OutcomeTimeout
	cancelled := result.Outcome == model.OutcomeCancelled
	zeroExit := result.Outcome == model.OutcomeCompleted && result.ExitCode == 0

	s.counters.RecordOutcome(exitStatusErr, spawnErr, timedOut, cancelled, zeroExit)

	if spawnErr {
		s.sink.WriteEngineErrLine(fmt.Sprintf("[ERR] %s: %v\n", inv.DisplayCommand, result.Err))
	}

	rec := sink.Record{
		Ordinal: inv.Ordinal,
		Stdout:  result.Stdout,
		Stderr:  result.Stderr,
	}
	if s.cfg.KeepOrder && (exitStatusErr || timedOut) {
		rec.StatusSummary = fmt.Sprintf("[exit %d] %s\n", result.ExitCode, inv.DisplayCommand)
		if timedOut {
			rec.StatusSummary = fmt.Sprintf("[timeout] %s\n", inv.DisplayCommand)
		}
	}
	s.sink.Submit(rec)
}

func isSpawnRetryable(err error) bool {
	if err == nil {
		return false
	}
	_, isExit := err.(*exec.ExitError)
	return !isExit
}

func retryConfigFor(cfg *config.Config) retry.Config {
	if cfg.RetrySpawnErrors <= 0 {
		return retry.Config{MaxRetries: 0, InitialWait: 0, MaxWait: 0, Factor: 1}
	}
	rc := retry.DefaultConfig
	rc.MaxRetries = cfg.RetrySpawnErrors
	return rc
}
