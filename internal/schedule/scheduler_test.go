package schedule

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gorallel/gorallel/internal/config"
	"github.com/gorallel/gorallel/internal/model"
	"github.com/gorallel/gorallel/internal/report"
	"github.com/gorallel/gorallel/internal/safety"
	"github.com/gorallel/gorallel/internal/sink"
)

func newTestScheduler(cfg *config.Config) (*Scheduler, *report.Counters, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	sk := sink.New(&out, &errOut, cfg.KeepOrder, sink.Discard(cfg.Discard))
	counters := &report.Counters{}
	return New(cfg, sk, counters, nil, nil, nil), counters, &out, &errOut
}

func invocation(ordinal uint64, argv ...string) model.Invocation {
	return model.Invocation{Ordinal: ordinal, Argv: argv, DisplayCommand: argv[0]}
}

func TestRunExecutesEachInvocationAndCountsZeroExit(t *testing.T) {
	cfg := &config.Config{Jobs: 2}
	sched, counters, out, _ := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 2)
	ch <- invocation(0, "echo", "one")
	ch <- invocation(1, "echo", "two")
	close(ch)

	sched.Run(context.Background(), ch)

	if counters.Started != 2 || counters.CompletedZero != 2 {
		t.Fatalf("counters = %+v, want 2 started, 2 completed", counters)
	}
	if out.String() != "one\ntwo\n" && out.String() != "two\none\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunRespectsJobsConcurrencyBound(t *testing.T) {
	cfg := &config.Config{Jobs: 2}
	sched, counters, _, _ := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 6)
	for i := 0; i < 6; i++ {
		ch <- invocation(uint64(i), "sh", "-c", "sleep 0.05")
	}
	close(ch)

	start := time.Now()
	sched.Run(context.Background(), ch)
	elapsed := time.Since(start)

	if counters.Started != 6 {
		t.Fatalf("Started = %d, want 6", counters.Started)
	}
	// With 2 concurrent slots and 6 commands sleeping 50ms each, the run
	// should take at least 3 batches' worth of time (~150ms), not ~50ms.
	if elapsed < 120*time.Millisecond {
		t.Errorf("elapsed = %v, too fast for a 2-wide pool running 6x50ms sleeps", elapsed)
	}
}

func TestRunCountsNonZeroExit(t *testing.T) {
	cfg := &config.Config{Jobs: 1}
	sched, counters, _, _ := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 1)
	ch <- invocation(0, "sh", "-c", "exit 3")
	close(ch)

	sched.Run(context.Background(), ch)

	if counters.ExitStatusError != 1 {
		t.Fatalf("ExitStatusError = %d, want 1", counters.ExitStatusError)
	}
}

func TestRunCountsSpawnErrorForMissingExecutable(t *testing.T) {
	cfg := &config.Config{Jobs: 1}
	sched, counters, _, errOut := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 1)
	ch <- invocation(0, "this-binary-does-not-exist-anywhere")
	close(ch)

	sched.Run(context.Background(), ch)

	if counters.SpawnError != 1 {
		t.Fatalf("SpawnError = %d, want 1", counters.SpawnError)
	}
	if errOut.Len() == 0 {
		t.Errorf("expected a diagnostic line on stderr for the spawn error")
	}
}

func TestRunEnforcesPerCommandTimeout(t *testing.T) {
	cfg := &config.Config{Jobs: 1, TimeoutSeconds: 0.05}
	sched, counters, _, _ := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 1)
	ch <- invocation(0, "sleep", "5")
	close(ch)

	start := time.Now()
	sched.Run(context.Background(), ch)
	elapsed := time.Since(start)

	if counters.Timeout != 1 {
		t.Fatalf("Timeout = %d, want 1", counters.Timeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, timeout should have killed the child quickly", elapsed)
	}
}

func TestExitOnErrorCancelsRemainingInvocations(t *testing.T) {
	cfg := &config.Config{Jobs: 1, ExitOnError: true}
	sched, counters, _, _ := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 3)
	ch <- invocation(0, "sh", "-c", "exit 1")
	ch <- invocation(1, "echo", "should not run")
	ch <- invocation(2, "echo", "should not run either")
	close(ch)

	sched.Run(context.Background(), ch)

	if counters.ExitStatusError != 1 {
		t.Fatalf("ExitStatusError = %d, want 1", counters.ExitStatusError)
	}
	if counters.Cancelled == 0 {
		t.Errorf("expected at least one cancelled invocation after --exit-on-error, got %+v", counters)
	}
}

func TestDryRunNeverExecutesAndPrintsResolvedInvocation(t *testing.T) {
	cfg := &config.Config{Jobs: 1, DryRun: true}
	sched, counters, out, _ := newTestScheduler(cfg)

	ch := make(chan model.Invocation, 1)
	inv := invocation(0, "this-binary-does-not-exist-anywhere", "x", "y")
	inv.Origin = model.OriginFile
	inv.SourceLine = 7
	ch <- inv
	close(ch)

	sched.Run(context.Background(), ch)

	if counters.Started != 1 || counters.CompletedZero != 1 {
		t.Fatalf("counters = %+v, want Started=1 CompletedZero=1 for --dry-run", counters)
	}
	want := "cmd=this-binary-does-not-exist-anywhere,args=x y,line=file:7\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestSafetyGateDeniesConfiguredCommand(t *testing.T) {
	cfg := &config.Config{Jobs: 1}
	var out, errOut bytes.Buffer
	sk := sink.New(&out, &errOut, false, sink.Discard{})
	counters := &report.Counters{}
	gate := safety.NewGate(nil, []string{"echo"})
	sched := New(cfg, sk, counters, gate, nil, nil)

	ch := make(chan model.Invocation, 1)
	ch <- invocation(0, "echo", "hi")
	close(ch)

	sched.Run(context.Background(), ch)

	if counters.SpawnError != 1 {
		t.Fatalf("SpawnError = %d, want 1 for a denylisted command", counters.SpawnError)
	}
}
