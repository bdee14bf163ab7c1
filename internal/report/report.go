// Package report implements the Counters (spec §3) and the Reporter
// (spec §4.5): atomic tallies maintained by the scheduler, aggregated into
// a one-line summary and an exit status once the run quiesces. Grounded on
// the teacher's cmd/process.go final summary block and the brief +
// detailed dual-logging split in utils/retry.
package report

import (
	"fmt"
	"sync/atomic"

	"github.com/gorallel/gorallel/internal/sink"
)

// Counters are the atomic tallies the scheduler updates as invocations
// complete. The sum of every field except Started equals Started at
// quiesce (spec §3 invariant).
type Counters struct {
	Started         int64
	CompletedZero   int64
	ExitStatusError int64
	SpawnError      int64
	Timeout         int64
	Cancelled       int64
}

func (c *Counters) incStarted()       { atomic.AddInt64(&c.Started, 1) }
func (c *Counters) incCompletedZero() { atomic.AddInt64(&c.CompletedZero, 1) }
func (c *Counters) incExitStatus()    { atomic.AddInt64(&c.ExitStatusError, 1) }
func (c *Counters) incSpawnError()    { atomic.AddInt64(&c.SpawnError, 1) }
func (c *Counters) incTimeout()       { atomic.AddInt64(&c.Timeout, 1) }
func (c *Counters) incCancelled()     { atomic.AddInt64(&c.Cancelled, 1) }

// IncStarted records that a command began executing.
func (c *Counters) IncStarted() { c.incStarted() }

// RecordOutcome tallies a finished invocation into the matching bucket.
func (c *Counters) RecordOutcome(exitStatusErr, spawnErr, timedOut, cancelled bool, zeroExit bool) {
	switch {
	case spawnErr:
		c.incSpawnError()
	case timedOut:
		c.incTimeout()
	case cancelled:
		c.incCancelled()
	case exitStatusErr:
		c.incExitStatus()
	case zeroExit:
		c.incCompletedZero()
	}
}

// snapshot reads every field with Load, avoiding torn reads under -race.
type snapshot struct {
	started, completedZero, exitStatusError, spawnError, timeout, cancelled int64
}

func (c *Counters) snapshot() snapshot {
	return snapshot{
		started:         atomic.LoadInt64(&c.Started),
		completedZero:   atomic.LoadInt64(&c.CompletedZero),
		exitStatusError: atomic.LoadInt64(&c.ExitStatusError),
		spawnError:      atomic.LoadInt64(&c.SpawnError),
		timeout:         atomic.LoadInt64(&c.Timeout),
		cancelled:       atomic.LoadInt64(&c.Cancelled),
	}
}

// Reporter writes the final summary and computes the process exit status.
type Reporter struct {
	sink *sink.Sink
}

// New builds a Reporter that writes its summary line through sk.
func New(sk *sink.Sink) *Reporter {
	return &Reporter{sink: sk}
}

// Finish writes the failure summary (only when some category is non-zero)
// and returns the process exit code: 1 if any of ExitStatusError,
// SpawnError, Timeout or Cancelled is non-zero, 0 otherwise.
func (r *Reporter) Finish(c *Counters) int {
	s := c.snapshot()
	if s.exitStatusError == 0 && s.spawnError == 0 && s.timeout == 0 && s.cancelled == 0 {
		return 0
	}
	line := fmt.Sprintf("command failures: exit_status_errors=%d, spawn_errors=%d, timeouts=%d\n",
		s.exitStatusError, s.spawnError, s.timeout)
	if r.sink != nil {
		r.sink.WriteEngineLine(line)
	}
	return 1
}
