package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gorallel/gorallel/internal/sink"
)

func TestFinishAllZeroIsSuccess(t *testing.T) {
	var out, errOut bytes.Buffer
	sk := sink.New(&out, &errOut, false, sink.Discard{})
	r := New(sk)
	c := &Counters{}
	c.RecordOutcome(false, false, false, false, true)

	if code := r.Finish(c); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if out.Len() != 0 {
		t.Errorf("expected no summary line on success, got %q", out.String())
	}
}

func TestFinishReportsFailures(t *testing.T) {
	var out, errOut bytes.Buffer
	sk := sink.New(&out, &errOut, false, sink.Discard{})
	r := New(sk)
	c := &Counters{}
	c.RecordOutcome(true, false, false, false, false)
	c.RecordOutcome(false, true, false, false, false)
	c.RecordOutcome(false, false, true, false, false)

	if code := r.Finish(c); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	got := out.String()
	if !strings.Contains(got, "exit_status_errors=1") ||
		!strings.Contains(got, "spawn_errors=1") ||
		!strings.Contains(got, "timeouts=1") {
		t.Errorf("unexpected summary line: %q", got)
	}
}

func TestFinishCancelledIsFailureWithoutSummaryCount(t *testing.T) {
	var out, errOut bytes.Buffer
	sk := sink.New(&out, &errOut, false, sink.Discard{})
	r := New(sk)
	c := &Counters{}
	c.RecordOutcome(false, false, false, true, false)

	if code := r.Finish(c); code != 1 {
		t.Fatalf("expected exit 1 when cancelled, got %d", code)
	}
	if strings.Contains(out.String(), "cancel") {
		t.Errorf("summary line should not carry a cancelled count, got %q", out.String())
	}
}
