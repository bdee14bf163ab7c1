package sink

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
)

func TestUnorderedSubmitWritesImmediately(t *testing.T) {
	var out, errOut bytes.Buffer
	s := New(&out, &errOut, false, Discard{})

	s.Submit(Record{Ordinal: 2, Stdout: []byte("b\n")})
	s.Submit(Record{Ordinal: 0, Stdout: []byte("a\n")})

	if out.String() != "b\na\n" {
		t.Errorf("expected submission order, got %q", out.String())
	}
}

func TestOrderedSubmitDrainsByOrdinalRegardlessOfArrivalOrder(t *testing.T) {
	var out, errOut bytes.Buffer
	s := New(&out, &errOut, true, Discard{})

	order := []uint64{3, 1, 0, 4, 2}
	var wg sync.WaitGroup
	for _, ord := range order {
		wg.Add(1)
		go func(ord uint64) {
			defer wg.Done()
			s.Submit(Record{Ordinal: ord, Stdout: []byte{byte('a' + ord), '\n'}})
		}(ord)
	}
	wg.Wait()

	if out.String() != "a\nb\nc\nd\ne\n" {
		t.Errorf("ordered output = %q, want a..e in sequence", out.String())
	}
}

func TestOrderedSentinelAdvancesCursorWithoutWriting(t *testing.T) {
	var out, errOut bytes.Buffer
	s := New(&out, &errOut, true, Discard{})

	s.Submit(Record{Ordinal: 1, Stdout: []byte("second\n")})
	s.Submit(Record{Ordinal: 0, Sentinel: true})

	if out.String() != "second\n" {
		t.Errorf("expected sentinel to advance the cursor silently, got %q", out.String())
	}
}

func TestDiscardSuppressesChosenStream(t *testing.T) {
	var out, errOut bytes.Buffer
	s := New(&out, &errOut, false, Discard{Stdout: true})

	s.Submit(Record{Ordinal: 0, Stdout: []byte("dropped\n"), Stderr: []byte("kept\n")})

	if out.Len() != 0 {
		t.Errorf("expected stdout to be discarded, got %q", out.String())
	}
	if errOut.String() != "kept\n" {
		t.Errorf("expected stderr to pass through, got %q", errOut.String())
	}
}

func TestWriteEngineErrLineBypassesStderrDiscard(t *testing.T) {
	var out, errOut bytes.Buffer
	s := New(&out, &errOut, false, Discard{Stderr: true})

	s.WriteEngineErrLine("spawn error\n")

	if errOut.String() != "spawn error\n" {
		t.Errorf("expected engine diagnostics to bypass discard, got %q", errOut.String())
	}
}

func TestOrderedSubmitIsRaceFree(t *testing.T) {
	var out, errOut bytes.Buffer
	s := New(&out, &errOut, true, Discard{})

	const n = 200
	perm := rand.Perm(n)
	var wg sync.WaitGroup
	for _, ord := range perm {
		wg.Add(1)
		go func(ord int) {
			defer wg.Done()
			s.Submit(Record{Ordinal: uint64(ord)})
		}(ord)
	}
	wg.Wait()
}
