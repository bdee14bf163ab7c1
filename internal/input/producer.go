// Package input implements the producer (spec §4.1): it turns the
// configuration into a lazy, finite sequence of model.Invocation values and
// pushes them onto the scheduler's inbound channel, closing the channel
// when every source is exhausted. Grounded on cmd/process.go's
// bufio.NewReader/ReadString('\n') STDIN-draining loop, generalized to
// files, NUL-delimited records, and cartesian argument-group expansion.
package input

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gorallel/gorallel/internal/config"
	"github.com/gorallel/gorallel/internal/logging"
	"github.com/gorallel/gorallel/internal/model"
	"github.com/gorallel/gorallel/internal/regexpl"
	"github.com/gorallel/gorallel/internal/sink"
)

// Producer turns a Config into a stream of Invocations.
type Producer struct {
	cfg    *config.Config
	tmpl   *regexpl.Template
	groups [][]string // post auto-named-name-consumption argument groups
	log    *logging.Logger
	sink   *sink.Sink

	counter uint64
}

// PrepareTemplate selects and compiles the single active template per
// spec §4.2's precedence (auto-named, then explicit, then auto-numbered,
// then none), consuming capture names out of the command template for
// auto-named mode. In argument-group mode, numbered {1}/{2}/... interpolation
// is synthesized by default even without --auto-interpolate-args, since the
// cartesian tuple has no other way to reach the command template. It returns
// the template plus the argument groups to cartesian-expand (with any
// consumed name tokens stripped).
func PrepareTemplate(cfg *config.Config) (*regexpl.Template, [][]string, error) {
	groups := cfg.ArgGroups
	argGroupMode := len(groups) > 0

	if argGroupMode && cfg.AutoNamed {
		names := make([]string, len(groups))
		stripped := make([][]string, len(groups))
		for i, g := range groups {
			if len(g) == 0 {
				return nil, nil, fmt.Errorf("argument group %d has no capture name for --auto-interpolate-named-args", i+1)
			}
			names[i] = g[0]
			stripped[i] = g[1:]
		}
		return regexpl.AutoNamed(names), stripped, nil
	}
	if cfg.Regex != "" {
		t, err := regexpl.Compile(cfg.Regex)
		if err != nil {
			return nil, nil, err
		}
		return t, groups, nil
	}
	// Argument-group mode interpolates {1}/{2}/... by default, with no flag
	// required: --auto-interpolate-args just names this already-default
	// behavior explicitly. A command with no {n} key simply leaves the
	// tuple unconsumed, and emitRecord appends it as a trailing argument.
	if argGroupMode {
		return regexpl.AutoNumbered(len(groups)), groups, nil
	}
	return regexpl.None(), groups, nil
}

// New builds a Producer. tmpl/groups should come from PrepareTemplate.
func New(cfg *config.Config, tmpl *regexpl.Template, groups [][]string, log *logging.Logger, sk *sink.Sink) *Producer {
	return &Producer{cfg: cfg, tmpl: tmpl, groups: groups, log: log, sink: sk}
}

// Run emits every Invocation onto ch and closes it once every source is
// exhausted. A fatal read error stops production and is returned to the
// caller, which cancels the run and exits with status 1 per spec §7.
func (p *Producer) Run(ch chan<- model.Invocation) error {
	defer close(ch)

	if len(p.groups) > 0 {
		return p.runArgGroups(ch)
	}
	return p.runFileSources(ch)
}

// runArgGroups enumerates the cartesian product of argument groups with the
// last group varying fastest (spec §4.1.1): for [A,B] x [C,D] the order is
// AC, AD, BC, BD.
func (p *Producer) runArgGroups(ch chan<- model.Invocation) error {
	indices := make([]int, len(p.groups))
	total := 1
	for _, g := range p.groups {
		total *= len(g)
	}
	if total == 0 {
		return nil
	}

	position := 0
	for {
		position++
		tuple := make([]string, len(p.groups))
		for i, idx := range indices {
			tuple[i] = p.groups[i][idx]
		}
		p.emitRecord(ch, model.OriginArgGroups, "", position, strings.Join(tuple, " "))

		// Odometer increment, last group fastest.
		i := len(indices) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(p.groups[i]) {
				break
			}
			indices[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return nil
}

// runFileSources reads each configured input in listed order (or stdin if
// none is configured), line-by-line or NUL-delimited.
func (p *Producer) runFileSources(ch chan<- model.Invocation) error {
	files := p.cfg.InputFiles
	if len(files) == 0 {
		files = []string{"-"}
	}

	for _, name := range files {
		if err := p.runOneFile(ch, name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Producer) runOneFile(ch chan<- model.Invocation, name string) error {
	var r io.Reader
	originName := name
	if name == "-" {
		r = os.Stdin
		originName = ""
	} else {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("opening input file %s: %w", name, err)
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	if p.cfg.NullSeparator {
		scanner.Split(splitNull)
	} else {
		scanner.Split(bufio.ScanLines)
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" && p.cfg.NoRunIfEmpty {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		origin := model.OriginFile
		if name == "-" {
			origin = model.OriginStdin
		}
		p.emitRecord(ch, origin, originName, lineNo, trimmed)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input %s: %w", name, err)
	}
	return nil
}

// splitNull is a bufio.SplitFunc that delimits records on a NUL byte.
func splitNull(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// emitRecord assigns the next ordinal to one candidate invocation, applies
// the template, and either pushes a built Invocation onto ch or — on a
// non-match — logs a warning and (in ordered mode) submits a sentinel so the
// sink's cursor still advances past this ordinal (spec §4.1/§4.3).
func (p *Producer) emitRecord(ch chan<- model.Invocation, origin model.Origin, originName string, sourceLine int, datum string) {
	ordinal := p.counter
	p.counter++

	argv := append([]string(nil), p.cfg.CommandAndInitialArgs...)
	consumedAny := false

	if p.tmpl.Active() {
		values, ok := p.tmpl.Match(datum)
		if !ok {
			if p.log != nil {
				p.log.Warn("no regex match for input %q at %s:%d; skipping", datum, origin, sourceLine)
			}
			if p.cfg.KeepOrder && p.sink != nil {
				p.sink.Submit(sink.Record{Ordinal: ordinal, Sentinel: true})
			}
			return
		}
		out := make([]string, len(argv))
		for i, el := range argv {
			expanded, consumed := p.tmpl.Substitute(el, values)
			out[i] = expanded
			if consumed {
				consumedAny = true
			}
		}
		argv = out
	}

	// Append-trimmed-line behavior (spec §4.1 step 3): whenever no argv
	// element actually consumed a substitution key, the raw datum — the
	// trimmed input line, or the space-joined argument-group tuple — is
	// appended as a trailing argument. This applies uniformly across all
	// three origins; a command with no {}/{n}/{name} key always receives
	// its datum verbatim, the way the original engine does.
	if !consumedAny {
		argv = append(argv, datum)
	}

	display := strings.Join(argv, " ")

	if p.cfg.Shell {
		joined := strings.Join(argv, " ")
		argv = []string{p.cfg.ShellPath, "-c", joined}
	}

	inv := model.Invocation{
		Origin:         origin,
		OriginName:     originName,
		Ordinal:        ordinal,
		SourceLine:     sourceLine,
		Argv:           argv,
		DisplayCommand: display,
	}
	ch <- inv
}
