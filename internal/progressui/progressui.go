// Package progressui implements the optional --progress-bar UI (see
// SPEC_FULL.md's DOMAIN STACK). It is a from-scratch bubbletea program
// rather than a literal adaptation of utils/processor/spinner.go, since that
// spinner hand-rolled the ANSI cursor-hide/redraw loop bubbletea already
// owns; what carries over from it is the polling idiom (a ticker reading
// shared counters and redrawing a line) and the golang.org/x/term.IsTerminal
// guard that decides whether to attach the UI at all.
package progressui

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/gorallel/gorallel/internal/report"
)

const pollInterval = 100 * time.Millisecond

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// model is the bubbletea model polling a Counters snapshot on a fixed
// interval. total is the known invocation count, or -1 when the producer
// is still streaming (stdin, unbounded input files) and only "started so
// far" can be shown.
type model struct {
	spinner spinner.Model
	ctr     *report.Counters
	total   int64
	start   time.Time
	quit    bool
}

func newModel(ctr *report.Counters, total int64) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return model{spinner: sp, ctr: ctr, total: total, start: time.Now()}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quit = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case quitMsg:
		m.quit = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quit {
		return ""
	}
	started := m.ctr.Started
	ok := m.ctr.CompletedZero
	failed := m.ctr.ExitStatusError + m.ctr.SpawnError + m.ctr.Timeout + m.ctr.Cancelled
	elapsed := time.Since(m.start).Round(time.Second)

	countStr := fmt.Sprintf("%d", started)
	if m.total >= 0 {
		countStr = fmt.Sprintf("%d/%d", started, m.total)
	}

	return fmt.Sprintf("%s running %s  %s  %s  %s\n",
		m.spinner.View(),
		countStr,
		okStyle.Render(fmt.Sprintf("ok=%d", ok)),
		failStyle.Render(fmt.Sprintf("failed=%d", failed)),
		mutedStyle.Render(elapsed.String()))
}

type quitMsg struct{}

// Runner drives a bubbletea program displaying live counters until Stop is
// called. A Runner with a nil program (progress bar disabled, which
// cmd/root.go also does when stderr isn't a terminal) is a safe no-op.
type Runner struct {
	program *tea.Program
	done    chan struct{}
}

// New starts the progress UI if enabled, rendering counts against total (or
// an unknown total when total < 0). Call Stop once the run quiesces.
func New(enabled bool, ctr *report.Counters, total int64) *Runner {
	if !enabled {
		return &Runner{}
	}
	p := tea.NewProgram(newModel(ctr, total), tea.WithOutput(os.Stderr), tea.WithoutSignalHandler())
	r := &Runner{program: p, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		_, _ = p.Run()
	}()
	return r
}

// Stop signals the program to quit and waits for its goroutine to exit. A
// no-op on a disabled Runner.
func (r *Runner) Stop() {
	if r.program == nil {
		return
	}
	r.program.Send(quitMsg{})
	<-r.done
}
