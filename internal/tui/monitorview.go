// Package tui implements the interactive terminal views: the live readiness
// checklist shown by `berth monitor --tui` and the self-refreshing tunnels
// table shown by `berth tunnel list --watch`.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/monitor"
	"github.com/rigstead/berth/internal/util"
)

// MonitorApp wraps the Bubbletea program for the readiness view. The monitor
// runs on a background goroutine; bus events are forwarded into the program
// as messages so the checklist updates live.
type MonitorApp struct {
	program *tea.Program
	mon     *monitor.Monitor
	bus     *event.Bus
	handle  instance.Handle
}

// NewMonitor creates the readiness view for one instance.
func NewMonitor(mon *monitor.Monitor, bus *event.Bus, h instance.Handle) *MonitorApp {
	return &MonitorApp{mon: mon, bus: bus, handle: h}
}

// Run blocks until monitoring reaches a terminal stage or the user quits.
// Quitting cancels the monitor; its result is returned either way so the
// caller can print the outcome and map it to an exit code.
func (a *MonitorApp) Run(ctx context.Context) (monitor.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.program = tea.NewProgram(
		newMonitorModel(a.handle, cancel),
		tea.WithAltScreen(),
	)

	subID := a.bus.SubscribeAll(func(e event.Event) {
		a.program.Send(eventMsg{event: e})
	})
	defer a.bus.Unsubscribe(subID)

	done := make(chan monitorDoneMsg, 1)
	go func() {
		res, err := a.mon.Run(ctx, a.handle)
		msg := monitorDoneMsg{result: res, err: err}
		done <- msg
		a.program.Send(msg)
	}()

	_, runErr := a.program.Run()

	// If the user quit before the monitor finished, the cancel above has
	// already been issued by the model; wait for the result either way.
	cancel()
	d := <-done
	if runErr != nil {
		return d.result, runErr
	}
	return d.result, d.err
}

// Messages

type eventMsg struct {
	event event.Event
}

type monitorDoneMsg struct {
	result monitor.Result
	err    error
}

// Model

type monitorModel struct {
	handle instance.Handle
	cancel context.CancelFunc

	spin    spinner.Model
	bar     progress.Model
	stages  []monitor.Stage
	current monitor.Stage
	failed  bool
	reason  string

	failures    int
	maxFailures int
	lastErr     string
	progress    *event.DownloadProgressEvent

	started  time.Time
	width    int
	ready    bool
	quitting bool
}

func newMonitorModel(h instance.Handle, cancel context.CancelFunc) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StageActive
	return monitorModel{
		handle:  h,
		cancel:  cancel,
		spin:    s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(32)),
		stages:  monitor.Stages(),
		current: monitor.StageInitializing,
		started: time.Now(),
	}
}

// Init starts the spinner.
func (m monitorModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles messages and updates the model.
func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ready = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case eventMsg:
		return m.applyEvent(msg.event), nil

	case monitorDoneMsg:
		m.failed = msg.result.Stage == monitor.StageError
		if !m.failed {
			m.current = msg.result.Stage
		}
		m.reason = msg.result.Reason
		return m, tea.Quit
	}

	return m, nil
}

// applyEvent folds a bus event into the model. Stage changes advance the
// checklist; progress and poll failures only affect the status lines.
func (m monitorModel) applyEvent(e event.Event) monitorModel {
	switch e := e.(type) {
	case event.StageChangedEvent:
		m.current = stageFromEvent(e.CurrentStage)
		m.failures = 0
		m.lastErr = ""

	case event.DownloadProgressEvent:
		p := e
		m.progress = &p
		m.failures = 0
		m.lastErr = ""

	case event.PollFailedEvent:
		m.failures = e.Consecutive
		m.maxFailures = e.MaxFailures
		m.lastErr = e.Err

	case event.MonitorCompletedEvent:
		if e.Stage == event.StageError {
			m.failed = true
		} else {
			m.current = stageFromEvent(e.Stage)
		}
		m.reason = e.Reason
	}
	return m
}

// View renders the stage checklist with a status line underneath.
func (m monitorModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.quitting {
		return "Canceled.\n"
	}

	var b strings.Builder

	b.WriteString(Title.Render("berth monitor"))
	b.WriteString("  ")
	b.WriteString(Subtitle.Render(fmt.Sprintf("instance %s at %s", m.handle.ID, m.handle.Addr())))
	b.WriteString("\n\n")

	for _, st := range m.stages {
		b.WriteString(m.renderStageLine(st))
		b.WriteString("\n")
	}

	// The bar only means something once the provisioner announced a total.
	if m.current == monitor.StageDownloading && m.progress != nil && m.progress.Announced > 0 {
		ratio := float64(m.progress.Completed) / float64(m.progress.Announced)
		b.WriteString("\n    ")
		b.WriteString(m.bar.ViewAs(ratio))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(Muted.Render("elapsed " + util.FormatElapsed(time.Since(m.started))))
	if m.failures > 0 {
		b.WriteString("   ")
		b.WriteString(Warning.Render(fmt.Sprintf("poll failures %d/%d", m.failures, m.maxFailures)))
		if m.lastErr != "" {
			b.WriteString("\n")
			b.WriteString(util.TruncateANSI(Muted.Render("last error: "+m.lastErr), m.width))
		}
	}
	b.WriteString("\n")

	if m.failed && m.reason != "" {
		b.WriteString("\n")
		b.WriteString(Error.Render("monitoring failed: " + m.reason))
		b.WriteString("\n")
	}

	b.WriteString(HelpBar.Render("press q to cancel"))
	return b.String()
}

// renderStageLine renders one checklist row. Stages before the current one
// are done, the current one carries the spinner (or a cross after failure),
// later ones are pending.
func (m monitorModel) renderStageLine(st monitor.Stage) string {
	name := st.String()
	switch {
	case st < m.current || (st == m.current && st == monitor.StageReady && !m.failed):
		return "  " + StageDone.Render("✓") + " " + StageDone.Render(name)

	case st == m.current && m.failed:
		return "  " + StageFailed.Render("✗") + " " + StageFailed.Render(name)

	case st == m.current:
		line := "  " + m.spin.View() + " " + StageActive.Render(name)
		if st == monitor.StageDownloading && m.progress != nil {
			line += "  " + Muted.Render(m.progressLine())
		}
		return line

	default:
		return "  " + StagePending.Render("○") + " " + StagePending.Render(name)
	}
}

// progressLine summarizes the latest download progress event.
func (m monitorModel) progressLine() string {
	p := m.progress
	var parts []string
	if p.Announced > 0 {
		parts = append(parts, fmt.Sprintf("models %d/%d", p.Completed, p.Announced))
	}
	if p.Bytes > 0 {
		parts = append(parts, util.FormatBytes(p.Bytes))
	}
	if p.Speed != "" {
		parts = append(parts, p.Speed)
	}
	return strings.Join(parts, ", ")
}

// stageFromEvent maps the event-layer stage name back to a monitor stage.
func stageFromEvent(s event.Stage) monitor.Stage {
	for _, st := range monitor.Stages() {
		if string(s) == st.String() {
			return st
		}
	}
	return monitor.StageError
}
