package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"

	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/tunnel"
	"github.com/rigstead/berth/internal/util"
)

// refreshInterval is the fallback poll cadence. The filesystem watcher
// delivers most updates; the tick catches missed events and lets List prune
// tunnels whose ssh process died without touching the state file.
const refreshInterval = 2 * time.Second

// TunnelsApp wraps the Bubbletea program for the live tunnels table.
type TunnelsApp struct {
	program  *tea.Program
	manager  *tunnel.Manager
	stateDir string
}

// NewTunnels creates the tunnels view. stateDir is the directory holding
// tunnels.json; changes to it trigger a reload.
func NewTunnels(mgr *tunnel.Manager, stateDir string) *TunnelsApp {
	return &TunnelsApp{manager: mgr, stateDir: stateDir}
}

// Run blocks until the user quits or ctx is canceled.
func (a *TunnelsApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.program = tea.NewProgram(
		newTunnelsModel(a.manager),
		tea.WithAltScreen(),
	)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create state watcher")
	}
	defer watcher.Close()

	// Watch the directory: the state file is replaced by rename, so a watch
	// on the file itself would be lost after the first save.
	if err := watcher.Add(a.stateDir); err != nil {
		return errors.Wrapf(err, "watch state dir %s", a.stateDir)
	}

	go a.forwardChanges(ctx, watcher)

	go func() {
		<-ctx.Done()
		a.program.Send(tea.Quit())
	}()

	_, err = a.program.Run()
	return err
}

// forwardChanges turns filesystem events on the tunnels state file into
// reload messages, debounced so one save does not trigger several reloads.
func (a *TunnelsApp) forwardChanges(ctx context.Context, watcher *fsnotify.Watcher) {
	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != tunnel.FileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			debounce.Reset(100 * time.Millisecond)

		case <-debounce.C:
			a.program.Send(stateChangedMsg{})

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Messages

type stateChangedMsg struct{}

type tunnelsLoadedMsg struct {
	records []tunnel.Record
	err     error
}

type tickMsg time.Time

// Commands

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model

type tunnelsModel struct {
	manager  *tunnel.Manager
	records  []tunnel.Record
	err      error
	width    int
	ready    bool
	quitting bool
}

func newTunnelsModel(mgr *tunnel.Manager) tunnelsModel {
	return tunnelsModel{manager: mgr}
}

// refresh reloads the tunnel list off the Update loop. List prunes dead
// tunnels as a side effect, so the watch view doubles as the garbage
// collector while it is open.
func (m tunnelsModel) refresh() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		records, err := mgr.List(context.Background())
		return tunnelsLoadedMsg{records: records, err: err}
	}
}

// Init loads the table and starts the fallback tick.
func (m tunnelsModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), refreshTick())
}

// Update handles messages and updates the model.
func (m tunnelsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ready = true
		return m, nil

	case stateChangedMsg:
		return m, m.refresh()

	case tickMsg:
		return m, tea.Batch(m.refresh(), refreshTick())

	case tunnelsLoadedMsg:
		m.records = msg.records
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View renders the tunnels table with a help bar underneath.
func (m tunnelsModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(Title.Render("berth tunnels"))
	b.WriteString("  ")
	b.WriteString(Subtitle.Render(fmt.Sprintf("%d active", len(m.records))))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(Error.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
	}

	if len(m.records) == 0 {
		b.WriteString(Muted.Render("No active tunnels."))
		b.WriteString("\n")
	} else {
		b.WriteString(renderTunnelTable(m.records))
	}

	b.WriteString(HelpBar.Render("r refresh   q quit"))
	return b.String()
}

const tunnelRowFormat = "%-14s %10s %12s %8s %9s  %s"

// renderTunnelTable formats tunnel records as a fixed-width table, one row
// per tunnel, ordered by local port as List returns them.
func renderTunnelTable(records []tunnel.Record) string {
	var b strings.Builder

	header := fmt.Sprintf(tunnelRowFormat,
		"INSTANCE", "LOCAL PORT", "REMOTE PORT", "PID", "UPTIME", "URL")
	b.WriteString(TableHeader.Render(header))
	b.WriteString("\n")

	for _, rec := range records {
		b.WriteString(fmt.Sprintf(tunnelRowFormat,
			util.TruncateString(rec.InstanceID, 14),
			strconv.Itoa(rec.LocalPort),
			strconv.Itoa(rec.RemotePort),
			strconv.Itoa(rec.PID),
			util.FormatElapsed(time.Since(rec.CreatedAt)),
			rec.URL(),
		))
		b.WriteString("\n")
	}

	return b.String()
}
