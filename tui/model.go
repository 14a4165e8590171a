package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"ffbatch/batch"
)

// TickMsg drives the periodic snapshot poll.
type TickMsg time.Time

// batchDoneMsg is sent when the orchestrator's Run loop returns.
type batchDoneMsg struct {
	err error
}

// Model is the Bubble Tea model. It never mutates orchestrator state
// directly; it reads published snapshots and issues control requests.
type Model struct {
	orch *batch.Orchestrator

	Progress    progress.Model
	LogViewport viewport.Model
	ShowLogs    bool
	Width       int
	Height      int

	snap     batch.Snapshot
	tail     []string
	finished bool
	batchErr error
}

// NewModel creates the TUI over a prepared orchestrator.
func NewModel(orch *batch.Orchestrator) Model {
	prog := progress.New(
		progress.WithGradient("#7C3AED", "#10B981"),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	vp := viewport.New(80, 10)
	vp.SetContent("")

	return Model{
		orch:        orch,
		Progress:    prog,
		LogViewport: vp,
		snap:        orch.Snapshot(),
	}
}

// Init starts the batch and the UI tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.runBatch(),
		tickCmd(),
	)
}

func (m Model) runBatch() tea.Cmd {
	return func() tea.Msg {
		return batchDoneMsg{err: m.orch.Run()}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// activePaused reports whether the active job is currently paused.
func (m Model) activePaused() bool {
	if m.snap.Active < 0 || m.snap.Active >= len(m.snap.Jobs) {
		return false
	}
	return m.snap.Jobs[m.snap.Active].Status == batch.StatusPaused
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.finished {
				orch := m.orch
				return m, tea.Sequence(
					func() tea.Msg { _ = orch.Cancel(); return nil },
					tea.Quit,
				)
			}
			return m, tea.Quit

		case "p":
			if m.finished {
				break
			}
			orch := m.orch
			if m.activePaused() {
				// Invalid-state errors are dropped: the process may
				// have exited between the snapshot and the request.
				cmds = append(cmds, func() tea.Msg { _ = orch.Resume(); return nil })
			} else {
				cmds = append(cmds, func() tea.Msg { _ = orch.Pause(); return nil })
			}

		case "c":
			if !m.finished {
				orch := m.orch
				cmds = append(cmds, func() tea.Msg { _ = orch.Cancel(); return nil })
			}

		case "l":
			m.ShowLogs = !m.ShowLogs
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 20
		m.LogViewport.Width = msg.Width - 4
		logHeight := msg.Height - 24
		if logHeight < 0 {
			logHeight = 0
		}
		m.LogViewport.Height = logHeight

	case TickMsg:
		m.snap = m.orch.Snapshot()
		if live := m.orch.ActiveTail(); len(live) > 0 {
			m.tail = live
		} else if m.snap.Active >= 0 && m.snap.Active < len(m.snap.Jobs) {
			m.tail = m.snap.Jobs[m.snap.Active].Tail
		}
		if len(m.tail) > 0 {
			m.LogViewport.SetContent(strings.Join(m.tail, "\n"))
			m.LogViewport.GotoBottom()
		}
		if !m.finished {
			cmds = append(cmds, tickCmd())
		}

	case batchDoneMsg:
		m.finished = true
		m.batchErr = msg.err
		m.snap = m.orch.Snapshot()
	}

	if m.ShowLogs {
		var cmd tea.Cmd
		m.LogViewport, cmd = m.LogViewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}
