// Package tui is the console's terminal frontend. It renders snapshots from
// the session store and never mutates them: every keystroke turns into a
// router call, and redraws are driven by the store's change channel.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentdeck-dev/agentdeck/internal/channel"
	"github.com/agentdeck-dev/agentdeck/pkg/console/router"
	"github.com/agentdeck-dev/agentdeck/pkg/console/session"
	"github.com/agentdeck-dev/agentdeck/pkg/console/stages"
	"github.com/agentdeck-dev/agentdeck/pkg/console/toolstate"
)

// Deps are the collaborators the model renders from and drives.
type Deps struct {
	Store  *session.Store
	Router *router.Router
	Tools  *toolstate.Tracker
	Stages *stages.Tracker

	// ConnStates delivers channel adapter state transitions. The initial
	// state is read from ConnState.
	ConnStates <-chan channel.State
	ConnState  func() channel.State
}

type (
	storeChangedMsg struct{}
	connStateMsg    struct{ state channel.State }
	countdownMsg    struct{}
)

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	conn    channel.State
	changes <-chan struct{}

	// showThreads switches the body to the stored-thread picker.
	showThreads  bool
	threadCursor int

	// startFresh routes the next submitted task to a brand new session.
	startFresh bool
}

// New builds the model. The store subscription is taken here so no change
// notification between construction and Init is lost.
func New(deps Deps) Model {
	input := textinput.New()
	input.Placeholder = "Describe a task…"
	input.Prompt = "> "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	return Model{
		deps:    deps,
		input:   input,
		spinner: sp,
		conn:    deps.ConnState(),
		changes: deps.Store.Subscribe(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		waitForStore(m.changes),
		waitForConnState(m.deps.ConnStates),
		countdownTick(),
	)
}

func waitForStore(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return storeChangedMsg{}
	}
}

func waitForConnState(states <-chan channel.State) tea.Cmd {
	return func() tea.Msg {
		return connStateMsg{state: <-states}
	}
}

func countdownTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := m.height - chromeLines
		if bodyHeight < 1 {
			bodyHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = bodyHeight
		}
		m.input.Width = m.width - 4
		m.refreshBody()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case storeChangedMsg:
		m.refreshBody()
		return m, waitForStore(m.changes)

	case connStateMsg:
		m.conn = msg.state
		return m, waitForConnState(m.deps.ConnStates)

	case countdownMsg:
		// Redraw so the deadline countdown stays current.
		return m, countdownTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// chromeLines is the vertical space taken by everything around the viewport:
// title bar, session tabs, prompt area, input, status bar.
const chromeLines = 7

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showThreads {
		return m.handleThreadKey(msg)
	}

	active, hasActive := m.deps.Store.Active()

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		if hasActive && active.IsRunning {
			m.deps.Router.StopTask(active.ID)
			return m, nil
		}
		return m, tea.Quit

	case "tab":
		m.cycleSession(1)
		m.refreshBody()
		return m, nil

	case "shift+tab":
		m.cycleSession(-1)
		m.refreshBody()
		return m, nil

	case "ctrl+n":
		m.startFresh = true
		return m, nil

	case "ctrl+r":
		if hasActive {
			m.deps.Router.ResetSession(active.ID)
		}
		return m, nil

	case "ctrl+x":
		if hasActive {
			m.deps.Router.DeleteSession(active.ID)
			m.refreshBody()
		}
		return m, nil

	case "ctrl+l":
		m.showThreads = true
		m.threadCursor = 0
		m.deps.Router.RequestHistory()
		return m, nil

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	// A pending confirmation takes over y/n.
	if hasActive && active.PendingRequest != nil &&
		active.PendingRequest.Kind == session.RequestConfirmation {
		switch msg.String() {
		case "y", "Y":
			m.deps.Router.ResolveConfirmation(active.ID, active.PendingRequest.RequestID, true)
			return m, nil
		case "n", "N":
			m.deps.Router.ResolveConfirmation(active.ID, active.PendingRequest.RequestID, false)
			return m, nil
		}
	}

	if msg.String() == "enter" {
		return m.submitInput(active, hasActive)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput(active session.Session, hasActive bool) (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.Reset()

	// A pending decision consumes the line as its answer.
	if hasActive && active.PendingRequest != nil &&
		active.PendingRequest.Kind == session.RequestDecision {
		m.deps.Router.ResolveDecision(active.ID, active.PendingRequest.RequestID, value)
		return m, nil
	}

	sessionID := ""
	isReply := false
	if hasActive && !m.startFresh {
		sessionID = active.ID
		isReply = len(active.Transcript) > 0
	}
	m.startFresh = false
	m.deps.Router.StartTask(sessionID, value, isReply)
	m.refreshBody()
	return m, nil
}

func (m Model) handleThreadKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	threads := m.deps.Store.Threads()
	switch msg.String() {
	case "esc", "ctrl+l", "q":
		m.showThreads = false
		return m, nil
	case "up", "k":
		if m.threadCursor > 0 {
			m.threadCursor--
		}
	case "down", "j":
		if m.threadCursor < len(threads)-1 {
			m.threadCursor++
		}
	case "enter":
		if m.threadCursor < len(threads) {
			m.deps.Router.OpenThread(threads[m.threadCursor].ID)
			m.showThreads = false
			m.refreshBody()
		}
	case "ctrl+d":
		if m.threadCursor < len(threads) {
			m.deps.Router.DeleteThread(threads[m.threadCursor].ID)
			if m.threadCursor > 0 {
				m.threadCursor--
			}
		}
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) cycleSession(delta int) {
	list := m.deps.Store.List()
	if len(list) < 2 {
		return
	}
	activeID := m.deps.Store.ActiveID()
	idx := 0
	for i, s := range list {
		if s.ID == activeID {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(list)) % len(list)
	m.deps.Store.SetActive(list[idx].ID)
}

// refreshBody rebuilds the viewport content from the active session snapshot
// and follows the tail.
func (m *Model) refreshBody() {
	if !m.ready {
		return
	}
	active, ok := m.deps.Store.Active()
	if !ok {
		m.viewport.SetContent(dimStyle.Render("No session yet. Type a task and press enter."))
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(
		active,
		m.deps.Tools.List(active.ID),
		m.deps.Stages.Plan(active.ID),
		m.viewport.Width,
	))
	if atBottom {
		m.viewport.GotoBottom()
	}
}
