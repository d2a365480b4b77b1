package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentdeck-dev/agentdeck/internal/channel"
)

func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(m.titleBar())
	b.WriteString("\n")
	b.WriteString(m.sessionTabs())
	b.WriteString("\n")

	if m.showThreads {
		b.WriteString(m.threadPicker())
	} else {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(m.promptArea())
		b.WriteString("\n")
		b.WriteString(m.input.View())
	}

	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

func (m Model) titleBar() string {
	title := titleStyle.Render("agentdeck")
	var conn string
	switch m.conn {
	case channel.StateConnected:
		conn = connectedStyle.Render("● connected")
	case channel.StateConnecting:
		conn = connectingStyle.Render("◌ connecting")
	default:
		conn = disconnectedStyle.Render("○ disconnected")
	}
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(conn)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + conn
}

func (m Model) sessionTabs() string {
	list := m.deps.Store.List()
	if len(list) == 0 {
		return inactiveTabStyle.Render("no sessions")
	}
	activeID := m.deps.Store.ActiveID()
	parts := make([]string, 0, len(list))
	for _, s := range list {
		label := s.Title
		if s.IsRunning {
			label = m.spinner.View() + label
		}
		if s.ID == activeID {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return strings.Join(parts, " ")
}

// promptArea shows the pending request if there is one, or the run state.
func (m Model) promptArea() string {
	active, ok := m.deps.Store.Active()
	if !ok {
		return ""
	}
	if req := active.PendingRequest; req != nil {
		remaining := -1
		if secs, tracked := m.deps.Router.Timers().Remaining(active.ID, req.RequestID); tracked {
			remaining = secs
		}
		return renderRequest(*req, remaining)
	}
	if active.HasFatalError {
		return errorStyle.Render("session hit a fatal error · ctrl+r to reset")
	}
	if active.IsRunning {
		return m.spinner.View() + dimStyle.Render(" working · esc to stop")
	}
	return ""
}

func (m Model) threadPicker() string {
	threads := m.deps.Store.Threads()
	height := m.viewport.Height + 2
	var b strings.Builder
	b.WriteString(promptStyle.Render("Stored threads"))
	b.WriteString("\n")
	if len(threads) == 0 {
		b.WriteString(dimStyle.Render("nothing stored yet"))
		b.WriteString("\n")
	}
	for i, t := range threads {
		line := fmt.Sprintf("%s  %s", t.ID, t.Title)
		if i == m.threadCursor {
			line = selectedRowStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	for used := len(threads) + 1; used < height; used++ {
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) statusBar() string {
	hints := "enter send · tab sessions · ctrl+n new · ctrl+l threads · ctrl+r reset · ctrl+c quit"
	if m.showThreads {
		hints = "enter open · ctrl+d delete · esc back"
	}
	return statusBarStyle.Width(m.width).Render(hints)
}
