package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/agentdeck-dev/agentdeck/pkg/console/session"
	"github.com/agentdeck-dev/agentdeck/pkg/console/stages"
	"github.com/agentdeck-dev/agentdeck/pkg/console/toolstate"
)

// renderTranscript produces the scrollback body for one session: committed
// messages, then live tool and stage progress, then the streaming buffers.
func renderTranscript(s session.Session, tools []toolstate.Run, plan []stages.Stage, width int) string {
	var b strings.Builder

	for _, msg := range s.Transcript {
		b.WriteString(renderMessage(msg, width))
		b.WriteString("\n")
	}

	if line := renderStages(plan); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, run := range tools {
		b.WriteString(renderToolRun(run))
		b.WriteString("\n")
	}

	if s.StreamingReasoning != "" {
		b.WriteString(reasoningStyle.Render(wrap(s.StreamingReasoning, width)))
		b.WriteString("\n")
	}
	if s.StreamingText != "" {
		b.WriteString(assistantStyle.Render(wrap(s.StreamingText, width)))
		b.WriteString("\n")
	}

	return b.String()
}

func renderMessage(msg session.Message, width int) string {
	switch msg.Kind {
	case session.MessageText:
		if msg.Role == session.RoleUser {
			return userStyle.Render("You: ") + wrap(msg.Content, width)
		}
		var b strings.Builder
		if msg.Reasoning != "" {
			b.WriteString(reasoningStyle.Render(wrap(msg.Reasoning, width)))
			b.WriteString("\n")
		}
		b.WriteString(assistantStyle.Render(wrap(msg.Content, width)))
		return b.String()

	case session.MessageError:
		return errorStyle.Render("error: " + wrap(msg.Content, width))

	case session.MessageResolution:
		label := "request " + string(msg.RequestStatus)
		if msg.Prompt != "" {
			label = fmt.Sprintf("%q %s", msg.Prompt, msg.RequestStatus)
		}
		return statusMsgStyle.Render(label)

	case session.MessageStatus:
		switch msg.Status {
		case session.StatusCancelled:
			return statusMsgStyle.Render("task cancelled")
		default:
			return statusMsgStyle.Render("task completed")
		}
	}
	return ""
}

func renderToolRun(run toolstate.Run) string {
	line := fmt.Sprintf("⚙ %s · %s", run.DisplayName, run.Status)
	if run.Result != "" {
		line += " · " + run.Result
	}
	return toolStyle.Render(line)
}

// renderStages draws the stage plan as one line, e.g.
// "✓ inspect  ▶ summarize  · report".
func renderStages(plan []stages.Stage) string {
	if len(plan) == 0 {
		return ""
	}
	parts := make([]string, 0, len(plan))
	for _, st := range plan {
		switch st.Status {
		case stages.StatusCompleted:
			parts = append(parts, stageDoneStyle.Render("✓ "+st.Name))
		case stages.StatusActive:
			parts = append(parts, stageActiveStyle.Render("▶ "+st.Name))
		default:
			parts = append(parts, stagePendingStyle.Render("· "+st.Name))
		}
	}
	return strings.Join(parts, "  ")
}

// renderRequest draws the pending prompt with its live countdown. Remaining
// below zero means the request never expires.
func renderRequest(req session.Request, remaining int) string {
	var b strings.Builder
	b.WriteString(promptStyle.Render(req.Message))
	if remaining >= 0 {
		b.WriteString(" ")
		b.WriteString(countdownStyle.Render(fmt.Sprintf("(%ds)", remaining)))
	}
	b.WriteString("\n")
	if req.Kind == session.RequestConfirmation {
		b.WriteString(dimStyle.Render("y approve · n reject"))
	} else if len(req.Choices) > 0 {
		b.WriteString(dimStyle.Render("choices: " + strings.Join(req.Choices, ", ") + " · type and press enter"))
	} else {
		b.WriteString(dimStyle.Render("type a response and press enter"))
	}
	return b.String()
}

func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}
