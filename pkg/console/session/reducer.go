package session

import (
	"strings"
	"time"

	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

// handlerFunc applies one inbound event to a session snapshot and returns
// the next snapshot.
type handlerFunc func(s Session, env events.Envelope, now time.Time) Session

// handlers maps every session-scoped inbound event kind to its transition.
// Events absent from the table (history_list, config_data, ...) do not touch
// session state and reduce to the identity.
var handlers = map[string]handlerFunc{
	events.EventUserMessage:         reduceUserMessage,
	events.EventNewText:             reduceNewText,
	events.EventNewReasoning:        reduceNewReasoning,
	events.EventTaskStarted:         reduceTaskStarted,
	events.EventTaskFinished:        reduceTaskFinished,
	events.EventTaskCancelled:       reduceTaskCancelled,
	events.EventFatalError:          reduceFatalError,
	events.EventToolError:           reduceFatalError,
	events.EventReset:               reduceReset,
	events.EventRequestConfirmation: reduceRequestConfirmation,
	events.EventRequestDecision:     reduceRequestDecision,
	events.EventHistoryLoaded:       reduceHistoryLoaded,
}

// Handles reports whether an event kind is a session-scoped transition.
func Handles(event string) bool {
	_, ok := handlers[event]
	return ok
}

// Reduce is the pure transition function of the session core. It is total:
// every event kind, known or not, yields a valid next session, and it is
// safe to call with a default/empty session for events that implicitly
// create one.
func Reduce(s Session, env events.Envelope, now time.Time) Session {
	handler, ok := handlers[env.Event]
	if !ok {
		return s
	}
	next := handler(s, env, now)
	next.UpdatedAt = now
	return next
}

func reduceUserMessage(s Session, env events.Envelope, _ time.Time) Session {
	p := events.DecodeUserMessage(env.Payload)

	next := s.clone()
	// The daemon echoes user messages the console already appended
	// optimistically on start_task. Skip the duplicate so a replayed or
	// resumed stream stays safe.
	if n := len(next.Transcript); n > 0 {
		last := next.Transcript[n-1]
		if last.Kind == MessageText && last.Role == RoleUser && last.Content == p.Text {
			next.IsRunning = true
			next.StreamingText = ""
			next.StreamingReasoning = ""
			return next
		}
	}
	next.Transcript = append(next.Transcript, Message{
		Kind:    MessageText,
		Role:    RoleUser,
		Content: p.Text,
	})
	next.IsRunning = true
	next.StreamingText = ""
	next.StreamingReasoning = ""
	if next.Title == "" || next.Title == DefaultTitle {
		next.Title = DeriveTitle(p.Text)
	}
	return next
}

func reduceNewText(s Session, env events.Envelope, _ time.Time) Session {
	// Accepted even when the session was already stopped locally: the
	// daemon may have committed to finishing a turn before it saw stop_task,
	// and that content must not be lost.
	s.StreamingText += events.DecodeToken(env.Payload).Delta
	return s
}

func reduceNewReasoning(s Session, env events.Envelope, _ time.Time) Session {
	s.StreamingReasoning += events.DecodeToken(env.Payload).Delta
	return s
}

func reduceTaskStarted(s Session, _ events.Envelope, _ time.Time) Session {
	s.IsRunning = true
	return s
}

func reduceTaskFinished(s Session, _ events.Envelope, _ time.Time) Session {
	next := flush(s)
	next.Transcript = append(next.Transcript, Message{
		Kind:   MessageStatus,
		Status: StatusCompleted,
	})
	next.IsRunning = false
	return next
}

func reduceTaskCancelled(s Session, _ events.Envelope, _ time.Time) Session {
	next := flush(s)
	next.Transcript = append(next.Transcript, Message{
		Kind:   MessageStatus,
		Status: StatusCancelled,
	})
	next.IsRunning = false
	return next
}

func reduceFatalError(s Session, env events.Envelope, _ time.Time) Session {
	p := events.DecodeError(env.Payload)

	next := flush(s)
	next.Transcript = append(next.Transcript, Message{
		Kind:    MessageError,
		Content: p.Message,
	})
	next.HasFatalError = true
	next.IsRunning = false
	// An outstanding request becomes moot but is not auto-resolved; its
	// timer keeps running until the session is reset or deleted.
	return next
}

func reduceReset(s Session, _ events.Envelope, _ time.Time) Session {
	next := s
	next.Transcript = nil
	next.StreamingText = ""
	next.StreamingReasoning = ""
	next.PendingRequest = nil
	next.IsRunning = false
	next.HasFatalError = false
	next.Title = ""
	// ID and CreatedAt survive a reset.
	return next
}

func reduceRequestConfirmation(s Session, env events.Envelope, now time.Time) Session {
	return attachRequest(s, env, now, RequestConfirmation)
}

func reduceRequestDecision(s Session, env events.Envelope, now time.Time) Session {
	return attachRequest(s, env, now, RequestDecision)
}

func attachRequest(s Session, env events.Envelope, now time.Time, kind RequestKind) Session {
	p := events.DecodeRequest(env.Payload)

	// Flush before attaching so prompt ordering relative to surrounding
	// streamed text is preserved.
	next := flush(s)
	// Replayed duplicate: keep the original deadline. expiresAt is computed
	// once and never recomputed.
	if prev := next.PendingRequest; prev != nil && prev.RequestID == p.RequestID {
		return next
	}
	req := &Request{
		RequestID: p.RequestID,
		Kind:      kind,
		Message:   p.Message,
		Choices:   p.Choices,
		Status:    StatusPending,
	}
	if p.TimeoutSeconds > 0 {
		deadline := now.Add(time.Duration(p.TimeoutSeconds * float64(time.Second)))
		req.ExpiresAt = &deadline
	}
	next.PendingRequest = req
	return next
}

func reduceHistoryLoaded(s Session, env events.Envelope, _ time.Time) Session {
	p := events.DecodeHistoryLoaded(env.Payload)

	next := flush(s)
	next.Transcript = NormalizeHistory(p.Messages)
	next.StreamingText = ""
	next.StreamingReasoning = ""
	if next.Title == "" || next.Title == DefaultTitle {
		for _, m := range next.Transcript {
			if m.Kind == MessageText && m.Role == RoleUser && m.Content != "" {
				next.Title = DeriveTitle(m.Content)
				break
			}
		}
	}
	return next
}

// flush commits the streaming accumulators into one transcript Message and
// clears them. Idempotent: if the last transcript entry already carries
// identical content and reasoning, no duplicate is appended. A reasoning-only
// accumulator still flushes, as a Message with empty content.
func flush(s Session) Session {
	next := s.clone()
	text, reasoning := next.StreamingText, next.StreamingReasoning
	next.StreamingText = ""
	next.StreamingReasoning = ""
	if text == "" && reasoning == "" {
		return next
	}
	if n := len(next.Transcript); n > 0 {
		last := next.Transcript[n-1]
		if last.Kind == MessageText && last.Role == RoleAssistant &&
			last.Content == text && last.Reasoning == reasoning {
			return next
		}
	}
	next.Transcript = append(next.Transcript, Message{
		Kind:      MessageText,
		Role:      RoleAssistant,
		Content:   text,
		Reasoning: reasoning,
	})
	return next
}

// NormalizeHistory converts a wire history batch into transcript Messages.
// Reasoning-only entries preceding an answer are folded into that answer's
// reasoning, joined with blank lines; a trailing reasoning-only run is kept
// as a dedicated Message with empty content so it survives a reload.
func NormalizeHistory(messages []events.HistoryMessage) []Message {
	var out []Message
	var pendingReasoning []string

	flushReasoning := func(own string) string {
		fragments := pendingReasoning
		pendingReasoning = nil
		if own != "" {
			fragments = append(fragments, own)
		}
		return strings.Join(fragments, "\n\n")
	}

	for _, m := range messages {
		role := Role(m.Role)
		if role != RoleUser {
			role = RoleAssistant
		}
		if role == RoleAssistant && m.Content == "" && m.Reasoning != "" {
			pendingReasoning = append(pendingReasoning, m.Reasoning)
			continue
		}
		msg := Message{
			Kind:    MessageText,
			Role:    role,
			Content: m.Content,
		}
		if role == RoleAssistant {
			msg.Reasoning = flushReasoning(m.Reasoning)
		}
		out = append(out, msg)
	}
	if len(pendingReasoning) > 0 {
		out = append(out, Message{
			Kind:      MessageText,
			Role:      RoleAssistant,
			Reasoning: flushReasoning(""),
		})
	}
	return out
}

// StartTask applies the optimistic local transition for a user-initiated
// task start: append the user utterance, mark the session running, clear the
// staging buffers.
func StartTask(s Session, task string, now time.Time) Session {
	env := events.Envelope{
		Event:   events.EventUserMessage,
		Payload: events.MustPayload(events.UserMessagePayload{Text: task}),
	}
	return Reduce(s, env, now)
}

// StopTask applies the optimistic local transition for stop_task. The wire
// emit is an independent side effect handled by the caller.
func StopTask(s Session, now time.Time) Session {
	s.IsRunning = false
	s.UpdatedAt = now
	return s
}

// ResolveRequest terminates the pending request with the given status,
// records a request-resolution Message, and clears the pending slot. It
// reports false when the session has no pending request with that id, which
// makes user and timer resolution paths race-free: whichever applies first
// wins and the loser is a no-op.
func ResolveRequest(s Session, requestID string, status RequestStatus, now time.Time) (Session, bool) {
	if s.PendingRequest == nil || s.PendingRequest.RequestID != requestID {
		return s, false
	}
	if s.PendingRequest.Status != StatusPending {
		return s, false
	}
	next := flush(s)
	req := next.PendingRequest
	next.Transcript = append(next.Transcript, Message{
		Kind:          MessageResolution,
		RequestID:     req.RequestID,
		RequestKind:   req.Kind,
		RequestStatus: status,
		Prompt:        req.Message,
	})
	next.PendingRequest = nil
	next.UpdatedAt = now
	return next, true
}
