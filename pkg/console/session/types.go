// Package session holds the multi-session state model of the console: the
// Session data structure, the pure Message Reducer that applies inbound wire
// events to it, and the Store that owns every committed Session.
package session

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a text Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind discriminates the Message variants.
type MessageKind string

const (
	MessageText       MessageKind = "text"
	MessageError      MessageKind = "error"
	MessageResolution MessageKind = "request-resolution"
	MessageStatus     MessageKind = "status"
)

// StatusVariant is the terminal outcome recorded by a status Message.
type StatusVariant string

const (
	StatusCompleted StatusVariant = "completed"
	StatusCancelled StatusVariant = "cancelled"
)

// RequestKind discriminates human-in-the-loop prompts.
type RequestKind string

const (
	RequestConfirmation RequestKind = "confirmation"
	RequestDecision     RequestKind = "decision"
)

// RequestStatus is the lifecycle state of a Request. Pending is the only
// non-terminal status.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusSubmitted RequestStatus = "submitted"
	StatusTimeout   RequestStatus = "timeout"
)

// Message is one committed transcript entry. Entries are immutable once
// appended; the streaming accumulators on Session are staging values and
// never part of the transcript until flushed.
type Message struct {
	Kind MessageKind `json:"kind"`

	// text variant
	Role      Role   `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	// request-resolution variant
	RequestID     string        `json:"request_id,omitempty"`
	RequestKind   RequestKind   `json:"request_kind,omitempty"`
	RequestStatus RequestStatus `json:"request_status,omitempty"`
	Prompt        string        `json:"prompt,omitempty"`

	// status variant
	Status StatusVariant `json:"status,omitempty"`
}

// Request is an outstanding confirmation or decision prompt raised by the
// remote agent. ExpiresAt is computed once from the server-supplied relative
// timeout when the Request is created and never recomputed; nil means the
// Request never expires.
type Request struct {
	RequestID string        `json:"request_id"`
	Kind      RequestKind   `json:"kind"`
	Message   string        `json:"message"`
	Choices   []string      `json:"choices,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Status    RequestStatus `json:"status"`
}

// Session is the unit of isolation for one agent task. All mutation goes
// through the reducer; callers outside this package treat values as
// read-only snapshots.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Transcript []Message `json:"transcript"`

	// Staging buffers for the in-flight assistant turn. Authoritative for
	// what the user currently sees being typed; never rendered as committed
	// history.
	StreamingText      string `json:"streaming_text"`
	StreamingReasoning string `json:"streaming_reasoning"`

	IsRunning     bool `json:"is_running"`
	HasFatalError bool `json:"has_fatal_error"`

	PendingRequest *Request `json:"pending_request,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty Session with the given id.
func New(id string, now time.Time) Session {
	return Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// clone returns a Session whose transcript and pending request are safe to
// mutate without aliasing the receiver.
func (s Session) clone() Session {
	out := s
	out.Transcript = make([]Message, len(s.Transcript), len(s.Transcript)+1)
	copy(out.Transcript, s.Transcript)
	if s.PendingRequest != nil {
		req := *s.PendingRequest
		out.PendingRequest = &req
	}
	return out
}

// maxTitleRunes bounds derived session titles.
const maxTitleRunes = 48

// DefaultTitle is shown for sessions that have no user utterance yet.
const DefaultTitle = "New task"

// DeriveTitle produces a display title from the first user utterance,
// truncated on a rune boundary.
func DeriveTitle(utterance string) string {
	title := strings.TrimSpace(strings.Join(strings.Fields(utterance), " "))
	if title == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleRunes-1]) + "…"
}
