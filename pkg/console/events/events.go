// Package events defines the wire vocabulary spoken between the console and
// the remote agent daemon: inbound event kinds, outbound action kinds, and
// the JSON envelope both travel in.
//
// Inbound payloads are treated as untrusted and partial. Every decode helper
// defaults missing or malformed fields instead of returning an error, because
// the console must never fail on a daemon output variance.
package events

import (
	"encoding/json"
	"time"
)

// Envelope is one frame on the channel. ThreadID is empty in legacy
// single-session mode; multi-session daemons set it on every frame.
type Envelope struct {
	Event    string          `json:"event"`
	ThreadID string          `json:"thread_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Inbound event kinds
const (
	EventUserMessage         = "user_message"
	EventNewText             = "llm_new_text"
	EventNewReasoning        = "llm_new_reasoning"
	EventTaskStarted         = "task_started"
	EventTaskFinished        = "task_finished"
	EventTaskCancelled       = "task_cancelled"
	EventFatalError          = "fatal_error"
	EventToolError           = "tool_error"
	EventReset               = "reset"
	EventRequestConfirmation = "request_confirmation"
	EventRequestDecision     = "request_user_decision"
	EventHistoryList         = "history_list"
	EventHistoryLoaded       = "history_loaded"
	EventHistoryDeleted      = "history_deleted"
	EventToolStateUpdate     = "tool_state_update"
	EventStagesBuilt         = "stages_built"
	EventStageStarted        = "stage_started"
	EventStagesCompleted     = "stages_completed"
	EventStagesEdited        = "stages_edited"
	EventConfigData          = "config_data"
	EventConfigUpdated       = "config_updated"
)

// Outbound action kinds
const (
	ActionStartTask           = "start_task"
	ActionStopTask            = "stop_task"
	ActionResetSession        = "reset_session"
	ActionResolveConfirmation = "resolve_confirmation"
	ActionResolveUserInput    = "resolve_user_input"
	ActionGetHistory          = "get_history"
	ActionDeleteHistory       = "delete_history"
	ActionGetConfig           = "get_config"
	ActionUpdateConfig        = "update_config"
)

// UserMessagePayload carries a user utterance echoed by the daemon.
type UserMessagePayload struct {
	Text string `json:"text"`
}

// TokenPayload carries one streamed text or reasoning fragment.
type TokenPayload struct {
	Delta string `json:"delta"`
}

// ErrorPayload carries a fatal or tool error description.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RequestPayload carries a confirmation or decision prompt. TimeoutSeconds
// of zero means the request never expires.
type RequestPayload struct {
	RequestID      string   `json:"request_id"`
	Message        string   `json:"message"`
	Choices        []string `json:"choices,omitempty"`
	TimeoutSeconds float64  `json:"timeout,omitempty"`
}

// ThreadInfo is one entry of a history_list payload.
type ThreadInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// HistoryListPayload enumerates stored threads on the daemon.
type HistoryListPayload struct {
	Threads []ThreadInfo `json:"threads"`
}

// HistoryMessage is one transcript entry of a history_loaded payload.
type HistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// HistoryLoadedPayload wholesale-replaces a session's transcript and tool
// state.
type HistoryLoadedPayload struct {
	Messages   []HistoryMessage `json:"messages"`
	ToolStates []ToolStatePayload `json:"tool_states,omitempty"`
}

// HistoryDeletedPayload confirms removal of a stored thread.
type HistoryDeletedPayload struct {
	ThreadID string `json:"thread_id"`
}

// ToolStatePayload carries a tool execution progress update, upserted by
// RunID.
type ToolStatePayload struct {
	RunID    string         `json:"run_id"`
	ToolName string         `json:"tool_name"`
	Status   string         `json:"status"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`
}

// StagesPayload carries a stage-plan update.
type StagesPayload struct {
	Stages []string `json:"stages,omitempty"`
	Stage  string   `json:"stage,omitempty"`
}

// ConfigDataPayload carries the daemon's current settings blob.
type ConfigDataPayload struct {
	Values map[string]any `json:"values"`
}

// ConfigUpdatedPayload acknowledges an update_config action.
type ConfigUpdatedPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StartTaskPayload is the outbound payload for start_task.
type StartTaskPayload struct {
	Task    string `json:"task"`
	IsReply bool   `json:"is_reply,omitempty"`
}

// ResolvePayload is the outbound payload for resolve_confirmation and
// resolve_user_input.
type ResolvePayload struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Value     string `json:"value,omitempty"`
}

// DeleteHistoryPayload is the outbound payload for delete_history.
type DeleteHistoryPayload struct {
	ThreadID string `json:"thread_id"`
}

func decode(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	// Malformed payloads are absorbed: the zero value stands in.
	_ = json.Unmarshal(raw, v)
}

// DecodeUserMessage decodes a user_message payload.
func DecodeUserMessage(raw json.RawMessage) UserMessagePayload {
	var p UserMessagePayload
	decode(raw, &p)
	return p
}

// DecodeToken decodes an llm_new_text or llm_new_reasoning payload.
func DecodeToken(raw json.RawMessage) TokenPayload {
	var p TokenPayload
	decode(raw, &p)
	return p
}

// DecodeError decodes a fatal_error or tool_error payload.
func DecodeError(raw json.RawMessage) ErrorPayload {
	var p ErrorPayload
	decode(raw, &p)
	return p
}

// DecodeRequest decodes a request_confirmation or request_user_decision
// payload.
func DecodeRequest(raw json.RawMessage) RequestPayload {
	var p RequestPayload
	decode(raw, &p)
	if p.TimeoutSeconds < 0 {
		p.TimeoutSeconds = 0
	}
	return p
}

// DecodeHistoryList decodes a history_list payload.
func DecodeHistoryList(raw json.RawMessage) HistoryListPayload {
	var p HistoryListPayload
	decode(raw, &p)
	return p
}

// DecodeHistoryLoaded decodes a history_loaded payload.
func DecodeHistoryLoaded(raw json.RawMessage) HistoryLoadedPayload {
	var p HistoryLoadedPayload
	decode(raw, &p)
	return p
}

// DecodeHistoryDeleted decodes a history_deleted payload.
func DecodeHistoryDeleted(raw json.RawMessage) HistoryDeletedPayload {
	var p HistoryDeletedPayload
	decode(raw, &p)
	return p
}

// DecodeToolState decodes a tool_state_update payload.
func DecodeToolState(raw json.RawMessage) ToolStatePayload {
	var p ToolStatePayload
	decode(raw, &p)
	return p
}

// DecodeStages decodes any of the stages_* payloads.
func DecodeStages(raw json.RawMessage) StagesPayload {
	var p StagesPayload
	decode(raw, &p)
	return p
}

// DecodeConfigData decodes a config_data payload.
func DecodeConfigData(raw json.RawMessage) ConfigDataPayload {
	var p ConfigDataPayload
	decode(raw, &p)
	return p
}

// DecodeConfigUpdated decodes a config_updated payload.
func DecodeConfigUpdated(raw json.RawMessage) ConfigUpdatedPayload {
	var p ConfigUpdatedPayload
	decode(raw, &p)
	return p
}

// MustPayload marshals an outbound payload into a RawMessage. Outbound
// payload types are plain structs, so marshalling cannot fail at runtime.
func MustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
