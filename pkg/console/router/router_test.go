package router

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
	"github.com/agentdeck-dev/agentdeck/pkg/console/session"
	"github.com/agentdeck-dev/agentdeck/pkg/console/stages"
	"github.com/agentdeck-dev/agentdeck/pkg/console/toolstate"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type recordingEmitter struct {
	mu   sync.Mutex
	sent []events.Envelope
}

func (e *recordingEmitter) Emit(env events.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, env)
	return nil
}

func (e *recordingEmitter) byEvent(event string) []events.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Envelope
	for _, env := range e.sent {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

type fixture struct {
	router  *Router
	store   *session.Store
	tools   *toolstate.Tracker
	plans   *stages.Tracker
	emitter *recordingEmitter
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   session.NewStore(logr.Discard()),
		tools:   toolstate.NewTracker(),
		plans:   stages.NewTracker(),
		emitter: &recordingEmitter{},
		clock:   testNow,
	}
	f.router = New(f.store, f.tools, f.plans, f.emitter, logr.Discard())
	f.router.now = func() time.Time { return f.clock }
	nextID := 0
	f.router.newID = func() string {
		nextID++
		return []string{"local-1", "local-2", "local-3"}[nextID-1]
	}
	f.router.Timers().SetClock(func() time.Time { return f.clock })
	return f
}

func jsonUnmarshal(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

func env(event, threadID string, payload any) events.Envelope {
	e := events.Envelope{Event: event, ThreadID: threadID}
	if payload != nil {
		e.Payload = events.MustPayload(payload)
	}
	return e
}

func TestRouter_ExplicitAddressing_CreatesOnDemand(t *testing.T) {
	f := newFixture(t)

	// Event for an unseen session id must not be dropped
	f.router.HandleEvent(env(events.EventNewText, "srv-1", events.TokenPayload{Delta: "early"}))

	s, ok := f.store.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, "early", s.StreamingText)
}

func TestRouter_ImplicitAddressing_TargetsActiveSession(t *testing.T) {
	f := newFixture(t)
	f.router.StartTask("", "legacy task", false)

	// Legacy daemon frames carry no thread id
	f.router.HandleEvent(env(events.EventNewText, "", events.TokenPayload{Delta: "answer"}))
	f.router.HandleEvent(env(events.EventTaskFinished, "", nil))

	s, ok := f.store.Active()
	require.True(t, ok)
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, "answer", s.Transcript[1].Content)
}

func TestRouter_StartTask_OptimisticAndEmitted(t *testing.T) {
	f := newFixture(t)

	id := f.router.StartTask("", "deploy the thing", false)
	assert.Equal(t, "local-1", id)

	// Local state reflects intent immediately
	s, ok := f.store.Get(id)
	require.True(t, ok)
	assert.True(t, s.IsRunning)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, "deploy the thing", s.Transcript[0].Content)
	assert.Equal(t, id, f.store.ActiveID())

	sent := f.emitter.byEvent(events.ActionStartTask)
	require.Len(t, sent, 1)
	assert.Equal(t, id, sent[0].ThreadID)
	assert.Equal(t, "deploy the thing", decodeStartTask(t, sent[0]).Task)
}

func decodeStartTask(t *testing.T, env events.Envelope) events.StartTaskPayload {
	t.Helper()
	var p events.StartTaskPayload
	require.NoError(t, jsonUnmarshal(env.Payload, &p))
	return p
}

func TestRouter_PlaceholderRename(t *testing.T) {
	f := newFixture(t)

	local := f.router.StartTask("", "new conversation", false)

	// First daemon event arrives under the server-assigned id
	f.router.HandleEvent(env(events.EventTaskStarted, "srv-42", nil))

	_, ok := f.store.Get(local)
	assert.False(t, ok)
	s, ok := f.store.Get("srv-42")
	require.True(t, ok)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, "new conversation", s.Transcript[0].Content)
	assert.Equal(t, "srv-42", f.store.ActiveID())
}

func TestRouter_PlaceholderRename_OnlyOnce(t *testing.T) {
	f := newFixture(t)

	f.router.StartTask("", "task", false)
	f.router.HandleEvent(env(events.EventTaskStarted, "srv-1", nil))

	// A second unknown id is a genuinely new session, not another rename
	f.router.HandleEvent(env(events.EventNewText, "srv-2", events.TokenPayload{Delta: "x"}))

	_, ok := f.store.Get("srv-1")
	assert.True(t, ok)
	s2, ok := f.store.Get("srv-2")
	require.True(t, ok)
	assert.Empty(t, s2.Transcript)
}

func TestRouter_StopTask_EmitsEvenForUnknownSession(t *testing.T) {
	f := newFixture(t)

	// Emit and local update are independent side effects
	f.router.StopTask("ghost")
	assert.Len(t, f.emitter.byEvent(events.ActionStopTask), 1)
}

func TestRouter_StopTask_Optimistic(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.StopTask(id)

	s, _ := f.store.Get(id)
	assert.False(t, s.IsRunning)

	// Late tokens still buffered after local stop
	f.router.HandleEvent(env(events.EventNewText, id, events.TokenPayload{Delta: "late"}))
	s, _ = f.store.Get(id)
	assert.Equal(t, "late", s.StreamingText)
}

func TestRouter_RequestLifecycle_UserResolution(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", Message: "rm -rf /", TimeoutSeconds: 10,
	}))

	left, tracked := f.router.Timers().Remaining(id, "r1")
	require.True(t, tracked)
	assert.Equal(t, 10, left)

	f.router.ResolveConfirmation(id, "r1", true)

	s, _ := f.store.Get(id)
	assert.Nil(t, s.PendingRequest)
	last := s.Transcript[len(s.Transcript)-1]
	assert.Equal(t, session.MessageResolution, last.Kind)
	assert.Equal(t, session.StatusApproved, last.RequestStatus)

	// Timer cancelled on resolution
	_, tracked = f.router.Timers().Remaining(id, "r1")
	assert.False(t, tracked)

	sent := f.emitter.byEvent(events.ActionResolveConfirmation)
	require.Len(t, sent, 1)
}

func TestRouter_RequestTimeout_EmitsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", Message: "go?", TimeoutSeconds: 10,
	}))

	// Scheduler fires; a duplicate callback must be a no-op
	f.clock = testNow.Add(11 * time.Second)
	f.router.onTimeout(id, "r1")
	f.router.onTimeout(id, "r1")

	s, _ := f.store.Get(id)
	assert.Nil(t, s.PendingRequest)

	var resolutions int
	for _, m := range s.Transcript {
		if m.Kind == session.MessageResolution && m.RequestID == "r1" {
			resolutions++
			assert.Equal(t, session.StatusTimeout, m.RequestStatus)
		}
	}
	assert.Equal(t, 1, resolutions)
	assert.Len(t, f.emitter.byEvent(events.ActionResolveConfirmation), 1)
}

func TestRouter_UserResolutionBeatsTimer(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", TimeoutSeconds: 10,
	}))
	f.router.ResolveConfirmation(id, "r1", false)

	// A straggling timer callback for the same id produces nothing
	f.router.onTimeout(id, "r1")

	s, _ := f.store.Get(id)
	var statuses []session.RequestStatus
	for _, m := range s.Transcript {
		if m.Kind == session.MessageResolution {
			statuses = append(statuses, m.RequestStatus)
		}
	}
	assert.Equal(t, []session.RequestStatus{session.StatusRejected}, statuses)
}

func TestRouter_DecisionResolution_CarriesValue(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestDecision, id, events.RequestPayload{
		RequestID: "r2", Message: "which env?", Choices: []string{"staging", "prod"},
	}))
	f.router.ResolveDecision(id, "r2", "staging")

	sent := f.emitter.byEvent(events.ActionResolveUserInput)
	require.Len(t, sent, 1)
	var p events.ResolvePayload
	require.NoError(t, jsonUnmarshal(sent[0].Payload, &p))
	assert.Equal(t, "r2", p.RequestID)
	assert.Equal(t, string(session.StatusSubmitted), p.Status)
	assert.Equal(t, "staging", p.Value)
}

func TestRouter_ReplacedRequest_TimerMovesOn(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", TimeoutSeconds: 10,
	}))
	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r2", TimeoutSeconds: 20,
	}))

	_, tracked := f.router.Timers().Remaining(id, "r1")
	assert.False(t, tracked)
	left, tracked := f.router.Timers().Remaining(id, "r2")
	require.True(t, tracked)
	assert.Equal(t, 20, left)
}

func TestRouter_ResetCancelsTimersAndCollaborators(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", TimeoutSeconds: 10,
	}))
	f.router.HandleEvent(env(events.EventToolStateUpdate, id, events.ToolStatePayload{
		RunID: "run-1", ToolName: "bash", Status: "running",
	}))

	f.router.ResetSession(id)

	s, _ := f.store.Get(id)
	assert.Empty(t, s.Transcript)
	assert.Nil(t, s.PendingRequest)
	_, tracked := f.router.Timers().Remaining(id, "r1")
	assert.False(t, tracked)
	assert.Empty(t, f.tools.List(id))
	assert.Len(t, f.emitter.byEvent(events.ActionResetSession), 1)
}

func TestRouter_DeleteSession_CancelsTimers(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)
	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", TimeoutSeconds: 10,
	}))

	f.router.DeleteSession(id)

	_, ok := f.store.Get(id)
	assert.False(t, ok)
	_, tracked := f.router.Timers().Remaining(id, "r1")
	assert.False(t, tracked)

	// No leaked timeout after deletion
	f.clock = testNow.Add(time.Minute)
	f.router.onTimeout(id, "r1")
	assert.Empty(t, f.emitter.byEvent(events.ActionResolveConfirmation))
}

func TestRouter_FatalError_KeepsTimerUntilReset(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventRequestConfirmation, id, events.RequestPayload{
		RequestID: "r1", TimeoutSeconds: 30,
	}))
	f.router.HandleEvent(env(events.EventFatalError, id, events.ErrorPayload{Message: "boom"}))

	// Request is moot but its timer survives the fatal error
	_, tracked := f.router.Timers().Remaining(id, "r1")
	assert.True(t, tracked)

	f.router.ResetSession(id)
	_, tracked = f.router.Timers().Remaining(id, "r1")
	assert.False(t, tracked)
}

func TestRouter_HistoryListAndDeleted(t *testing.T) {
	f := newFixture(t)

	f.router.HandleEvent(env(events.EventHistoryList, "", events.HistoryListPayload{
		Threads: []events.ThreadInfo{{ID: "t1", Title: "one"}, {ID: "t2", Title: "two"}},
	}))
	require.Len(t, f.store.Threads(), 2)

	f.router.HandleEvent(env(events.EventHistoryDeleted, "", events.HistoryDeletedPayload{ThreadID: "t1"}))
	threads := f.store.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "t2", threads[0].ID)
}

func TestRouter_HistoryLoaded_ReplacesToolState(t *testing.T) {
	f := newFixture(t)
	f.router.OpenThread("t1")

	f.router.HandleEvent(env(events.EventHistoryLoaded, "t1", events.HistoryLoadedPayload{
		Messages: []events.HistoryMessage{
			{Role: "user", Content: "restored"},
		},
		ToolStates: []events.ToolStatePayload{
			{RunID: "run-1", ToolName: "web_search", Status: "done"},
		},
	}))

	s, ok := f.store.Get("t1")
	require.True(t, ok)
	require.Len(t, s.Transcript, 1)
	runs := f.tools.List("t1")
	require.Len(t, runs, 1)
	assert.Equal(t, "Web Search", runs[0].DisplayName)
}

func TestRouter_StageEvents(t *testing.T) {
	f := newFixture(t)
	id := f.router.StartTask("", "task", false)

	f.router.HandleEvent(env(events.EventStagesBuilt, id, events.StagesPayload{
		Stages: []string{"plan", "implement"},
	}))
	f.router.HandleEvent(env(events.EventStageStarted, id, events.StagesPayload{Stage: "implement"}))

	plan := f.plans.Plan(id)
	require.Len(t, plan, 2)
	assert.Equal(t, stages.StatusCompleted, plan[0].Status)
	assert.Equal(t, stages.StatusActive, plan[1].Status)

	f.router.HandleEvent(env(events.EventStagesCompleted, id, nil))
	for _, st := range f.plans.Plan(id) {
		assert.Equal(t, stages.StatusCompleted, st.Status)
	}
}

func TestRouter_ConfigRoundTrip(t *testing.T) {
	f := newFixture(t)

	f.router.RequestConfig()
	assert.True(t, f.router.SettingsSnapshot().Pending)
	assert.Len(t, f.emitter.byEvent(events.ActionGetConfig), 1)

	f.router.HandleEvent(env(events.EventConfigData, "", events.ConfigDataPayload{
		Values: map[string]any{"model": "large"},
	}))
	settings := f.router.SettingsSnapshot()
	assert.False(t, settings.Pending)
	assert.Equal(t, "large", settings.Values["model"])

	f.router.UpdateConfig(map[string]any{"model": "small"})
	assert.True(t, f.router.SettingsSnapshot().Pending)
	f.router.HandleEvent(env(events.EventConfigUpdated, "", events.ConfigUpdatedPayload{Success: true}))
	assert.False(t, f.router.SettingsSnapshot().Pending)
}

func TestRouter_UnknownEvent_IsAbsorbed(t *testing.T) {
	f := newFixture(t)

	f.router.HandleEvent(env("telemetry_blob", "srv-7", nil))

	// Tolerated without conjuring a session
	_, ok := f.store.Get("srv-7")
	assert.False(t, ok)
	assert.Empty(t, f.store.List())
}

func TestRouter_SessionIsolation_Interleaved(t *testing.T) {
	f := newFixture(t)

	f.router.HandleEvent(env(events.EventUserMessage, "x", events.UserMessagePayload{Text: "x task"}))
	f.router.HandleEvent(env(events.EventUserMessage, "y", events.UserMessagePayload{Text: "y task"}))
	f.router.HandleEvent(env(events.EventNewText, "x", events.TokenPayload{Delta: "x answer"}))
	f.router.HandleEvent(env(events.EventNewText, "y", events.TokenPayload{Delta: "y answer"}))
	f.router.HandleEvent(env(events.EventTaskFinished, "x", nil))
	f.router.HandleEvent(env(events.EventTaskCancelled, "y", nil))

	x, _ := f.store.Get("x")
	y, _ := f.store.Get("y")

	require.Len(t, x.Transcript, 3)
	assert.Equal(t, "x answer", x.Transcript[1].Content)
	assert.Equal(t, session.StatusCompleted, x.Transcript[2].Status)

	require.Len(t, y.Transcript, 3)
	assert.Equal(t, "y answer", y.Transcript[1].Content)
	assert.Equal(t, session.StatusCancelled, y.Transcript[2].Status)
}
