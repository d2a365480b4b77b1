// Package router binds channel events to reducer invocations against the
// correct session in the store, and carries user actions the other way onto
// the wire.
package router

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
	"github.com/agentdeck-dev/agentdeck/pkg/console/session"
	"github.com/agentdeck-dev/agentdeck/pkg/console/stages"
	"github.com/agentdeck-dev/agentdeck/pkg/console/timer"
	"github.com/agentdeck-dev/agentdeck/pkg/console/toolstate"
)

// Emitter sends one envelope to the remote agent, fire-and-forget. The
// channel adapter implements it.
type Emitter interface {
	Emit(env events.Envelope) error
}

// Settings mirrors the daemon's config surface: pending until a matching
// reply event arrives, never a blocking call.
type Settings struct {
	Values    map[string]any
	Pending   bool
	LastError string
}

// Router serializes all state transitions. Inbound events and user actions
// both acquire the router mutex, so each is fully processed before the next
// and read-modify-write against the store can never interleave for one
// session. Events for different sessions carry no cross-session ordering
// requirement, so one serialization point is enough.
type Router struct {
	mu sync.Mutex

	store    *session.Store
	tools    *toolstate.Tracker
	stagePlan *stages.Tracker
	emitter  Emitter
	timers   *timer.Scheduler

	// placeholder session id of the most recent locally started task that
	// has not yet seen a daemon event; reconciled against the first unknown
	// server-assigned thread id
	awaitingServerID string

	settings Settings

	now   func() time.Time
	newID func() string
	log   logr.Logger
}

// New creates a Router wired to the given collaborators. The returned
// Router owns a timer.Scheduler whose timeouts feed back into the request
// resolution path; run it with Timers().Run.
func New(store *session.Store, tools *toolstate.Tracker, stagePlan *stages.Tracker, emitter Emitter, log logr.Logger) *Router {
	r := &Router{
		store:     store,
		tools:     tools,
		stagePlan: stagePlan,
		emitter:   emitter,
		now:       time.Now,
		newID:     func() string { return "local-" + uuid.NewString() },
		log:       log,
	}
	r.timers = timer.NewScheduler(r.onTimeout, log.WithName("timers"))
	return r
}

// Timers exposes the scheduler for running and for countdown reads.
func (r *Router) Timers() *timer.Scheduler {
	return r.timers
}

// HandleEvent applies one inbound envelope. Bind it to the channel
// adapter's subscription point exactly once per connection lifetime.
func (r *Router) HandleEvent(env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Event {
	case events.EventHistoryList:
		r.store.SetThreads(events.DecodeHistoryList(env.Payload).Threads)
	case events.EventHistoryDeleted:
		r.store.RemoveThread(events.DecodeHistoryDeleted(env.Payload).ThreadID)
	case events.EventConfigData:
		r.settings = Settings{Values: events.DecodeConfigData(env.Payload).Values}
	case events.EventConfigUpdated:
		p := events.DecodeConfigUpdated(env.Payload)
		r.settings.Pending = false
		r.settings.LastError = p.Error
	case events.EventToolStateUpdate:
		p := events.DecodeToolState(env.Payload)
		r.tools.Upsert(r.resolveSessionID(env), toolstate.Run{
			RunID:     p.RunID,
			ToolName:  p.ToolName,
			Status:    p.Status,
			Args:      p.Args,
			Result:    p.Result,
			UpdatedAt: r.now(),
		})
	case events.EventStagesBuilt:
		r.stagePlan.Build(r.resolveSessionID(env), events.DecodeStages(env.Payload).Stages)
	case events.EventStageStarted:
		r.stagePlan.Start(r.resolveSessionID(env), events.DecodeStages(env.Payload).Stage)
	case events.EventStagesCompleted:
		r.stagePlan.CompleteAll(r.resolveSessionID(env))
	case events.EventStagesEdited:
		r.stagePlan.Edit(r.resolveSessionID(env), events.DecodeStages(env.Payload).Stages)
	default:
		if !session.Handles(env.Event) {
			// Unknown event kinds are tolerated, not surfaced; they must not
			// conjure sessions either.
			r.log.V(1).Info("ignoring unknown event", "event", env.Event)
			return
		}
		r.reduceSessionEvent(env)
	}
}

// resolveSessionID maps an envelope to its target session, creating the
// session on demand. Explicit addressing wins; an empty thread id targets
// the active session (legacy single-session mode).
func (r *Router) resolveSessionID(env events.Envelope) string {
	now := r.now()
	if env.ThreadID != "" {
		if _, known := r.store.Get(env.ThreadID); !known && r.awaitingServerID != "" {
			// First daemon event for a locally started task: adopt the
			// server-assigned id in place, keeping transcript and order.
			if r.store.Rename(r.awaitingServerID, env.ThreadID) {
				r.awaitingServerID = ""
				return env.ThreadID
			}
		}
		r.store.GetOrCreate(env.ThreadID, now)
		if env.ThreadID == r.awaitingServerID {
			r.awaitingServerID = ""
		}
		return env.ThreadID
	}
	if id := r.store.ActiveID(); id != "" {
		return id
	}
	id := r.newID()
	r.store.GetOrCreate(id, now)
	return id
}

func (r *Router) reduceSessionEvent(env events.Envelope) {
	id := r.resolveSessionID(env)
	now := r.now()
	before := r.store.GetOrCreate(id, now)
	after := session.Reduce(before, env, now)

	r.syncRequestTimer(id, before.PendingRequest, after.PendingRequest)
	if env.Event == events.EventReset {
		r.timers.CancelSession(id)
		r.tools.Clear(id)
		r.stagePlan.Clear(id)
	}
	r.store.Put(after)

	if env.Event == events.EventHistoryLoaded {
		p := events.DecodeHistoryLoaded(env.Payload)
		runs := make([]toolstate.Run, 0, len(p.ToolStates))
		for _, ts := range p.ToolStates {
			runs = append(runs, toolstate.Run{
				RunID:    ts.RunID,
				ToolName: ts.ToolName,
				Status:   ts.Status,
				Args:     ts.Args,
				Result:   ts.Result,
			})
		}
		r.tools.Replace(id, runs)
	}
}

// syncRequestTimer keeps the scheduler aligned with the pending-request
// slot: a replaced request loses its timer, a new request with a deadline
// gains one.
func (r *Router) syncRequestTimer(sessionID string, before, after *session.Request) {
	if before != nil && (after == nil || after.RequestID != before.RequestID) {
		r.timers.Cancel(sessionID, before.RequestID)
	}
	if after != nil && (before == nil || before.RequestID != after.RequestID) && after.ExpiresAt != nil {
		r.timers.Track(sessionID, after.RequestID, *after.ExpiresAt)
	}
}

// StartTask starts (or replies to) a task. An empty sessionID starts a
// brand-new conversation under a locally assigned placeholder id, later
// reconciled with the server-assigned one. Returns the session id the task
// runs under. Local state update and wire emit are independent side effects:
// the emit is attempted regardless.
func (r *Router) StartTask(sessionID, task string, isReply bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	if sessionID == "" {
		sessionID = r.newID()
		r.awaitingServerID = sessionID
	}
	s := r.store.GetOrCreate(sessionID, now)
	r.store.Put(session.StartTask(s, task, now))
	r.store.SetActive(sessionID)

	r.emit(events.Envelope{
		Event:    events.ActionStartTask,
		ThreadID: sessionID,
		Payload:  events.MustPayload(events.StartTaskPayload{Task: task, IsReply: isReply}),
	})
	return sessionID
}

// StopTask advises the daemon to stop and optimistically marks the session
// stopped. The daemon may still finish a committed turn; late tokens are
// buffered, not dropped.
func (r *Router) StopTask(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.store.Get(sessionID); ok {
		r.store.Put(session.StopTask(s, r.now()))
	}
	r.emit(events.Envelope{Event: events.ActionStopTask, ThreadID: sessionID})
}

// ResetSession clears a session back to its start state and tells the
// daemon to do the same. Any outstanding request timer is cancelled.
func (r *Router) ResetSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reduceSessionEvent(events.Envelope{Event: events.EventReset, ThreadID: sessionID})
	r.emit(events.Envelope{Event: events.ActionResetSession, ThreadID: sessionID})
}

// DeleteSession removes a session locally. Session identity is never
// reused; timers die with the session.
func (r *Router) DeleteSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timers.CancelSession(sessionID)
	r.tools.Clear(sessionID)
	r.stagePlan.Clear(sessionID)
	r.store.Delete(sessionID)
	if r.awaitingServerID == sessionID {
		r.awaitingServerID = ""
	}
}

// ResolveConfirmation resolves a pending confirmation by user choice.
func (r *Router) ResolveConfirmation(sessionID, requestID string, approved bool) {
	status := session.StatusApproved
	if !approved {
		status = session.StatusRejected
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveRequest(sessionID, requestID, status, "")
}

// ResolveDecision resolves a pending decision with the user's answer.
func (r *Router) ResolveDecision(sessionID, requestID, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveRequest(sessionID, requestID, session.StatusSubmitted, value)
}

// onTimeout is the scheduler callback: synthesize a terminal timeout
// resolution for the request, exactly once.
func (r *Router) onTimeout(sessionID, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveRequest(sessionID, requestID, session.StatusTimeout, "")
}

// resolveRequest applies the resolution locally and forwards it over the
// channel exactly once. The reducer's pending-request guard makes racing
// user and timer paths safe: only the first resolution applies and emits.
func (r *Router) resolveRequest(sessionID, requestID string, status session.RequestStatus, value string) {
	s, ok := r.store.Get(sessionID)
	if !ok {
		return
	}
	kind := session.RequestConfirmation
	if s.PendingRequest != nil {
		kind = s.PendingRequest.Kind
	}

	next, resolved := session.ResolveRequest(s, requestID, status, r.now())
	if !resolved {
		return
	}
	r.timers.Cancel(sessionID, requestID)
	r.store.Put(next)

	action := events.ActionResolveConfirmation
	if kind == session.RequestDecision {
		action = events.ActionResolveUserInput
	}
	r.emit(events.Envelope{
		Event:    action,
		ThreadID: sessionID,
		Payload: events.MustPayload(events.ResolvePayload{
			RequestID: requestID,
			Status:    string(status),
			Value:     value,
		}),
	})
}

// RequestHistory asks the daemon for its stored thread list.
func (r *Router) RequestHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(events.Envelope{Event: events.ActionGetHistory})
}

// OpenThread loads a stored thread into a session with the thread's id and
// makes it active. The transcript arrives as a history_loaded event.
func (r *Router) OpenThread(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.GetOrCreate(threadID, r.now())
	r.store.SetActive(threadID)
	r.emit(events.Envelope{Event: events.ActionGetHistory, ThreadID: threadID})
}

// DeleteThread removes a stored thread on the daemon.
func (r *Router) DeleteThread(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(events.Envelope{
		Event:   events.ActionDeleteHistory,
		Payload: events.MustPayload(events.DeleteHistoryPayload{ThreadID: threadID}),
	})
}

// RequestConfig asks for the daemon's settings blob.
func (r *Router) RequestConfig() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.Pending = true
	r.emit(events.Envelope{Event: events.ActionGetConfig})
}

// UpdateConfig pushes new settings to the daemon. The reply arrives as a
// config_updated event.
func (r *Router) UpdateConfig(values map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.Pending = true
	r.emit(events.Envelope{
		Event:   events.ActionUpdateConfig,
		Payload: events.MustPayload(values),
	})
}

// SettingsSnapshot returns the current settings surface.
func (r *Router) SettingsSnapshot() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func (r *Router) emit(env events.Envelope) {
	if err := r.emitter.Emit(env); err != nil {
		// Emits are advisory; the session state already reflects intent.
		r.log.Error(err, "emit failed", "action", env.Event, "session", env.ThreadID)
	}
}
