// Package mockagent is a local development daemon that speaks the console's
// wire protocol: it plays scripted scenarios token by token, raises
// confirmation and decision prompts, and serves history from a sqlite
// thread store. It exists so the console can be demoed and exercised
// without a real agent backend.
package mockagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

// Options configures the mock daemon.
type Options struct {
	// ChunkDelay paces streamed deltas. Zero streams as fast as the socket
	// drains, which the tests rely on.
	ChunkDelay time.Duration
	// ChunkRunes bounds the size of one streamed delta.
	ChunkRunes int
}

func (o *Options) setDefaults() {
	if o.ChunkRunes <= 0 {
		o.ChunkRunes = 16
	}
}

// Server plays a Scenario to every console that connects.
type Server struct {
	store    *ThreadStore
	scenario *Scenario
	opts     Options
	upgrader websocket.Upgrader
	log      logr.Logger
}

// NewServer creates a Server.
func NewServer(store *ThreadStore, scenario *Scenario, opts Options, log logr.Logger) *Server {
	opts.setDefaults()
	if scenario == nil {
		scenario = DefaultScenario()
	}
	return &Server{
		store:    store,
		scenario: scenario,
		opts:     opts,
		log:      log,
	}
}

// Routes returns the HTTP surface: the websocket endpoint, a health check,
// and prometheus metrics.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// conn is one console connection. Writes are serialized with a mutex since
// the scripted player and the read loop both send.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex

	srv *Server

	stateMu sync.Mutex
	turn    int
	cancel  context.CancelFunc
	pending map[string]chan events.ResolvePayload
}

func (c *conn) send(env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(env)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.V(1).Info("upgrade failed", "error", err.Error())
		return
	}
	c := &conn{
		ws:      ws,
		srv:     s,
		pending: make(map[string]chan events.ResolvePayload),
	}
	defer func() {
		c.stopTurn()
		_ = ws.Close()
	}()

	ctx := r.Context()
	for {
		var env events.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		c.dispatch(ctx, env)
	}
}

func (c *conn) dispatch(ctx context.Context, env events.Envelope) {
	switch env.Event {
	case events.ActionStartTask:
		var p events.StartTaskPayload
		_ = json.Unmarshal(env.Payload, &p)
		threadID := env.ThreadID
		if threadID == "" {
			threadID = "thread-" + uuid.NewString()
		}
		c.startTurn(ctx, threadID, p.Task)

	case events.ActionStopTask:
		c.stopTurn()
		_ = c.send(events.Envelope{Event: events.EventTaskCancelled, ThreadID: env.ThreadID})

	case events.ActionResetSession:
		c.stopTurn()
		_ = c.send(events.Envelope{Event: events.EventReset, ThreadID: env.ThreadID})

	case events.ActionResolveConfirmation, events.ActionResolveUserInput:
		var p events.ResolvePayload
		_ = json.Unmarshal(env.Payload, &p)
		c.stateMu.Lock()
		resume, ok := c.pending[p.RequestID]
		delete(c.pending, p.RequestID)
		c.stateMu.Unlock()
		if ok {
			resume <- p
		}

	case events.ActionGetHistory:
		if env.ThreadID == "" {
			c.sendHistoryList()
		} else {
			c.sendHistoryLoaded(env.ThreadID)
		}

	case events.ActionDeleteHistory:
		var p events.DeleteHistoryPayload
		_ = json.Unmarshal(env.Payload, &p)
		if err := c.srv.store.DeleteThread(p.ThreadID); err != nil {
			c.srv.log.Error(err, "delete thread failed", "thread", p.ThreadID)
			return
		}
		_ = c.send(events.Envelope{
			Event:   events.EventHistoryDeleted,
			Payload: events.MustPayload(events.HistoryDeletedPayload{ThreadID: p.ThreadID}),
		})

	case events.ActionGetConfig:
		_ = c.send(events.Envelope{
			Event: events.EventConfigData,
			Payload: events.MustPayload(events.ConfigDataPayload{
				Values: map[string]any{"model": "mock-large", "temperature": 0.2},
			}),
		})

	case events.ActionUpdateConfig:
		_ = c.send(events.Envelope{
			Event:   events.EventConfigUpdated,
			Payload: events.MustPayload(events.ConfigUpdatedPayload{Success: true}),
		})

	default:
		c.srv.log.V(1).Info("ignoring unknown action", "action", env.Event)
	}
}

func (c *conn) sendHistoryList() {
	threads, err := c.srv.store.ListThreads()
	if err != nil {
		c.srv.log.Error(err, "list threads failed")
		return
	}
	_ = c.send(events.Envelope{
		Event:   events.EventHistoryList,
		Payload: events.MustPayload(events.HistoryListPayload{Threads: threads}),
	})
}

func (c *conn) sendHistoryLoaded(threadID string) {
	messages, err := c.srv.store.LoadThread(threadID)
	if err != nil {
		c.srv.log.Error(err, "load thread failed", "thread", threadID)
		return
	}
	_ = c.send(events.Envelope{
		Event:    events.EventHistoryLoaded,
		ThreadID: threadID,
		Payload:  events.MustPayload(events.HistoryLoadedPayload{Messages: messages}),
	})
}

// startTurn cancels any in-flight turn and plays the next scripted one.
func (c *conn) startTurn(ctx context.Context, threadID, task string) {
	c.stopTurn()

	c.stateMu.Lock()
	turn := Turn{Steps: []Step{{Type: StepText, Text: "Received: " + task}}}
	if c.turn < len(c.srv.scenario.Turns) {
		turn = c.srv.scenario.Turns[c.turn]
	}
	c.turn++
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stateMu.Unlock()

	go c.play(turnCtx, threadID, task, turn)
}

func (c *conn) stopTurn() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// play streams one scripted turn. The persisted records mirror what the
// console commits: the user utterance, reasoning-only fragments, answers.
func (c *conn) play(ctx context.Context, threadID, task string, turn Turn) {
	_ = c.send(events.Envelope{
		Event:    events.EventUserMessage,
		ThreadID: threadID,
		Payload:  events.MustPayload(events.UserMessagePayload{Text: task}),
	})
	_ = c.send(events.Envelope{Event: events.EventTaskStarted, ThreadID: threadID})

	records := []Record{{Role: "user", Content: task}}
	persist := func() {
		if err := c.srv.store.SaveTurn(threadID, deriveTitle(task), records); err != nil {
			c.srv.log.Error(err, "persist turn failed", "thread", threadID)
		}
	}

	var reasoning string
	for _, step := range turn.Steps {
		if ctx.Err() != nil {
			return
		}
		switch step.Type {
		case StepReasoning:
			c.stream(ctx, threadID, events.EventNewReasoning, step.Text)
			reasoning = step.Text

		case StepText:
			c.stream(ctx, threadID, events.EventNewText, step.Text)
			records = append(records, Record{Role: "assistant", Content: step.Text, Reasoning: reasoning})
			reasoning = ""

		case StepTool:
			_ = c.send(events.Envelope{
				Event:    events.EventToolStateUpdate,
				ThreadID: threadID,
				Payload: events.MustPayload(events.ToolStatePayload{
					RunID:    step.RunID,
					ToolName: step.Name,
					Status:   step.Status,
					Result:   step.Result,
				}),
			})

		case StepStages:
			_ = c.send(events.Envelope{
				Event:    events.EventStagesBuilt,
				ThreadID: threadID,
				Payload:  events.MustPayload(events.StagesPayload{Stages: step.Stages}),
			})

		case StepStage:
			_ = c.send(events.Envelope{
				Event:    events.EventStageStarted,
				ThreadID: threadID,
				Payload:  events.MustPayload(events.StagesPayload{Stage: step.Stage}),
			})

		case StepError:
			persist()
			_ = c.send(events.Envelope{
				Event:    events.EventFatalError,
				ThreadID: threadID,
				Payload:  events.MustPayload(events.ErrorPayload{Message: step.Text}),
			})
			return

		case StepConfirm, StepDecide:
			resolution, ok := c.raiseRequest(ctx, threadID, step)
			if !ok {
				return
			}
			if resolution.Status == "rejected" || resolution.Status == "timeout" {
				persist()
				_ = c.send(events.Envelope{Event: events.EventTaskCancelled, ThreadID: threadID})
				return
			}
		}
	}

	persist()
	_ = c.send(events.Envelope{Event: events.EventStagesCompleted, ThreadID: threadID})
	_ = c.send(events.Envelope{Event: events.EventTaskFinished, ThreadID: threadID})
}

// raiseRequest emits a confirmation or decision prompt and blocks until the
// console resolves it, the scripted timeout passes, or the turn is stopped.
func (c *conn) raiseRequest(ctx context.Context, threadID string, step Step) (events.ResolvePayload, bool) {
	event := events.EventRequestConfirmation
	if step.Type == StepDecide {
		event = events.EventRequestDecision
	}

	resume := make(chan events.ResolvePayload, 1)
	c.stateMu.Lock()
	c.pending[step.RequestID] = resume
	c.stateMu.Unlock()

	_ = c.send(events.Envelope{
		Event:    event,
		ThreadID: threadID,
		Payload: events.MustPayload(events.RequestPayload{
			RequestID:      step.RequestID,
			Message:        step.Message,
			Choices:        step.Choices,
			TimeoutSeconds: step.Timeout,
		}),
	})

	var expiry <-chan time.Time
	if step.Timeout > 0 {
		// A grace period past the client deadline: the console times the
		// request out on its own and sends the resolution.
		expiry = time.After(time.Duration(step.Timeout*float64(time.Second)) + 5*time.Second)
	}

	select {
	case <-ctx.Done():
		return events.ResolvePayload{}, false
	case <-expiry:
		c.stateMu.Lock()
		delete(c.pending, step.RequestID)
		c.stateMu.Unlock()
		return events.ResolvePayload{RequestID: step.RequestID, Status: "timeout"}, true
	case p := <-resume:
		return p, true
	}
}

// stream sends text as a sequence of delta events.
func (c *conn) stream(ctx context.Context, threadID, event, text string) {
	runes := []rune(text)
	for start := 0; start < len(runes); start += c.srv.opts.ChunkRunes {
		if ctx.Err() != nil {
			return
		}
		end := start + c.srv.opts.ChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		_ = c.send(events.Envelope{
			Event:    event,
			ThreadID: threadID,
			Payload:  events.MustPayload(events.TokenPayload{Delta: string(runes[start:end])}),
		})
		if c.srv.opts.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.srv.opts.ChunkDelay):
			}
		}
	}
}

func deriveTitle(task string) string {
	const max = 48
	runes := []rune(task)
	if len(runes) <= max {
		return task
	}
	return string(runes[:max-1]) + "…"
}
