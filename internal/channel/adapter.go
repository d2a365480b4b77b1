// Package channel owns the bidirectional connection to the remote agent
// daemon: one websocket, a read loop feeding the subscribed handler, a write
// pump draining fire-and-forget emits, and the reconnect lifecycle.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	apperrors "github.com/agentdeck-dev/agentdeck/pkg/console/errors"
	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

// State is the connectivity surface shown by the presentation layer. It
// never mutates session content.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options configures the adapter.
type Options struct {
	// URL of the daemon websocket endpoint.
	URL string
	// InitialBackoff before the first reconnect attempt; doubles per failure
	// up to MaxBackoff.
	InitialBackoff time.Duration
	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
	// EmitBuffer bounds the outbound queue. Emits beyond it are dropped and
	// counted, never blocked on.
	EmitBuffer int
}

func (o *Options) setDefaults() {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.EmitBuffer <= 0 {
		o.EmitBuffer = 64
	}
}

// Adapter is the channel adapter. Create with New, bind the handler with
// Subscribe exactly once, then Run.
type Adapter struct {
	opts    Options
	dialer  *websocket.Dialer
	metrics *Metrics
	log     logr.Logger

	handler   func(events.Envelope)
	onState   func(State)
	state     atomic.Int32
	outbox    chan events.Envelope
	subscribe sync.Once
}

// New creates an Adapter. metrics may be nil.
func New(opts Options, metrics *Metrics, log logr.Logger) *Adapter {
	opts.setDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	a := &Adapter{
		opts:    opts,
		dialer:  websocket.DefaultDialer,
		metrics: metrics,
		log:     log,
		outbox:  make(chan events.Envelope, opts.EmitBuffer),
	}
	a.state.Store(int32(StateDisconnected))
	return a
}

// Subscribe binds the inbound event handler. The router binds here exactly
// once per connection lifetime; later calls are ignored.
func (a *Adapter) Subscribe(handler func(events.Envelope)) {
	a.subscribe.Do(func() {
		a.handler = handler
	})
}

// OnStateChange registers the connectivity indicator callback.
func (a *Adapter) OnStateChange(fn func(State)) {
	a.onState = fn
}

// State returns the current connection state.
func (a *Adapter) State() State {
	return State(a.state.Load())
}

func (a *Adapter) setState(s State) {
	if State(a.state.Swap(int32(s))) == s {
		return
	}
	if s == StateConnected {
		a.metrics.Connected.Set(1)
	} else {
		a.metrics.Connected.Set(0)
	}
	if a.onState != nil {
		a.onState(s)
	}
}

// Emit queues one envelope for the daemon, fire-and-forget: it never blocks
// and never waits for a reply. When the outbox is full the envelope is
// dropped and counted.
func (a *Adapter) Emit(env events.Envelope) error {
	select {
	case a.outbox <- env:
		a.metrics.EmitsTotal.WithLabelValues(env.Event).Inc()
		return nil
	default:
		a.metrics.EmitFailures.Inc()
		return apperrors.New(apperrors.ErrCodeChannelEmit, "outbound queue full", nil)
	}
}

// Run dials the daemon and services the connection until the context is
// cancelled, reconnecting with exponential backoff. The subscribed handler
// receives events in wire-arrival order; an arbitrary event gap across a
// reconnect is tolerated by the core's idempotent transitions.
func (a *Adapter) Run(ctx context.Context) error {
	backoff := a.opts.InitialBackoff
	attempt := 0

	for {
		if ctx.Err() != nil {
			a.setState(StateDisconnected)
			return ctx.Err()
		}

		a.setState(StateConnecting)
		if attempt > 0 {
			a.metrics.Reconnects.Inc()
		}
		attempt++

		conn, _, err := a.dialer.DialContext(ctx, a.opts.URL, nil)
		if err != nil {
			a.setState(StateDisconnected)
			a.log.V(1).Info("dial failed", "url", a.opts.URL, "attempt", attempt, "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > a.opts.MaxBackoff {
				backoff = a.opts.MaxBackoff
			}
			continue
		}

		backoff = a.opts.InitialBackoff
		a.setState(StateConnected)
		a.log.V(1).Info("connected", "url", a.opts.URL)

		a.serve(ctx, conn)
		a.setState(StateDisconnected)
	}
}

// serve pumps one live connection until it drops or the context ends.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-connCtx.Done():
				// Unblocks the read loop as well.
				_ = conn.Close()
				return
			case env := <-a.outbox:
				if err := conn.WriteJSON(env); err != nil {
					a.metrics.EmitFailures.Inc()
					a.log.V(1).Info("write failed", "action", env.Event, "error", err.Error())
					cancel()
					return
				}
			}
		}
	}()

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if connCtx.Err() == nil {
				a.log.V(1).Info("connection lost", "error", err.Error())
			}
			break
		}
		a.metrics.EventsTotal.WithLabelValues(env.Event).Inc()
		if a.handler != nil {
			a.handler(env)
		}
	}

	cancel()
	_ = conn.Close()
	wg.Wait()
}
