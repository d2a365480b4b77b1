// Package timer runs the countdowns for pending confirmation and decision
// requests. All deadlines share one ticker; remaining time is always derived
// from the stored absolute deadline against the current clock, never from a
// decrementing counter, so countdowns stay correct across suspension and
// clock drift.
package timer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// TimeoutFunc is invoked exactly once when a tracked deadline passes while
// the entry is still tracked.
type TimeoutFunc func(sessionID, requestID string)

// TickInterval is the shared fan-out rate over all tracked deadlines.
const TickInterval = time.Second

type entryKey struct {
	sessionID string
	requestID string
}

// Scheduler tracks request deadlines across all sessions. Entries for
// different sessions run independently off the same tick.
type Scheduler struct {
	mu      sync.Mutex
	entries map[entryKey]time.Time

	onTimeout TimeoutFunc
	now       func() time.Time
	log       logr.Logger
}

// NewScheduler creates a Scheduler that calls onTimeout when a deadline
// expires.
func NewScheduler(onTimeout TimeoutFunc, log logr.Logger) *Scheduler {
	return &Scheduler{
		entries:   make(map[entryKey]time.Time),
		onTimeout: onTimeout,
		now:       time.Now,
		log:       log,
	}
}

// SetClock overrides the clock source. Test hook.
func (sc *Scheduler) SetClock(now func() time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.now = now
}

// Track registers the deadline for one request, replacing any previous
// deadline for the same session/request pair.
func (sc *Scheduler) Track(sessionID, requestID string, expiresAt time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.entries[entryKey{sessionID, requestID}] = expiresAt
	sc.log.V(1).Info("deadline tracked", "session", sessionID, "request", requestID, "expires_at", expiresAt)
}

// Cancel stops tracking one request. Synchronous: once Cancel returns no
// timeout callback for the pair will fire.
func (sc *Scheduler) Cancel(sessionID, requestID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.entries, entryKey{sessionID, requestID})
}

// CancelSession stops tracking every request of one session. Used on session
// reset and deletion.
func (sc *Scheduler) CancelSession(sessionID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for key := range sc.entries {
		if key.sessionID == sessionID {
			delete(sc.entries, key)
		}
	}
}

// Remaining reports the whole seconds left for one request, derived from its
// absolute deadline. The second return is false when the pair is not
// tracked.
func (sc *Scheduler) Remaining(sessionID, requestID string) (int, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	expiresAt, ok := sc.entries[entryKey{sessionID, requestID}]
	if !ok {
		return 0, false
	}
	left := expiresAt.Sub(sc.now())
	if left <= 0 {
		return 0, true
	}
	return int(math.Ceil(left.Seconds())), true
}

// Run drives the shared tick until the context is cancelled. Expired entries
// are removed before their callbacks run, so each fires at most once even if
// a callback re-enters the scheduler.
func (sc *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.fireExpired()
		}
	}
}

func (sc *Scheduler) fireExpired() {
	sc.mu.Lock()
	now := sc.now()
	var expired []entryKey
	for key, expiresAt := range sc.entries {
		if !expiresAt.After(now) {
			expired = append(expired, key)
			delete(sc.entries, key)
		}
	}
	sc.mu.Unlock()

	for _, key := range expired {
		sc.log.V(1).Info("request timed out", "session", key.sessionID, "request", key.requestID)
		sc.onTimeout(key.sessionID, key.requestID)
	}
}
