package session

import (
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

// Store owns every Session in the process. All writes go through Put or
// Apply with reduced snapshots; nothing outside the session package mutates
// a Session in place. Reads hand out value copies, so presentation code can
// hold a snapshot across a render without racing the event loop.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session
	order    []string // creation order, for stable iteration
	activeID string
	threads  []events.ThreadInfo

	subs []chan struct{}
	log  logr.Logger
}

// NewStore creates an empty Store.
func NewStore(log logr.Logger) *Store {
	return &Store{
		sessions: make(map[string]Session),
		log:      log,
	}
}

// Subscribe returns a channel that receives a coalesced signal after every
// committed change. The channel has a buffer of one; a slow consumer sees at
// least one signal for any burst of commits.
func (st *Store) Subscribe() <-chan struct{} {
	st.mu.Lock()
	defer st.mu.Unlock()
	ch := make(chan struct{}, 1)
	st.subs = append(st.subs, ch)
	return ch
}

func (st *Store) notifyLocked() {
	for _, ch := range st.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Get returns a snapshot of the session with the given id.
func (st *Store) Get(id string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// GetOrCreate returns the session with the given id, creating it with
// default state when unseen. Events that arrive slightly before the local
// session bookkeeping are never lost.
func (st *Store) GetOrCreate(id string, now time.Time) Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := New(id, now)
	st.sessions[id] = s
	st.order = append(st.order, id)
	if st.activeID == "" {
		st.activeID = id
	}
	st.log.V(1).Info("session created", "session", id)
	st.notifyLocked()
	return s
}

// Put commits a session snapshot.
func (st *Store) Put(s Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID]; !ok {
		st.order = append(st.order, s.ID)
		if st.activeID == "" {
			st.activeID = s.ID
		}
	}
	st.sessions[s.ID] = s
	st.notifyLocked()
}

// ActiveID returns the id of the currently active session, or "".
func (st *Store) ActiveID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.activeID
}

// Active returns a snapshot of the active session.
func (st *Store) Active() (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[st.activeID]
	return s, ok
}

// SetActive marks the given session active. Unknown ids are ignored.
func (st *Store) SetActive(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return
	}
	st.activeID = id
	st.notifyLocked()
}

// List returns session snapshots ordered most-recently-active first.
func (st *Store) List() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Session, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.sessions[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Delete removes a session. Session identity is never reused: the id leaves
// the order list for good, and when the deleted session was active the
// next-most-recent session is promoted (or none, when empty).
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return
	}
	delete(st.sessions, id)
	for i, sid := range st.order {
		if sid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	if st.activeID == id {
		st.activeID = ""
		var latest time.Time
		for _, sid := range st.order {
			if s := st.sessions[sid]; st.activeID == "" || s.UpdatedAt.After(latest) {
				st.activeID = sid
				latest = s.UpdatedAt
			}
		}
	}
	st.log.V(1).Info("session deleted", "session", id)
	st.notifyLocked()
}

// Rename moves a session to a new id in place, preserving its transcript and
// its position in the order list. Used to reconcile a locally assigned
// placeholder id with the server-assigned one.
func (st *Store) Rename(oldID, newID string) bool {
	if oldID == newID {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[oldID]
	if !ok {
		return false
	}
	if _, taken := st.sessions[newID]; taken {
		return false
	}
	delete(st.sessions, oldID)
	s.ID = newID
	st.sessions[newID] = s
	for i, sid := range st.order {
		if sid == oldID {
			st.order[i] = newID
			break
		}
	}
	if st.activeID == oldID {
		st.activeID = newID
	}
	st.log.V(1).Info("session renamed", "from", oldID, "to", newID)
	st.notifyLocked()
	return true
}

// SetThreads replaces the session-picker thread list.
func (st *Store) SetThreads(threads []events.ThreadInfo) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.threads = threads
	st.notifyLocked()
}

// RemoveThread drops one entry from the session-picker thread list.
func (st *Store) RemoveThread(threadID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, th := range st.threads {
		if th.ID == threadID {
			st.threads = append(st.threads[:i], st.threads[i+1:]...)
			st.notifyLocked()
			return
		}
	}
}

// Threads returns the session-picker thread list.
func (st *Store) Threads() []events.ThreadInfo {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]events.ThreadInfo, len(st.threads))
	copy(out, st.threads)
	return out
}
