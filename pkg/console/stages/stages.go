// Package stages tracks the remote agent's stage plan per session.
package stages

import "sync"

// Status of one plan stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Stage is one step of a session's plan.
type Stage struct {
	Name   string
	Status Status
}

// Tracker holds each session's stage plan.
type Tracker struct {
	mu    sync.RWMutex
	plans map[string][]Stage
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{plans: make(map[string][]Stage)}
}

// Build replaces a session's plan with the given stage names, all pending.
func (t *Tracker) Build(sessionID string, names []string) {
	plan := make([]Stage, 0, len(names))
	for _, name := range names {
		plan = append(plan, Stage{Name: name, Status: StatusPending})
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plans[sessionID] = plan
}

// Start marks the named stage active and every stage before it completed.
// Unknown names are ignored.
func (t *Tracker) Start(sessionID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	plan := t.plans[sessionID]
	idx := -1
	for i := range plan {
		if plan[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for i := range plan {
		switch {
		case i < idx:
			plan[i].Status = StatusCompleted
		case i == idx:
			plan[i].Status = StatusActive
		}
	}
}

// CompleteAll marks every stage of a session completed.
func (t *Tracker) CompleteAll(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	plan := t.plans[sessionID]
	for i := range plan {
		plan[i].Status = StatusCompleted
	}
}

// Edit replaces the plan's stage names, keeping the status of names that
// survive the edit.
func (t *Tracker) Edit(sessionID string, names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := make(map[string]Status, len(t.plans[sessionID]))
	for _, st := range t.plans[sessionID] {
		old[st.Name] = st.Status
	}
	plan := make([]Stage, 0, len(names))
	for _, name := range names {
		status := StatusPending
		if prev, ok := old[name]; ok {
			status = prev
		}
		plan = append(plan, Stage{Name: name, Status: status})
	}
	t.plans[sessionID] = plan
}

// Plan returns a session's stage plan.
func (t *Tracker) Plan(sessionID string) []Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Stage, len(t.plans[sessionID]))
	copy(out, t.plans[sessionID])
	return out
}

// Clear drops a session's plan.
func (t *Tracker) Clear(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.plans, sessionID)
}
