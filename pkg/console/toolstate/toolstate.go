// Package toolstate tracks tool-execution progress per session, upserted by
// run id so a replayed or resumed event stream converges on the same state.
package toolstate

import (
	"strings"
	"sync"
	"time"

	"github.com/stoewer/go-strcase"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Run is one tool execution reported by the remote agent.
type Run struct {
	RunID       string
	ToolName    string
	DisplayName string
	Status      string
	Args        map[string]any
	Result      string
	UpdatedAt   time.Time
}

// Tracker holds the tool runs of every session, in first-seen order per
// session.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string][]Run
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string][]Run)}
}

// Upsert inserts or updates the run with the given RunID for a session.
// Updating preserves the run's position.
func (t *Tracker) Upsert(sessionID string, run Run) {
	if run.DisplayName == "" {
		run.DisplayName = DisplayName(run.ToolName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	runs := t.runs[sessionID]
	for i := range runs {
		if runs[i].RunID == run.RunID {
			runs[i] = run
			return
		}
	}
	t.runs[sessionID] = append(runs, run)
}

// Replace swaps a session's runs wholesale, as on history reload.
func (t *Tracker) Replace(sessionID string, runs []Run) {
	for i := range runs {
		if runs[i].DisplayName == "" {
			runs[i].DisplayName = DisplayName(runs[i].ToolName)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[sessionID] = runs
}

// List returns a session's runs in first-seen order.
func (t *Tracker) List(sessionID string) []Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Run, len(t.runs[sessionID]))
	copy(out, t.runs[sessionID])
	return out
}

// Clear drops all runs of a session.
func (t *Tracker) Clear(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, sessionID)
}

var titleCaser = cases.Title(language.English)

// DisplayName renders a wire tool name ("web_search", "readFile") as a
// human-readable label ("Web Search", "Read File").
func DisplayName(toolName string) string {
	if toolName == "" {
		return ""
	}
	snake := strcase.SnakeCase(toolName)
	return titleCaser.String(strings.ReplaceAll(snake, "_", " "))
}
