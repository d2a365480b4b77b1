package toolstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_UpsertInsertsAndUpdates(t *testing.T) {
	tr := NewTracker()

	tr.Upsert("s1", Run{RunID: "run-1", ToolName: "web_search", Status: "running"})
	tr.Upsert("s1", Run{RunID: "run-2", ToolName: "bash", Status: "running"})
	tr.Upsert("s1", Run{RunID: "run-1", ToolName: "web_search", Status: "done", Result: "3 hits"})

	runs := tr.List("s1")
	require.Len(t, runs, 2)
	// Update preserved position
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "done", runs[0].Status)
	assert.Equal(t, "3 hits", runs[0].Result)
	assert.Equal(t, "run-2", runs[1].RunID)
}

func TestTracker_UpsertIdempotent(t *testing.T) {
	tr := NewTracker()

	run := Run{RunID: "run-1", ToolName: "bash", Status: "done"}
	tr.Upsert("s1", run)
	tr.Upsert("s1", run)

	assert.Len(t, tr.List("s1"), 1)
}

func TestTracker_SessionsIndependent(t *testing.T) {
	tr := NewTracker()

	tr.Upsert("s1", Run{RunID: "run-1", ToolName: "bash"})
	tr.Upsert("s2", Run{RunID: "run-1", ToolName: "web_search"})

	assert.Equal(t, "bash", tr.List("s1")[0].ToolName)
	assert.Equal(t, "web_search", tr.List("s2")[0].ToolName)
}

func TestTracker_ReplaceAndClear(t *testing.T) {
	tr := NewTracker()
	tr.Upsert("s1", Run{RunID: "run-1", ToolName: "bash"})

	tr.Replace("s1", []Run{{RunID: "run-9", ToolName: "readFile"}})
	runs := tr.List("s1")
	require.Len(t, runs, 1)
	assert.Equal(t, "run-9", runs[0].RunID)

	tr.Clear("s1")
	assert.Empty(t, tr.List("s1"))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"web_search", "Web Search"},
		{"readFile", "Read File"},
		{"bash", "Bash"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.in))
		})
	}
}

func TestTracker_UpsertDerivesDisplayName(t *testing.T) {
	tr := NewTracker()
	tr.Upsert("s1", Run{RunID: "run-1", ToolName: "stage_planner"})

	assert.Equal(t, "Stage Planner", tr.List("s1")[0].DisplayName)
}
