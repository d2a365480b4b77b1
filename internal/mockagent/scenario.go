package mockagent

import (
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/agentdeck-dev/agentdeck/pkg/console/errors"
)

// Step kinds a scenario turn may contain.
const (
	StepText      = "text"
	StepReasoning = "reasoning"
	StepTool      = "tool"
	StepConfirm   = "confirm"
	StepDecide    = "decide"
	StepStages    = "stages"
	StepStage     = "stage"
	StepError     = "error"
)

// Step is one scripted action inside a turn.
type Step struct {
	Type string `yaml:"type"`

	// text / reasoning / error
	Text string `yaml:"text,omitempty"`

	// tool
	RunID  string `yaml:"run_id,omitempty"`
	Name   string `yaml:"name,omitempty"`
	Status string `yaml:"status,omitempty"`
	Result string `yaml:"result,omitempty"`

	// confirm / decide
	RequestID string   `yaml:"request_id,omitempty"`
	Message   string   `yaml:"message,omitempty"`
	Choices   []string `yaml:"choices,omitempty"`
	Timeout   float64  `yaml:"timeout,omitempty"`

	// stages / stage
	Stages []string `yaml:"stages,omitempty"`
	Stage  string   `yaml:"stage,omitempty"`
}

// Turn is the scripted response to one start_task.
type Turn struct {
	Steps []Step `yaml:"steps"`
}

// Scenario scripts the mock daemon's behavior. Turns play in order, one per
// start_task; past the last turn the daemon falls back to a canned echo.
type Scenario struct {
	Turns []Turn `yaml:"turns"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeScenarioLoad, "failed to read scenario file", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeScenarioLoad, "failed to parse scenario", err)
	}
	return &sc, nil
}

// DefaultScenario is played when no scenario file is given: think, answer,
// run a tool, ask for a confirmation.
func DefaultScenario() *Scenario {
	return &Scenario{
		Turns: []Turn{
			{
				Steps: []Step{
					{Type: StepReasoning, Text: "The user wants a quick look at the repository."},
					{Type: StepStages, Stages: []string{"inspect", "summarize"}},
					{Type: StepStage, Stage: "inspect"},
					{Type: StepTool, RunID: "run-1", Name: "list_files", Status: "running"},
					{Type: StepTool, RunID: "run-1", Name: "list_files", Status: "done", Result: "12 files"},
					{Type: StepStage, Stage: "summarize"},
					{Type: StepText, Text: "I looked around: twelve files, mostly Go. Want a full summary?"},
				},
			},
			{
				Steps: []Step{
					{Type: StepConfirm, RequestID: "confirm-1", Message: "Write SUMMARY.md to the working directory?", Timeout: 30},
					{Type: StepText, Text: "Done. SUMMARY.md is in place."},
				},
			},
		},
	}
}
