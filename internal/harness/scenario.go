package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes one end-to-end ingestion run.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Steps are executed in order. Each step runs one command.
	Steps []Step `yaml:"steps"`
}

// Step is a single command invocation. Exactly one field must be set.
type Step struct {
	// Collect holds a requirements document (JSON array).
	Collect string `yaml:"collect,omitempty"`

	// Trace holds a trace document (JSON array).
	Trace string `yaml:"trace,omitempty"`

	// Coverage holds a test coverage document (JSON object).
	Coverage string `yaml:"coverage,omitempty"`

	// Review holds a review document (TOML or JSON).
	Review string `yaml:"review,omitempty"`

	// Reconcile runs the reconcile command instead of an ingestion.
	Reconcile *ReconcileStep `yaml:"reconcile,omitempty"`
}

// ReconcileStep configures a reconcile invocation.
type ReconcileStep struct {
	// Apply deletes the stale rows instead of only reporting them.
	Apply bool `yaml:"apply"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", s.Name)
	}
	for i := range s.Steps {
		if _, err := s.Steps[i].command(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// command maps a step onto the CLI command it runs.
func (st *Step) command() (string, error) {
	var cmds []string
	if st.Collect != "" {
		cmds = append(cmds, "collect")
	}
	if st.Trace != "" {
		cmds = append(cmds, "trace")
	}
	if st.Coverage != "" {
		cmds = append(cmds, "coverage")
	}
	if st.Review != "" {
		cmds = append(cmds, "review")
	}
	if st.Reconcile != nil {
		cmds = append(cmds, "reconcile")
	}
	switch len(cmds) {
	case 0:
		return "", fmt.Errorf("step sets no command")
	case 1:
		return cmds[0], nil
	default:
		return "", fmt.Errorf("step sets more than one command: %v", cmds)
	}
}

// document returns the inline document carried by an ingestion step.
func (st *Step) document() string {
	switch {
	case st.Collect != "":
		return st.Collect
	case st.Trace != "":
		return st.Trace
	case st.Coverage != "":
		return st.Coverage
	case st.Review != "":
		return st.Review
	}
	return ""
}
