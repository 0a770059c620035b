package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reqtrace/reqtrace/internal/cli"
)

// Harness executes scenarios against a scratch database.
//
// All files a scenario produces (the database and the per-step
// documents) live under a single directory, so tests get isolation by
// handing the harness a fresh t.TempDir().
type Harness struct {
	dir string
}

// New creates a harness rooted at dir.
func New(dir string) *Harness {
	return &Harness{dir: dir}
}

// Result collects the outcome of a scenario run.
type Result struct {
	// DatabasePath is the fact database the scenario ran against.
	DatabasePath string

	// Steps holds one entry per executed step, in order.
	Steps []StepResult
}

// StepResult is the outcome of one command invocation.
type StepResult struct {
	// Command is the subcommand the step ran.
	Command string

	// Output is the combined stdout of the invocation (JSON format).
	Output string
}

// Run executes the scenario steps in order. A failing command aborts
// the run; quarantined facts are not failures, the commands report them
// in their summary and continue.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	result := &Result{DatabasePath: h.DatabasePath()}
	for i, step := range scenario.Steps {
		command, err := step.command()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		args := []string{command, "--db", result.DatabasePath, "--format", "json"}
		if command == "reconcile" {
			if step.Reconcile.Apply {
				args = append(args, "--apply")
			}
		} else {
			path, err := h.writeDocument(i+1, command, step.document())
			if err != nil {
				return nil, err
			}
			args = append(args, path)
		}

		output, err := execute(args)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, command, err)
		}
		result.Steps = append(result.Steps, StepResult{Command: command, Output: output})
	}
	return result, nil
}

// DatabasePath returns the fact database path used by Run.
func (h *Harness) DatabasePath() string {
	return filepath.Join(h.dir, "facts.db")
}

// writeDocument materializes a step's inline document as a file the
// command can read. Review documents default to TOML unless they look
// like JSON, matching the extension dispatch of the review command.
func (h *Harness) writeDocument(step int, command, doc string) (string, error) {
	ext := ".json"
	if command == "review" && !strings.HasPrefix(strings.TrimSpace(doc), "{") {
		ext = ".toml"
	}
	path := filepath.Join(h.dir, fmt.Sprintf("step-%02d-%s%s", step, command, ext))
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write step document: %w", err)
	}
	return path, nil
}

func execute(args []string) (string, error) {
	cmd := cli.NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
