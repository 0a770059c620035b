package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: smoke
description: "collect then reconcile"
steps:
  - collect: |
      {"requirements": []}
  - reconcile:
      apply: true
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", scenario.Name)
	require.Len(t, scenario.Steps, 2)

	cmd, err := scenario.Steps[0].command()
	require.NoError(t, err)
	assert.Equal(t, "collect", cmd)
	assert.JSONEq(t, `{"requirements": []}`, scenario.Steps[0].document())

	cmd, err = scenario.Steps[1].command()
	require.NoError(t, err)
	assert.Equal(t, "reconcile", cmd)
	assert.True(t, scenario.Steps[1].Reconcile.Apply)
}

func TestLoadScenario_MissingName(t *testing.T) {
	path := writeScenario(t, `
steps:
  - collect: "{}"
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestLoadScenario_NoSteps(t *testing.T) {
	path := writeScenario(t, `name: empty`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no steps")
}

func TestLoadScenario_StepWithoutCommand(t *testing.T) {
	path := writeScenario(t, `
name: bad
steps:
  - {}
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sets no command")
}

func TestLoadScenario_StepWithTwoCommands(t *testing.T) {
	path := writeScenario(t, `
name: bad
steps:
  - collect: "{}"
    trace: "{}"
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one command")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
