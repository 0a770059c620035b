package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/reqtrace/reqtrace/internal/facts"
)

// CoverageFile is the test-log converter output: one or more test runs with
// their tests and the traces each test exercised.
type CoverageFile struct {
	TestRuns []TestRunRecord `json:"test_runs"`
}

// TestRunRecord is one test execution, keyed by name and date.
type TestRunRecord struct {
	Name              string       `json:"name"`
	Date              Date         `json:"date"`
	ExpectedTestCount int          `json:"expected_test_count"`
	Logs              string       `json:"logs,omitempty"`
	Tests             []TestRecord `json:"tests"`
}

// TestRecord is one test inside a run.
type TestRecord struct {
	Name          string         `json:"name"`
	Filepath      string         `json:"filepath"`
	Line          uint           `json:"line"`
	State         TestStateValue `json:"state"`
	CoveredTraces []CoveredTrace `json:"covered_traces,omitempty"`
}

// CoveredTrace names one trace the test reached during execution.
type CoveredTrace struct {
	Filepath string `json:"filepath"`
	Line     uint   `json:"line"`
	ReqID    string `json:"req_id"`
}

// TestStateValue decodes the test outcome union. The wire form is either a
// plain string ("passed", "failed", "pending") or a tagged object for the
// skip variant: {"skipped": {"reason": "..."}}. An absent state means the
// run registered the test but never finalized it (pending).
type TestStateValue struct {
	State      facts.TestState
	SkipReason string
}

// UnmarshalJSON implements the union decoding described on TestStateValue.
func (v *TestStateValue) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		state, err := facts.ParseTestState(plain)
		if err != nil {
			return err
		}
		if state == facts.StateSkipped {
			return fmt.Errorf(`skipped state must use the object form {"skipped": {...}}`)
		}
		v.State = state
		return nil
	}

	var tagged struct {
		Skipped *struct {
			Reason string `json:"reason,omitempty"`
		} `json:"skipped"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("invalid test state %s", data)
	}
	if tagged.Skipped == nil {
		return fmt.Errorf("invalid test state %s", data)
	}
	v.State = facts.StateSkipped
	v.SkipReason = tagged.Skipped.Reason
	return nil
}

// LoadCoverage reads and validates a coverage file.
func LoadCoverage(path string) (*CoverageFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coverage file %q: %w", path, err)
	}

	var file CoverageFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse coverage file %q: %w", path, err)
	}

	for _, run := range file.TestRuns {
		if run.Name == "" {
			return nil, fmt.Errorf("coverage file %q: test run with empty name", path)
		}
		if run.Date.IsZero() {
			return nil, fmt.Errorf("coverage file %q: test run %q has no date", path, run.Name)
		}
		for _, test := range run.Tests {
			if test.Name == "" {
				return nil, fmt.Errorf("coverage file %q: run %q contains a test with empty name", path, run.Name)
			}
			for _, covered := range test.CoveredTraces {
				if covered.ReqID == "" {
					return nil, fmt.Errorf("coverage file %q: test %q covers a trace with empty req_id", path, test.Name)
				}
			}
		}
	}

	return &file, nil
}
