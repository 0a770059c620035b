package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/reqtrace/reqtrace/internal/report"
	"github.com/reqtrace/reqtrace/internal/store"
)

// snapshotDate keeps report assembly deterministic across runs.
var snapshotDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// StatusSnapshot is the trimmed view of a scenario's final fact base
// used for golden comparison. It keeps the derived per-requirement
// status, the validation verdict and the quarantine counters, and drops
// everything volatile.
type StatusSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Requirements []RequirementStatus `json:"requirements"`
	InvalidReqs  []string            `json:"invalid_reqs"`
	Quarantined  QuarantineCounts    `json:"quarantined"`
	Warnings     []string            `json:"warnings"`
}

// RequirementStatus holds one requirement's derived status flags.
type RequirementStatus struct {
	ID      string `json:"id"`
	Traced  bool   `json:"traced"`
	Covered bool   `json:"covered"`
	Passed  bool   `json:"passed"`
	Valid   bool   `json:"valid"`
}

// QuarantineCounts counts the facts still waiting for their referent.
type QuarantineCounts struct {
	Traces        int `json:"traces"`
	Coverage      int `json:"coverage"`
	Verifications int `json:"verifications"`
}

// Snapshot reduces the scenario's final database to a StatusSnapshot.
func (h *Harness) Snapshot(ctx context.Context, scenarioName string) (*StatusSnapshot, error) {
	st, err := store.Open(h.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open scenario database: %w", err)
	}
	defer st.Close()

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	unrelated, err := st.LoadUnrelated(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := report.Build(snap, unrelated, report.Options{CreationDate: snapshotDate})
	if err != nil {
		return nil, err
	}

	out := &StatusSnapshot{
		ScenarioName: scenarioName,
		Requirements: []RequirementStatus{},
		InvalidReqs:  rep.Validation.InvalidReqs,
		Quarantined: QuarantineCounts{
			Traces:        len(rep.Unrelated.Traces),
			Coverage:      len(rep.Unrelated.Coverage),
			Verifications: len(rep.Unrelated.Verifications),
		},
		Warnings: rep.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for _, req := range rep.Requirements {
		out.Requirements = append(out.Requirements, RequirementStatus{
			ID:      req.ID,
			Traced:  req.TraceInfo.Traced,
			Covered: req.TestCoverageInfo.Covered,
			Passed:  req.TestCoverageInfo.Passed,
			Valid:   req.Valid,
		})
	}
	return out, nil
}

// RunWithGolden executes a scenario and compares its status snapshot
// against testdata/golden/<name>.golden. Regenerate the golden files
// with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	h := New(t.TempDir())
	if _, err := h.Run(scenario); err != nil {
		return err
	}
	snapshot, err := h.Snapshot(context.Background(), scenario.Name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, append(data, '\n'))
	return nil
}
