// Package report assembles the consumer-facing report context from a fact
// snapshot and the derived status relations.
//
// The context is a typed aggregate serialized once; renderers consume the
// structure as-is (JSON) or feed it to a template.
package report

import "time"

// Context is the root of the report.
type Context struct {
	Project      string               `json:"project,omitempty"`
	CreationDate time.Time            `json:"creation_date"`
	Overview     RequirementsOverview `json:"overview"`
	Requirements []RequirementInfo    `json:"requirements"`
	Tests        TestStatistics       `json:"tests"`
	Reviews      []ReviewInfo         `json:"reviews"`
	Validation   ValidationInfo       `json:"validation"`
	Unrelated    UnrelatedInfo        `json:"unrelated"`
	Warnings     []string             `json:"warnings,omitempty"`

	TraceCriteria              string `json:"trace_criteria"`
	TestCoverageCriteria       string `json:"test_coverage_criteria"`
	TestPassedCoverageCriteria string `json:"test_passed_coverage_criteria"`
}

// RequirementsOverview holds the global ratios.
//
// VerifiedCnt is computed only over the effectively-manual subset. When
// that subset is empty the count is null and the ratio reports 0.0, so a
// consumer can tell "no data" from "zero verified".
type RequirementsOverview struct {
	ReqCnt        int     `json:"req_cnt"`
	TracedCnt     int     `json:"traced_cnt"`
	TracedRatio   float64 `json:"traced_ratio"`
	CoveredCnt    int     `json:"covered_cnt"`
	CoveredRatio  float64 `json:"covered_ratio"`
	PassedCnt     int     `json:"passed_cnt"`
	PassedRatio   float64 `json:"passed_ratio"`
	VerifiedCnt   *int    `json:"verified_cnt"`
	VerifiedRatio float64 `json:"verified_ratio"`
}

// RequirementInfo is the full status of one requirement.
type RequirementInfo struct {
	ID         string   `json:"id"`
	Origin     string   `json:"origin"`
	Title      string   `json:"title"`
	Annotation string   `json:"annotation,omitempty"`
	Parents    []string `json:"parents,omitempty"`
	Children   []string `json:"children,omitempty"`
	Deprecated bool     `json:"deprecated"`
	Manual     bool     `json:"manual"`
	Valid      bool     `json:"valid"`

	TraceInfo        TraceInfo        `json:"trace_info"`
	TestCoverageInfo TestCoverageInfo `json:"test_coverage_info"`
	LeafStatistics   LeafStatistics   `json:"leaf_statistics"`
	VerifiedInfo     []VerifiedInfo   `json:"verified_info,omitempty"`
}

// TraceInfo lists the trace evidence for one requirement.
type TraceInfo struct {
	Traced         bool            `json:"traced"`
	FullyTraced    bool            `json:"fully_traced"`
	DirectTraces   []TraceLocation `json:"direct_traces,omitempty"`
	IndirectTraces []IndirectTrace `json:"indirect_traces,omitempty"`
}

// TraceLocation is one direct trace of the requirement itself.
type TraceLocation struct {
	Filepath string `json:"filepath"`
	Line     uint   `json:"line"`
}

// IndirectTrace is a trace on a descendant requirement.
type IndirectTrace struct {
	TracedID string `json:"traced_id"`
	Filepath string `json:"filepath"`
	Line     uint   `json:"line"`
}

// TestCoverageInfo lists the test evidence for one requirement.
type TestCoverageInfo struct {
	Covered          bool                  `json:"covered"`
	Passed           bool                  `json:"passed"`
	FullyCovered     bool                  `json:"fully_covered"`
	DirectCoverage   []CoverageRef         `json:"direct_coverage,omitempty"`
	IndirectCoverage []IndirectCoverageRef `json:"indirect_coverage,omitempty"`
	FailedCoverage   []FailedCoverageRef   `json:"failed_coverage,omitempty"`
}

// CoverageRef is one coverage link on the requirement itself.
type CoverageRef struct {
	TestRunName string    `json:"test_run_name"`
	TestRunDate time.Time `json:"test_run_date"`
	TestName    string    `json:"test_name"`
	Filepath    string    `json:"filepath"`
	Line        uint      `json:"line"`
}

// IndirectCoverageRef is a coverage link on a descendant requirement.
type IndirectCoverageRef struct {
	CoveredID   string    `json:"covered_id"`
	TestRunName string    `json:"test_run_name"`
	TestRunDate time.Time `json:"test_run_date"`
	TestName    string    `json:"test_name"`
	Filepath    string    `json:"filepath"`
	Line        uint      `json:"line"`
}

// FailedCoverageRef is a coverage link whose test did not pass. CoveredID
// is empty when the failing link is on the requirement itself.
type FailedCoverageRef struct {
	CoveredID   string    `json:"covered_id,omitempty"`
	TestRunName string    `json:"test_run_name"`
	TestRunDate time.Time `json:"test_run_date"`
	TestName    string    `json:"test_name"`
	Filepath    string    `json:"filepath"`
	Line        uint      `json:"line"`
}

// LeafStatistics rolls up evidence over the leaf descendants of one
// requirement, for drill-down reporting. A leaf counts itself.
type LeafStatistics struct {
	LeafCnt                int     `json:"leaf_cnt"`
	TracedLeafCnt          int     `json:"traced_leaf_cnt"`
	TracedLeafRatio        float64 `json:"traced_leaf_ratio"`
	CoveredLeafCnt         int     `json:"covered_leaf_cnt"`
	CoveredLeafRatio       float64 `json:"covered_leaf_ratio"`
	PassedCoveredLeafCnt   int     `json:"passed_covered_leaf_cnt"`
	PassedCoveredLeafRatio float64 `json:"passed_covered_leaf_ratio"`
}

// VerifiedInfo records one manual verification of the requirement.
type VerifiedInfo struct {
	ReviewName string    `json:"review_name"`
	ReviewDate time.Time `json:"review_date"`
	Comment    string    `json:"comment,omitempty"`
}

// TestStatistics holds the per-run and global test overviews.
type TestStatistics struct {
	Overview TestsOverview `json:"overview"`
	TestRuns []TestRunInfo `json:"test_runs"`
}

// TestsOverview aggregates counts for one run, or across all runs. Ratios
// use the expected test count as denominator; a zero denominator reports
// 0.0. RanCnt below TestCnt means not every expected test reported in.
type TestsOverview struct {
	TestCnt      int     `json:"test_cnt"`
	RanCnt       int     `json:"ran_cnt"`
	RanRatio     float64 `json:"ran_ratio"`
	PassedCnt    int     `json:"passed_cnt"`
	PassedRatio  float64 `json:"passed_ratio"`
	FailedCnt    int     `json:"failed_cnt"`
	FailedRatio  float64 `json:"failed_ratio"`
	SkippedCnt   int     `json:"skipped_cnt"`
	SkippedRatio float64 `json:"skipped_ratio"`
}

// TestRunInfo is one test run with its tests.
type TestRunInfo struct {
	Name     string        `json:"name"`
	Date     time.Time     `json:"date"`
	Logs     string        `json:"logs,omitempty"`
	Overview TestsOverview `json:"overview"`
	Tests    []TestInfo    `json:"tests"`
}

// TestInfo is one test inside a run with the requirements it covered.
type TestInfo struct {
	Name       string   `json:"name"`
	Filepath   string   `json:"filepath"`
	Line       uint     `json:"line"`
	State      string   `json:"state"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Covers     []string `json:"covers,omitempty"`
}

// ReviewInfo is one review session with the requirements it verified.
type ReviewInfo struct {
	Name         string        `json:"name"`
	Date         time.Time     `json:"date"`
	Reviewer     string        `json:"reviewer"`
	Comment      string        `json:"comment,omitempty"`
	VerifiedReqs []VerifiedReq `json:"verified_reqs"`
}

// VerifiedReq names one requirement a review signed off.
type VerifiedReq struct {
	ID      string `json:"id"`
	Comment string `json:"comment,omitempty"`
}

// ValidationInfo reports whether the collected data is valid.
type ValidationInfo struct {
	IsValid            bool     `json:"is_valid"`
	ValidationCriteria string   `json:"validation_criteria"`
	InvalidReqs        []string `json:"invalid_reqs"`
}

// UnrelatedInfo lists the currently quarantined facts so operators can see
// which producers reference unknown entities.
type UnrelatedInfo struct {
	Traces        []UnrelatedTrace        `json:"traces"`
	Coverage      []UnrelatedCoverage     `json:"coverage"`
	Verifications []UnrelatedVerification `json:"verifications"`
}

// UnrelatedTrace is a quarantined trace.
type UnrelatedTrace struct {
	ReqID    string `json:"req_id"`
	Filepath string `json:"filepath"`
	Line     uint   `json:"line"`
}

// UnrelatedCoverage is a quarantined coverage link.
type UnrelatedCoverage struct {
	ReqID       string    `json:"req_id"`
	TestRunName string    `json:"test_run_name"`
	TestRunDate time.Time `json:"test_run_date"`
	TestName    string    `json:"test_name"`
	Filepath    string    `json:"filepath"`
	Line        uint      `json:"line"`
}

// UnrelatedVerification is a quarantined manual verification.
type UnrelatedVerification struct {
	ReqID      string    `json:"req_id"`
	ReviewName string    `json:"review_name"`
	ReviewDate time.Time `json:"review_date"`
}

const traceCriteria = `
Requirements are traced if one of the following criteria is met:

- A trace directly referring to the requirement exists (Directly traced)
- All direct children of the requirement are traced (Indirectly traced)
`

const testCoverageCriteria = `
A requirement is covered through a test if any of the following criteria are met:

- At least one direct trace to the requirement was reached during test execution
- All direct children of the requirement are covered
`

const testPassedCoverageCriteria = `
A requirement coverage passed if all of the following criteria are met:

- All tests covering the requirement passed
- All tests covering descendant requirements passed
`

const validationCriteria = "The collected data is valid if no deprecated requirement is traced."
