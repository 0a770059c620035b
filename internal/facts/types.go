// Package facts defines the raw fact records the tracing engine operates on.
//
// Facts are produced by external collectors (requirement extraction, source
// scanning, test-log ingestion) and persisted by internal/store. All derived
// relations (internal/graph, internal/status) are pure functions over a
// Snapshot of these records read under a single transaction.
package facts

import (
	"fmt"
	"time"
)

// DateFormat is the canonical encoding for all persisted dates.
// Producer files use ISO-8601; the store keeps RFC 3339 UTC strings so that
// string comparison and string equality match chronological comparison.
const DateFormat = time.RFC3339

// Annotation marks a requirement as needing special handling.
// Annotations are self-declared on a requirement; effective annotation
// (inherited through the hierarchy) is computed by internal/status.
type Annotation int

const (
	// AnnotationNone is the default: the requirement is traced and covered
	// like any other.
	AnnotationNone Annotation = iota

	// AnnotationManual marks a requirement as manually verified.
	// Manual requirements are satisfied by reviews, not by test coverage.
	AnnotationManual

	// AnnotationDeprecated marks a requirement as no longer valid.
	// Evidence attached to a deprecated requirement is a validation error.
	AnnotationDeprecated
)

// ParseAnnotation converts the wire encoding ("manual", "deprecated", "")
// into an Annotation. The empty string maps to AnnotationNone.
func ParseAnnotation(s string) (Annotation, error) {
	switch s {
	case "":
		return AnnotationNone, nil
	case "manual":
		return AnnotationManual, nil
	case "deprecated":
		return AnnotationDeprecated, nil
	default:
		return AnnotationNone, fmt.Errorf("unknown annotation %q: must be \"manual\" or \"deprecated\"", s)
	}
}

// String returns the wire encoding of the annotation.
// AnnotationNone encodes as the empty string.
func (a Annotation) String() string {
	switch a {
	case AnnotationManual:
		return "manual"
	case AnnotationDeprecated:
		return "deprecated"
	default:
		return ""
	}
}

// TestState is the outcome of a single test record.
type TestState int

const (
	// StatePending means the test was registered by a run but never
	// finalized. Pending counts as coverage evidence but never as passed.
	StatePending TestState = iota

	// StatePassed means the test finished successfully.
	StatePassed

	// StateFailed means the test finished with a failure.
	StateFailed

	// StateSkipped means the test was deliberately not executed.
	StateSkipped
)

// ParseTestState converts the stored encoding into a TestState.
func ParseTestState(s string) (TestState, error) {
	switch s {
	case "pending":
		return StatePending, nil
	case "passed":
		return StatePassed, nil
	case "failed":
		return StateFailed, nil
	case "skipped":
		return StateSkipped, nil
	default:
		return StatePending, fmt.Errorf("unknown test state %q", s)
	}
}

// String returns the stored encoding of the state.
func (t TestState) String() string {
	switch t {
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Passed reports whether the state counts as a passing outcome.
// Pending, Failed and Skipped all count as not passed.
func (t TestState) Passed() bool {
	return t == StatePassed
}

// Requirement is an identified, hierarchically organized unit of
// specification.
type Requirement struct {
	ID         string
	Origin     string // provenance URI (wiki page, schema file, ticket)
	Title      string
	Annotation Annotation

	// Generation is the ingestion batch that last confirmed this
	// requirement still exists. Used for staleness detection.
	Generation int64

	// FirstSeen is the ingestion batch that first introduced this
	// requirement. Used to classify reconciliation diffs.
	FirstSeen int64
}

// HierarchyEdge links a child requirement to one of its parents.
// The edge set must form a DAG; internal/graph rejects cycles.
type HierarchyEdge struct {
	ChildID  string
	ParentID string
}

// Trace is a located reference asserting that code or docs address a
// requirement.
type Trace struct {
	ReqID      string
	Filepath   string
	Line       uint
	Generation int64
}

// TestRun groups the test records of one test execution, keyed by name and
// date. Test runs are historical data and never swept by reconciliation.
type TestRun struct {
	Name              string
	Date              time.Time
	ExpectedTestCount int
	Logs              string
}

// Test is a single test record inside a run.
type Test struct {
	RunName    string
	RunDate    time.Time
	Name       string
	Filepath   string
	Line       uint
	State      TestState
	SkipReason string // only meaningful for StateSkipped
}

// CoverageLink ties a test record to a trace, i.e. evidence that the test
// exercised the traced location. The (ReqID, Filepath, Line) triple must
// match an existing Trace; the (RunName, RunDate, TestName) triple must match
// an existing Test.
type CoverageLink struct {
	ReqID    string
	RunName  string
	RunDate  time.Time
	TestName string
	Filepath string
	Line     uint
}

// Review is one manual review session.
type Review struct {
	Name     string
	Date     time.Time
	Reviewer string
	Comment  string
}

// ManualVerification records that a review verified one requirement.
type ManualVerification struct {
	ReqID      string
	ReviewName string
	ReviewDate time.Time
	Comment    string
}

// Snapshot is a consistent view of all fact tables, read under a single
// transaction. Every derived computation takes a Snapshot so that a
// concurrent ingestion batch cannot produce a torn view.
type Snapshot struct {
	Requirements  []Requirement
	Edges         []HierarchyEdge
	Traces        []Trace
	TestRuns      []TestRun
	Tests         []Test
	Coverage      []CoverageLink
	Reviews       []Review
	Verifications []ManualVerification
}

// Unrelated holds quarantined facts: records whose referent did not exist at
// ingestion time. They are surfaced in diagnostics and promoted into the
// primary tables once the missing referent appears.
type Unrelated struct {
	Traces        []Trace
	Coverage      []CoverageLink
	Verifications []ManualVerification
}

// Empty reports whether no facts are quarantined.
func (u *Unrelated) Empty() bool {
	return len(u.Traces) == 0 && len(u.Coverage) == 0 && len(u.Verifications) == 0
}
