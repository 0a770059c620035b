package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/graph"
)

var runDate = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// snapshotBuilder assembles fact snapshots for tests without touching the
// store.
type snapshotBuilder struct {
	snap facts.Snapshot
}

func newSnapshot() *snapshotBuilder {
	return &snapshotBuilder{}
}

func (b *snapshotBuilder) req(id string, annotation facts.Annotation, parents ...string) *snapshotBuilder {
	b.snap.Requirements = append(b.snap.Requirements, facts.Requirement{
		ID:         id,
		Origin:     "wiki/" + id,
		Annotation: annotation,
	})
	for _, parent := range parents {
		b.snap.Edges = append(b.snap.Edges, facts.HierarchyEdge{ChildID: id, ParentID: parent})
	}
	return b
}

func (b *snapshotBuilder) trace(reqID, file string, line uint) *snapshotBuilder {
	b.snap.Traces = append(b.snap.Traces, facts.Trace{ReqID: reqID, Filepath: file, Line: line})
	return b
}

func (b *snapshotBuilder) test(name string, state facts.TestState) *snapshotBuilder {
	b.snap.Tests = append(b.snap.Tests, facts.Test{
		RunName:  "nightly",
		RunDate:  runDate,
		Name:     name,
		Filepath: "tests/" + name + ".go",
		Line:     1,
		State:    state,
	})
	return b
}

// cover links a trace to a test of the "nightly" run and registers the
// matching trace row as well, since every coverage link references one.
func (b *snapshotBuilder) cover(reqID, testName, file string, line uint) *snapshotBuilder {
	b.trace(reqID, file, line)
	b.snap.Coverage = append(b.snap.Coverage, facts.CoverageLink{
		ReqID:    reqID,
		RunName:  "nightly",
		RunDate:  runDate,
		TestName: testName,
		Filepath: file,
		Line:     line,
	})
	return b
}

func (b *snapshotBuilder) verify(reqID string) *snapshotBuilder {
	b.snap.Verifications = append(b.snap.Verifications, facts.ManualVerification{
		ReqID:      reqID,
		ReviewName: "release-review",
		ReviewDate: runDate,
	})
	return b
}

func (b *snapshotBuilder) compute(t *testing.T) *Result {
	t.Helper()
	res, err := Compute(&b.snap)
	require.NoError(t, err)
	return res
}

func idx(t *testing.T, r *Result, id string) int {
	t.Helper()
	i, ok := r.Closure().Index(id)
	require.True(t, ok, "requirement %s not in closure", id)
	return i
}

func TestCompute_LeavesNeverIndirectlySatisfied(t *testing.T) {
	res := newSnapshot().
		req("root", facts.AnnotationNone).
		req("a", facts.AnnotationNone, "root").
		req("b", facts.AnnotationNone, "root").
		trace("a", "src/a.go", 10).
		compute(t)

	for _, id := range []string{"a", "b"} {
		i := idx(t, res, id)
		require.True(t, res.Closure().IsLeaf(i))
		assert.False(t, res.IndirectlyTraced(i), "leaf %s", id)
		assert.False(t, res.IndirectlyCovered(i), "leaf %s", id)
	}
}

func TestCompute_IndirectTraceRequiresAllChildren(t *testing.T) {
	b := newSnapshot().
		req("root", facts.AnnotationNone).
		req("a", facts.AnnotationNone, "root").
		req("b", facts.AnnotationNone, "root").
		trace("a", "src/a.go", 10)

	res := b.compute(t)
	root := idx(t, res, "root")
	assert.False(t, res.IndirectlyTraced(root), "one child untraced")
	assert.False(t, res.Traced(root))

	b.trace("b", "src/b.go", 20)
	res = b.compute(t)
	root = idx(t, res, "root")
	assert.True(t, res.IndirectlyTraced(root), "all children traced")
	assert.True(t, res.Traced(root))
	assert.False(t, res.DirectlyTraced(root))
}

func TestCompute_TracedIsOrShortcut(t *testing.T) {
	// Spec example: root -> {a, b}; a has evidence, b has none. A direct
	// trace on root makes it Traced but never FullyTraced.
	b := newSnapshot().
		req("root", facts.AnnotationNone).
		req("a", facts.AnnotationNone, "root").
		req("b", facts.AnnotationNone, "root").
		test("t1", facts.StatePassed).
		cover("a", "t1", "src/a.go", 10)

	res := b.compute(t)
	root := idx(t, res, "root")
	assert.False(t, res.Traced(root))
	assert.False(t, res.Covered(root))
	assert.False(t, res.FullyTraced(root))

	b.trace("root", "docs/design.md", 3)
	res = b.compute(t)
	root = idx(t, res, "root")
	assert.True(t, res.Traced(root), "direct trace on root is an OR-shortcut")
	assert.False(t, res.FullyTraced(root), "leaf b is still untraced")
}

func TestCompute_FullyTracedImpliesTraced(t *testing.T) {
	res := newSnapshot().
		req("root", facts.AnnotationNone).
		req("mid", facts.AnnotationNone, "root").
		req("leaf1", facts.AnnotationNone, "mid").
		req("leaf2", facts.AnnotationNone, "mid").
		req("leaf3", facts.AnnotationNone, "root").
		trace("leaf1", "src/a.go", 1).
		trace("leaf2", "src/b.go", 2).
		trace("leaf3", "src/c.go", 3).
		compute(t)

	for i := 0; i < res.Closure().Len(); i++ {
		if res.FullyTraced(i) {
			assert.True(t, res.Traced(i), "FullyTraced must imply Traced for %s", res.Closure().ID(i))
		}
	}
	root := idx(t, res, "root")
	assert.True(t, res.FullyTraced(root))
}

func TestCompute_FullyTracedIgnoresIntermediateDirectTraces(t *testing.T) {
	// mid is directly traced, but its leaf is not: the subtree is not
	// fully traced even though every level is "traced".
	res := newSnapshot().
		req("root", facts.AnnotationNone).
		req("mid", facts.AnnotationNone, "root").
		req("leaf", facts.AnnotationNone, "mid").
		trace("mid", "src/mid.go", 5).
		trace("root", "src/root.go", 1).
		compute(t)

	root := idx(t, res, "root")
	assert.True(t, res.Traced(root))
	assert.False(t, res.FullyTraced(root))
}

func TestCompute_FailedCoveredPropagatesToAllAncestors(t *testing.T) {
	res := newSnapshot().
		req("root", facts.AnnotationNone).
		req("mid", facts.AnnotationNone, "root").
		req("leaf", facts.AnnotationNone, "mid").
		test("t-ok", facts.StatePassed).
		test("t-bad", facts.StateFailed).
		cover("root", "t-ok", "src/root.go", 1).
		cover("leaf", "t-bad", "src/leaf.go", 9).
		compute(t)

	for _, id := range []string{"leaf", "mid", "root"} {
		assert.True(t, res.FailedCovered(idx(t, res, id)), "%s must inherit the failure", id)
	}
}

func TestCompute_PassedAndFailedAreExclusive(t *testing.T) {
	res := newSnapshot().
		req("root", facts.AnnotationNone).
		req("a", facts.AnnotationNone, "root").
		req("b", facts.AnnotationNone, "root").
		test("t-ok", facts.StatePassed).
		test("t-bad", facts.StateFailed).
		cover("a", "t-ok", "src/a.go", 1).
		cover("b", "t-bad", "src/b.go", 2).
		compute(t)

	for i := 0; i < res.Closure().Len(); i++ {
		assert.False(t, res.PassedCovered(i) && res.FailedCovered(i),
			"%s cannot be both passed and failed", res.Closure().ID(i))
	}
	assert.True(t, res.PassedCovered(idx(t, res, "a")))
	assert.False(t, res.PassedCovered(idx(t, res, "b")))
}

func TestCompute_SkippedAndPendingCountAsNotPassed(t *testing.T) {
	for _, state := range []facts.TestState{facts.StateSkipped, facts.StatePending} {
		res := newSnapshot().
			req("a", facts.AnnotationNone).
			test("t", state).
			cover("a", "t", "src/a.go", 1).
			compute(t)

		a := idx(t, res, "a")
		assert.True(t, res.DirectlyCovered(a), "state %v still counts as coverage evidence", state)
		assert.True(t, res.FailedCovered(a), "state %v is not a pass", state)
		assert.False(t, res.PassedCovered(a))
	}
}

func TestCompute_AnnotationPropagatesDownward(t *testing.T) {
	res := newSnapshot().
		req("root", facts.AnnotationDeprecated).
		req("child", facts.AnnotationNone, "root").
		req("grandchild", facts.AnnotationNone, "child").
		req("other", facts.AnnotationManual).
		req("other.sub", facts.AnnotationNone, "other").
		compute(t)

	for _, id := range []string{"root", "child", "grandchild"} {
		assert.True(t, res.Deprecated(idx(t, res, id)), "%s effectively deprecated", id)
	}
	assert.False(t, res.Deprecated(idx(t, res, "other")))
	assert.True(t, res.Manual(idx(t, res, "other")))
	assert.True(t, res.Manual(idx(t, res, "other.sub")))
	assert.False(t, res.Manual(idx(t, res, "root")))
}

func TestCompute_DeprecatedWithEvidenceIsInvalid(t *testing.T) {
	res := newSnapshot().
		req("idle", facts.AnnotationDeprecated).
		req("old", facts.AnnotationDeprecated).
		req("old.sub", facts.AnnotationNone, "old").
		trace("old.sub", "src/legacy.go", 42).
		compute(t)

	assert.True(t, res.Invalid(idx(t, res, "old.sub")), "inherited deprecation plus trace")
	assert.True(t, res.Invalid(idx(t, res, "old")), "indirectly traced through its only child")
	assert.False(t, res.Invalid(idx(t, res, "idle")), "deprecated but untraced is fine")
	assert.Equal(t, []string{"old", "old.sub"}, res.InvalidIDs())
}

func TestCompute_Verified(t *testing.T) {
	res := newSnapshot().
		req("m", facts.AnnotationManual).
		req("n", facts.AnnotationManual).
		verify("m").
		compute(t)

	assert.True(t, res.Verified(idx(t, res, "m")))
	assert.False(t, res.Verified(idx(t, res, "n")))
}

func TestCompute_Idempotent(t *testing.T) {
	b := newSnapshot().
		req("root", facts.AnnotationNone).
		req("a", facts.AnnotationNone, "root").
		req("b", facts.AnnotationDeprecated, "root").
		test("t1", facts.StatePassed).
		test("t2", facts.StateFailed).
		cover("a", "t1", "src/a.go", 1).
		cover("b", "t2", "src/b.go", 2).
		trace("root", "docs/root.md", 1)

	first := b.compute(t)
	second := b.compute(t)

	require.Equal(t, first.Closure().Len(), second.Closure().Len())
	for i := 0; i < first.Closure().Len(); i++ {
		assert.Equal(t, first.Traced(i), second.Traced(i))
		assert.Equal(t, first.FullyTraced(i), second.FullyTraced(i))
		assert.Equal(t, first.Covered(i), second.Covered(i))
		assert.Equal(t, first.FailedCovered(i), second.FailedCovered(i))
		assert.Equal(t, first.PassedCovered(i), second.PassedCovered(i))
		assert.Equal(t, first.Invalid(i), second.Invalid(i))
	}
}

func TestCompute_CyclicHierarchyAbortsBeforeDerivation(t *testing.T) {
	b := newSnapshot().
		req("a", facts.AnnotationNone, "b").
		req("b", facts.AnnotationNone)
	b.snap.Edges = append(b.snap.Edges, facts.HierarchyEdge{ChildID: "b", ParentID: "a"})

	_, err := Compute(&b.snap)
	var cycleErr *graph.CyclicHierarchyError
	require.True(t, errors.As(err, &cycleErr))
}

func TestCompute_CoverageOfUnknownTestCountsAsFailed(t *testing.T) {
	// A link whose test record is missing cannot prove a pass.
	b := newSnapshot().
		req("a", facts.AnnotationNone).
		cover("a", "ghost-test", "src/a.go", 1)

	res := b.compute(t)
	a := idx(t, res, "a")
	assert.True(t, res.DirectlyCovered(a))
	assert.True(t, res.FailedCovered(a))
}
