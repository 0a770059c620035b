// Package status derives per-requirement trace, coverage, pass/fail and
// validity relations from a fact snapshot.
//
// All relations are pure functions of the snapshot: Compute reads its inputs
// once, allocates fresh result slices, and never mutates the snapshot or the
// closure. Running Compute twice on the same snapshot yields identical
// results.
//
// Two propagation semantics coexist and must not be conflated:
//
//   - Traced/Covered is an OR-shortcut: a requirement is satisfied by its
//     own direct evidence, or indirectly when every direct child is
//     satisfied.
//   - FullyTraced/FullyCovered is an AND over all leaf descendants: every
//     leaf under the requirement must carry direct evidence, regardless of
//     intermediate direct traces.
//
// FailedCovered overlays both: any non-passed test outcome on the
// requirement or any descendant marks the whole ancestor chain as failed.
package status

import (
	"strings"
	"time"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/graph"
)

// Result holds every derived relation for one snapshot, indexed by closure
// node index. A Result is immutable and safe for concurrent reads.
type Result struct {
	closure *graph.Closure

	directlyTraced   []bool
	indirectlyTraced []bool
	fullyTraced      []bool

	directlyCovered   []bool
	indirectlyCovered []bool
	fullyCovered      []bool

	failedCovered []bool
	passedCovered []bool

	deprecated []bool
	manual     []bool
	invalid    []bool
	verified   []bool
}

// Compute derives all status relations for the snapshot.
//
// The requirement arena is built from snap.Requirements in order; a cyclic
// hierarchy aborts with graph.CyclicHierarchyError before anything is
// derived. Requirements are processed leaves-first so each node's inputs are
// fully resolved when it is visited; a single pass suffices per relation.
func Compute(snap *facts.Snapshot) (*Result, error) {
	ids := make([]string, len(snap.Requirements))
	for i, req := range snap.Requirements {
		ids[i] = req.ID
	}

	closure, err := graph.Build(ids, snap.Edges)
	if err != nil {
		return nil, err
	}
	return computeWithClosure(snap, closure), nil
}

func computeWithClosure(snap *facts.Snapshot, closure *graph.Closure) *Result {
	n := closure.Len()
	r := &Result{
		closure:           closure,
		directlyTraced:    make([]bool, n),
		indirectlyTraced:  make([]bool, n),
		fullyTraced:       make([]bool, n),
		directlyCovered:   make([]bool, n),
		indirectlyCovered: make([]bool, n),
		fullyCovered:      make([]bool, n),
		failedCovered:     make([]bool, n),
		passedCovered:     make([]bool, n),
		deprecated:        make([]bool, n),
		manual:            make([]bool, n),
		invalid:           make([]bool, n),
		verified:          make([]bool, n),
	}

	for _, trace := range snap.Traces {
		if i, ok := closure.Index(trace.ReqID); ok {
			r.directlyTraced[i] = true
		}
	}

	// A coverage link is evidence of a test attempt regardless of outcome;
	// pass/fail is a separate axis. A link whose test never reported a
	// final state (pending) therefore covers but also fails.
	states := testStates(snap)
	directFailed := make([]bool, n)
	for _, link := range snap.Coverage {
		i, ok := closure.Index(link.ReqID)
		if !ok {
			continue
		}
		r.directlyCovered[i] = true
		state, known := states[testKey(link.RunName, link.RunDate, link.TestName)]
		if !known || !state.Passed() {
			directFailed[i] = true
		}
	}

	r.propagateAnnotations(snap)
	r.propagate(directFailed)

	for _, v := range snap.Verifications {
		if i, ok := closure.Index(v.ReqID); ok {
			r.verified[i] = true
		}
	}

	return r
}

// propagateAnnotations computes the effective Deprecated and Manual sets:
// self-annotated seeds plus every descendant reachable from a seed.
func (r *Result) propagateAnnotations(snap *facts.Snapshot) {
	var deprecatedSeeds, manualSeeds []int
	for i, req := range snap.Requirements {
		switch req.Annotation {
		case facts.AnnotationDeprecated:
			deprecatedSeeds = append(deprecatedSeeds, i)
		case facts.AnnotationManual:
			manualSeeds = append(manualSeeds, i)
		}
	}
	markDownward(r.closure, deprecatedSeeds, r.deprecated)
	markDownward(r.closure, manualSeeds, r.manual)
}

// markDownward sets out[i] for every seed and every descendant of a seed.
func markDownward(closure *graph.Closure, seeds []int, out []bool) {
	stack := append([]int(nil), seeds...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[node] {
			continue
		}
		out[node] = true
		stack = append(stack, closure.Children(node)...)
	}
}

// propagate runs the single leaves-first pass over all remaining relations.
// By the time a node is visited, every relation of every child is final.
func (r *Result) propagate(directFailed []bool) {
	c := r.closure
	untracedLeafBelow := make([]bool, c.Len())
	uncoveredLeafBelow := make([]bool, c.Len())

	for _, node := range c.Order() {
		children := c.Children(node)

		if c.IsLeaf(node) {
			// Leaves can never be indirectly satisfied.
			untracedLeafBelow[node] = !r.directlyTraced[node]
			uncoveredLeafBelow[node] = !r.directlyCovered[node]
			r.fullyTraced[node] = r.directlyTraced[node]
			r.fullyCovered[node] = r.directlyCovered[node]
			r.failedCovered[node] = directFailed[node]
		} else {
			allTraced, allCovered := true, true
			for _, child := range children {
				if !r.Traced(child) {
					allTraced = false
				}
				if !r.Covered(child) {
					allCovered = false
				}
				untracedLeafBelow[node] = untracedLeafBelow[node] || untracedLeafBelow[child]
				uncoveredLeafBelow[node] = uncoveredLeafBelow[node] || uncoveredLeafBelow[child]
				r.failedCovered[node] = r.failedCovered[node] || r.failedCovered[child]
			}
			r.indirectlyTraced[node] = allTraced
			r.indirectlyCovered[node] = allCovered
			r.fullyTraced[node] = !untracedLeafBelow[node]
			r.fullyCovered[node] = !uncoveredLeafBelow[node]
			r.failedCovered[node] = r.failedCovered[node] || directFailed[node]
		}

		r.passedCovered[node] = r.Covered(node) && !r.failedCovered[node]
		r.invalid[node] = r.deprecated[node] && r.Traced(node)
	}
}

// testStates builds a lookup from test identity to final outcome.
func testStates(snap *facts.Snapshot) map[string]facts.TestState {
	states := make(map[string]facts.TestState, len(snap.Tests))
	for _, test := range snap.Tests {
		states[testKey(test.RunName, test.RunDate, test.Name)] = test.State
	}
	return states
}

func testKey(runName string, runDate time.Time, testName string) string {
	return strings.Join([]string{runName, runDate.UTC().Format(facts.DateFormat), testName}, "\x00")
}

// Closure returns the hierarchy closure the result was computed over.
func (r *Result) Closure() *graph.Closure { return r.closure }

// DirectlyTraced reports whether node i has at least one trace row.
func (r *Result) DirectlyTraced(i int) bool { return r.directlyTraced[i] }

// IndirectlyTraced reports whether node i is a non-leaf whose direct
// children are all traced.
func (r *Result) IndirectlyTraced(i int) bool { return r.indirectlyTraced[i] }

// Traced reports whether node i is directly or indirectly traced.
func (r *Result) Traced(i int) bool { return r.directlyTraced[i] || r.indirectlyTraced[i] }

// FullyTraced reports whether every leaf descendant of node i is directly
// traced (for a leaf: whether it is directly traced).
func (r *Result) FullyTraced(i int) bool { return r.fullyTraced[i] }

// DirectlyCovered reports whether node i has at least one coverage link.
func (r *Result) DirectlyCovered(i int) bool { return r.directlyCovered[i] }

// IndirectlyCovered reports whether node i is a non-leaf whose direct
// children are all covered.
func (r *Result) IndirectlyCovered(i int) bool { return r.indirectlyCovered[i] }

// Covered reports whether node i is directly or indirectly covered.
func (r *Result) Covered(i int) bool { return r.directlyCovered[i] || r.indirectlyCovered[i] }

// FullyCovered reports whether every leaf descendant of node i is directly
// covered.
func (r *Result) FullyCovered(i int) bool { return r.fullyCovered[i] }

// FailedCovered reports whether any test covering node i or any of its
// descendants did not pass. Pending and skipped outcomes count as failing.
func (r *Result) FailedCovered(i int) bool { return r.failedCovered[i] }

// PassedCovered reports whether node i is covered and nothing under it
// failed.
func (r *Result) PassedCovered(i int) bool { return r.passedCovered[i] }

// Deprecated reports whether node i is effectively deprecated: annotated
// deprecated itself or a descendant of a deprecated requirement.
func (r *Result) Deprecated(i int) bool { return r.deprecated[i] }

// Manual reports whether node i is effectively manual.
func (r *Result) Manual(i int) bool { return r.manual[i] }

// Invalid reports whether node i is effectively deprecated yet still
// traced. Such requirements need manual reconciliation: the evidence should
// have been removed together with the requirement.
func (r *Result) Invalid(i int) bool { return r.invalid[i] }

// Verified reports whether node i has at least one manual verification.
func (r *Result) Verified(i int) bool { return r.verified[i] }

// InvalidIDs returns the requirement IDs flagged invalid, in arena order.
func (r *Result) InvalidIDs() []string {
	var out []string
	for i := 0; i < r.closure.Len(); i++ {
		if r.invalid[i] {
			out = append(out, r.closure.ID(i))
		}
	}
	return out
}
