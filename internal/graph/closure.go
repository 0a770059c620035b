// Package graph computes the transitive closure of the requirement
// hierarchy.
//
// Requirements are held in an arena addressed by stable integer index, with
// child/parent adjacency stored as index lists. All downstream status
// computation (internal/status) runs over these indices instead of
// requirement IDs, so per-node work is slice lookups rather than map
// queries, and cycle detection is a plain visited-set check during
// traversal.
package graph

import (
	"fmt"

	"github.com/reqtrace/reqtrace/internal/facts"
)

// CyclicHierarchyError reports that the hierarchy edge set contains a cycle.
// The edge named is one edge on the cycle; following parents from ChildID
// eventually reaches ChildID again.
//
// A cyclic hierarchy is fatal: no derived relation is computed from it.
type CyclicHierarchyError struct {
	ChildID  string
	ParentID string
}

func (e *CyclicHierarchyError) Error() string {
	return fmt.Sprintf("cyclic hierarchy: edge child=%q parent=%q closes a cycle", e.ChildID, e.ParentID)
}

// UnknownRequirementError reports a hierarchy edge referencing a requirement
// that is not part of the arena. The store's foreign keys should make this
// impossible; it is surfaced as a distinct error rather than skipped so a
// corrupted fact base cannot silently produce a wrong closure.
type UnknownRequirementError struct {
	ReqID string
}

func (e *UnknownRequirementError) Error() string {
	return fmt.Sprintf("hierarchy edge references unknown requirement %q", e.ReqID)
}

// Closure is the computed descendant relation over the requirement
// hierarchy.
//
// A Closure is immutable after Build and safe for concurrent reads.
type Closure struct {
	ids   []string
	index map[string]int

	children [][]int
	parents  [][]int

	// order lists node indices leaves-first: every node appears after all
	// of its children. Status propagation walks this order exactly once
	// per relation.
	order []int

	leaf []bool

	// leafSet[i] is the set of leaf descendants of node i (including i
	// itself when i is a leaf), stored as a bitset over node indices.
	leafSet []bitset
}

// Build constructs the closure for the given requirement IDs and hierarchy
// edges.
//
// The id slice fixes the arena: node i is ids[i]. Edges referencing IDs not
// present in the slice yield an UnknownRequirementError. A cyclic edge set
// yields a CyclicHierarchyError naming an offending edge; nothing is derived
// from a cyclic hierarchy.
func Build(ids []string, edges []facts.HierarchyEdge) (*Closure, error) {
	n := len(ids)
	c := &Closure{
		ids:      ids,
		index:    make(map[string]int, n),
		children: make([][]int, n),
		parents:  make([][]int, n),
		leaf:     make([]bool, n),
		leafSet:  make([]bitset, n),
	}
	for i, id := range ids {
		c.index[id] = i
	}

	seen := make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		parent, ok := c.index[e.ParentID]
		if !ok {
			return nil, &UnknownRequirementError{ReqID: e.ParentID}
		}
		child, ok := c.index[e.ChildID]
		if !ok {
			return nil, &UnknownRequirementError{ReqID: e.ChildID}
		}
		// Duplicate edges would skew the pending-children counters below.
		key := [2]int{parent, child}
		if seen[key] {
			continue
		}
		seen[key] = true
		c.children[parent] = append(c.children[parent], child)
		c.parents[child] = append(c.parents[child], parent)
	}

	for i := range c.children {
		c.leaf[i] = len(c.children[i]) == 0
	}

	if err := c.buildOrder(); err != nil {
		return nil, err
	}
	c.buildLeafSets()

	return c, nil
}

// buildOrder computes the leaves-first order via Kahn's algorithm, peeling
// nodes whose children are all already ordered. If not every node can be
// ordered, the remainder contains a cycle, which is located by traversal and
// reported by edge.
func (c *Closure) buildOrder() error {
	n := len(c.ids)
	pending := make([]int, n)
	var queue []int
	for i := 0; i < n; i++ {
		pending[i] = len(c.children[i])
		if pending[i] == 0 {
			queue = append(queue, i)
		}
	}

	c.order = make([]int, 0, n)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		c.order = append(c.order, node)
		for _, parent := range c.parents[node] {
			pending[parent]--
			if pending[parent] == 0 {
				queue = append(queue, parent)
			}
		}
	}

	if len(c.order) < n {
		return c.findCycle(pending)
	}
	return nil
}

// findCycle locates one edge on a cycle among the nodes Kahn's algorithm
// could not order. Every such node sits on or above a cycle, so walking
// child edges within the unordered set must revisit a node on the current
// path.
func (c *Closure) findCycle(pending []int) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on current path
		black = 2 // fully explored
	)
	color := make([]int, len(c.ids))

	var edge *CyclicHierarchyError
	var visit func(node int)
	visit = func(node int) {
		color[node] = gray
		for _, child := range c.children[node] {
			if edge != nil {
				return
			}
			if pending[child] == 0 {
				continue // below every cycle, already ordered
			}
			switch color[child] {
			case gray:
				edge = &CyclicHierarchyError{ChildID: c.ids[child], ParentID: c.ids[node]}
				return
			case white:
				visit(child)
			}
		}
		color[node] = black
	}

	for i := range c.ids {
		if pending[i] > 0 && color[i] == white {
			visit(i)
			if edge != nil {
				return edge
			}
		}
	}

	// Unreachable when called with an incomplete Kahn order.
	return &CyclicHierarchyError{}
}

// buildLeafSets computes per-node leaf-descendant bitsets leaves-first.
// Shared descendants in the DAG are handled by set union, so a leaf reached
// through two intermediate parents is counted once.
func (c *Closure) buildLeafSets() {
	n := len(c.ids)
	for _, node := range c.order {
		set := newBitset(n)
		if c.leaf[node] {
			set.set(node)
		}
		for _, child := range c.children[node] {
			set.union(c.leafSet[child])
		}
		c.leafSet[node] = set
	}
}

// Len returns the number of requirements in the arena.
func (c *Closure) Len() int { return len(c.ids) }

// ID returns the requirement ID of node i.
func (c *Closure) ID(i int) string { return c.ids[i] }

// Index returns the node index for a requirement ID.
func (c *Closure) Index(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// Children returns the direct child indices of node i. The returned slice
// must not be modified.
func (c *Closure) Children(i int) []int { return c.children[i] }

// Parents returns the direct parent indices of node i. The returned slice
// must not be modified.
func (c *Closure) Parents(i int) []int { return c.parents[i] }

// IsLeaf reports whether node i has no children.
func (c *Closure) IsLeaf(i int) bool { return c.leaf[i] }

// Order returns node indices leaves-first: each node appears after all of
// its children. The returned slice must not be modified.
func (c *Closure) Order() []int { return c.order }

// LeafDescendants returns the indices of all leaf descendants of node i,
// including i itself when i is a leaf, in ascending index order.
func (c *Closure) LeafDescendants(i int) []int {
	return c.leafSet[i].members()
}

// Descendants returns the indices of all transitive descendants of node i,
// excluding i itself, in ascending index order.
func (c *Closure) Descendants(i int) []int {
	marked := newBitset(len(c.ids))
	stack := append([]int(nil), c.children[i]...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if marked.get(node) {
			continue
		}
		marked.set(node)
		stack = append(stack, c.children[node]...)
	}
	return marked.members()
}
