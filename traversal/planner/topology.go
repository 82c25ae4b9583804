package planner

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/wbrown/janus-traversal/traversal"
)

// topology answers the structural questions of the search: which nodes are
// eliminable at the start, and which parent becomes eliminable once its
// last child is gone. A node may only be eliminated after all its children.
type topology struct {
	parents  map[*planNode]*planNode
	siblings map[*planNode][]*planNode // parent -> its children, by ordinal
}

// newTopology checks the tree against the planned nodes and precomputes the
// sibling group of every parent
func newTopology(cm *costModel, arb *traversal.Arborescence) (*topology, error) {
	t := &topology{
		parents:  make(map[*planNode]*planNode),
		siblings: make(map[*planNode][]*planNode),
	}

	for _, edge := range arb.Edges() {
		child, parent := cm.lookup(edge.Child), cm.lookup(edge.Parent)
		if child == nil {
			return nil, fmt.Errorf("%w: tree node %s is not being planned", ErrInvalidTopology, edge.Child)
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: tree node %s is not being planned", ErrInvalidTopology, edge.Parent)
		}
		if child == parent {
			return nil, fmt.Errorf("%w: node %s is its own parent", ErrInvalidTopology, child)
		}
		t.parents[child] = parent
	}

	// Sibling groups come from the tree's own child sets
	for _, parent := range t.parents {
		if _, done := t.siblings[parent]; done {
			continue
		}
		children := arb.Children(parent.node).ToSlice()
		group := make([]*planNode, len(children))
		for i, c := range children {
			group[i] = cm.lookup(c)
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ordinal < group[j].ordinal })
		t.siblings[parent] = group
	}

	if err := t.checkAcyclic(cm.nodes); err != nil {
		return nil, err
	}
	return t, nil
}

// checkAcyclic walks every parent chain; a chain that revisits a node is a cycle
func (t *topology) checkAcyclic(nodes []*planNode) error {
	done := mapset.NewThreadUnsafeSet[*planNode]()
	for _, start := range nodes {
		path := mapset.NewThreadUnsafeSet[*planNode]()
		for n := start; n != nil && !done.Contains(n); n = t.parents[n] {
			if !path.Add(n) {
				return fmt.Errorf("%w: cycle through %s", ErrInvalidTopology, n)
			}
		}
		done = done.Union(path)
	}
	return nil
}

// leaves returns the nodes no other node depends on, by ordinal. Nodes that
// take no part in any edge count as leaves too.
func (t *topology) leaves(nodes []*planNode) []*planNode {
	var out []*planNode
	for _, pn := range nodes {
		if _, isParent := t.siblings[pn]; !isParent {
			out = append(out, pn)
		}
	}
	return out
}

func (t *topology) parentOf(pn *planNode) *planNode {
	return t.parents[pn]
}

// siblingsOf returns all children of pn's parent, pn included
func (t *topology) siblingsOf(pn *planNode) []*planNode {
	parent := t.parents[pn]
	if parent == nil {
		return []*planNode{pn}
	}
	return t.siblings[parent]
}

// becomesEligible returns the parent of removed if removing it left the
// parent with no children in remaining
func (t *topology) becomesEligible(removed *planNode, remaining *remainingSet) *planNode {
	parent := t.parents[removed]
	if parent == nil {
		return nil
	}
	siblings := t.siblingsOf(removed)
	if len(siblings) == 1 {
		return parent
	}
	for _, s := range siblings {
		if remaining.Contains(s) {
			return nil
		}
	}
	return parent
}
