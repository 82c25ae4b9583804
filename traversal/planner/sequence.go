package planner

import (
	"fmt"

	"github.com/wbrown/janus-traversal/traversal"
)

// extractOrder walks the best-next chain from the full set and returns the
// nodes in visitation order. The chain yields nodes last-visited-first, so
// the collected list is reversed before it is returned.
func extractOrder(memo *memoTable, full *remainingSet) ([]*planNode, error) {
	eliminated := make([]*planNode, 0, full.Len())

	for set := full; ; {
		e := memo.get(set)
		if e == nil || e.dead() {
			return nil, fmt.Errorf("%w: no memoised completion for %s", ErrInvalidTopology, set)
		}

		next := e.next()
		if next == nil {
			if set.Len() != 1 {
				return nil, fmt.Errorf("%w: chain ends at %s", ErrInvalidTopology, set)
			}
			eliminated = append(eliminated, set.nodes[0])
			break
		}

		removed, ok := set.removedFrom(next)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not follow from %s", ErrInvalidTopology, next, set)
		}
		eliminated = append(eliminated, removed)
		set = next
	}

	for i, j := 0, len(eliminated)-1; i < j; i, j = i+1, j-1 {
		eliminated[i], eliminated[j] = eliminated[j], eliminated[i]
	}
	return eliminated, nil
}

// buildPlan lays out the fragments of each node in visitation order: its
// dependency-free fragments, the fragment walking the edge to its parent,
// then its dependent fragments. Fixed-cost dependent fragments go to the
// front of the plan instead. Fragment groups are drained as they are
// emitted.
func buildPlan(order []*planNode, topo *topology, edges traversal.EdgeFragments) []traversal.Fragment {
	var plan []traversal.Fragment

	for _, pn := range order {
		plan = append(plan, pn.node.DrainFragmentsWithoutDependency()...)

		if parent := topo.parentOf(pn); parent != nil {
			if f := edges.Get(pn.node, parent.node); f != nil {
				plan = append(plan, f)
			}
		}

		for _, f := range pn.node.DrainDependentFragments() {
			if f.HasFixedCost() {
				plan = append([]traversal.Fragment{f}, plan...)
			} else {
				plan = append(plan, f)
			}
		}
	}
	return plan
}

func nodesOf(order []*planNode) []*traversal.Node {
	out := make([]*traversal.Node, len(order))
	for i, pn := range order {
		out[i] = pn.node
	}
	return out
}
