// Package planner orders the nodes of a graph pattern for execution and lays
// their fragments out as a linear plan.
//
// File organization:
//   - planner.go: Planner struct and the Plan() entry point
//   - cost.go: cardinality cache and set cost products
//   - topology.go: dependency tree questions (leaves, eligibility, validation)
//   - remaining_set.go: remaining node sets and the memo table
//   - search.go: branch-and-bound search over elimination orders
//   - sequence.go: order extraction and fragment sequencing
//
// Start with Plan() in planner.go to understand the planning flow.
package planner

import (
	"context"
	"errors"
	"time"

	"github.com/wbrown/janus-traversal/traversal"
	"github.com/wbrown/janus-traversal/traversal/annotations"
	"github.com/wbrown/janus-traversal/traversal/stats"
)

// Planner finds the cheapest visitation order of a pattern's dependency tree.
// It holds no per-call state and is safe for concurrent use when its oracle
// is.
type Planner struct {
	oracle  stats.Oracle
	options Options
}

// NewPlanner creates a planner estimating cardinalities with oracle
func NewPlanner(oracle stats.Oracle, options Options) *Planner {
	if oracle == nil {
		oracle = stats.NewStatistics() // Default estimate for every node
	}
	return &Planner{
		oracle:  oracle,
		options: options,
	}
}

// Options returns the planner options
func (p *Planner) Options() Options {
	return p.options
}

// Plan returns the minimum-cost plan for nodes. arb is the child→parent
// dependency tree over nodes and edges the fragments walking its edges; both
// may be nil. The fragment groups of every node are drained into the plan.
func (p *Planner) Plan(ctx context.Context, nodes []*traversal.Node, arb *traversal.Arborescence, edges traversal.EdgeFragments) (*Plan, error) {
	collector := p.options.Collector
	start := time.Now()

	collector.AddTiming(annotations.PlanInvoked, start, map[string]interface{}{
		"node.count": len(nodes),
		"edge.count": arb.Len(),
	})

	var st SearchStats
	cm, err := newCostModel(ctx, p.oracle, nodes, &st)
	if err != nil {
		return nil, p.fail(annotations.ErrorPlanTopology, start, err)
	}
	topo, err := newTopology(cm, arb)
	if err != nil {
		return nil, p.fail(annotations.ErrorPlanTopology, start, err)
	}

	if len(nodes) == 0 {
		return &Plan{}, nil
	}

	if err := cm.estimateAll(cm.nodes); err != nil {
		return nil, p.fail(annotations.ErrorStats, start, err)
	}
	if collector.Enabled() {
		for _, pn := range cm.nodes {
			collector.Add(annotations.Event{
				Name:  annotations.StatsEstimate,
				Start: start,
				End:   start,
				Data: map[string]interface{}{
					"node":     pn.String(),
					"estimate": pn.card,
				},
			})
		}
	}

	full := newRemainingSet(cm.nodes)
	searchStart := time.Now()
	s := newSearch(ctx, cm, topo, p.options, &st)
	root, err := s.run(full, topo.leaves(cm.nodes))
	if err != nil {
		name := annotations.ErrorPlanInternal
		if errors.Is(err, ErrInvalidTopology) {
			name = annotations.ErrorPlanTopology
		}
		return nil, p.fail(name, start, err)
	}

	collector.AddTiming(annotations.PlanSearchComplete, searchStart, map[string]interface{}{
		"cost":                  root.cost(),
		"memo.entries":          st.MemoEntries,
		"search.iterations":     st.Iterations,
		"search.short-circuits": st.ShortCircuits,
	})

	order, err := extractOrder(s.memo, full)
	if err != nil {
		return nil, p.fail(annotations.ErrorPlanTopology, start, err)
	}

	plan := &Plan{
		Fragments: buildPlan(order, topo, edges),
		Order:     nodesOf(order),
		Cost:      root.cost(),
		Stats:     st,
	}

	if collector.Enabled() {
		renderer := annotations.NewPlanRenderer()
		collector.AddTiming(annotations.PlanCreated, start, map[string]interface{}{
			"fragment.count": len(plan.Fragments),
			"order":          renderer.RenderOrder(plan.Order),
			"plan":           renderer.RenderFragments(plan.Fragments),
		})
	}

	return plan, nil
}

// fail records err under the given event name and returns it unchanged
func (p *Planner) fail(name string, start time.Time, err error) error {
	p.options.Collector.AddTiming(name, start, map[string]interface{}{
		"error": err.Error(),
	})
	return err
}
