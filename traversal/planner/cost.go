package planner

import (
	"context"
	"fmt"
	"math"

	"github.com/wbrown/janus-traversal/traversal"
	"github.com/wbrown/janus-traversal/traversal/stats"
)

// planNode wraps a caller's node for one planning call: its position in the
// input (the tie-breaker everywhere) and its cached cardinality.
type planNode struct {
	node      *traversal.Node
	ordinal   int
	card      float64
	estimated bool
}

func (pn *planNode) String() string {
	return pn.node.String()
}

// costModel answers cardinalities and set products. Each estimate is asked
// from the oracle at most once per planning call.
type costModel struct {
	ctx    context.Context
	oracle stats.Oracle
	nodes  []*planNode
	byNode map[*traversal.Node]*planNode
	stats  *SearchStats
}

func newCostModel(ctx context.Context, oracle stats.Oracle, nodes []*traversal.Node, st *SearchStats) (*costModel, error) {
	cm := &costModel{
		ctx:    ctx,
		oracle: oracle,
		nodes:  make([]*planNode, len(nodes)),
		byNode: make(map[*traversal.Node]*planNode, len(nodes)),
		stats:  st,
	}
	for i, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("%w: nil node at position %d", ErrInvalidTopology, i)
		}
		if _, dup := cm.byNode[n]; dup {
			return nil, fmt.Errorf("%w: node %s listed twice", ErrInvalidTopology, n)
		}
		pn := &planNode{node: n, ordinal: i}
		cm.nodes[i] = pn
		cm.byNode[n] = pn
	}
	return cm, nil
}

// lookup returns the planning wrapper of n, or nil if n is not being planned
func (cm *costModel) lookup(n *traversal.Node) *planNode {
	return cm.byNode[n]
}

// cardinality returns the cached estimate for pn, asking the oracle the
// first time. Oracle errors are wrapped, not replaced.
func (cm *costModel) cardinality(pn *planNode) (float64, error) {
	if pn.estimated {
		return pn.card, nil
	}

	cm.stats.OracleCalls++
	est, err := cm.oracle.Estimate(cm.ctx, pn.node)
	if err != nil {
		return 0, fmt.Errorf("estimate %s: %w", pn, err)
	}
	if math.IsNaN(est) || est < 0 {
		return 0, fmt.Errorf("estimate %s: %w: %v", pn, ErrInvalidEstimate, est)
	}

	pn.card = saturate(est)
	pn.estimated = true
	return pn.card, nil
}

// estimateAll fills the cache for every node in nodes
func (cm *costModel) estimateAll(nodes []*planNode) error {
	for _, pn := range nodes {
		if _, err := cm.cardinality(pn); err != nil {
			return err
		}
	}
	return nil
}

// product is the cross-join size of the set: 0 when empty, otherwise the
// saturating product of member cardinalities.
func (cm *costModel) product(set *remainingSet) (float64, error) {
	cm.stats.ProductEvaluations++
	if set.Len() == 0 {
		return 0, nil
	}

	cost := 1.0
	for _, pn := range set.nodes {
		card, err := cm.cardinality(pn)
		if err != nil {
			return 0, err
		}
		cost = saturatingMul(cost, card)
	}
	return cost, nil
}

// Costs live in [0, MaxFloat64]; arithmetic clamps instead of reaching +Inf.

func saturate(x float64) float64 {
	if x > math.MaxFloat64 {
		return math.MaxFloat64
	}
	return x
}

func saturatingMul(a, b float64) float64 {
	return saturate(a * b)
}

func saturatingAdd(a, b float64) float64 {
	return saturate(a + b)
}
