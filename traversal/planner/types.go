package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wbrown/janus-traversal/traversal"
	"github.com/wbrown/janus-traversal/traversal/annotations"
)

var (
	// ErrInvalidTopology reports a dependency tree the search cannot order:
	// a cycle, a node missing from the planned set, or a remaining set
	// with nothing eliminable.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrInvalidEstimate reports a negative or NaN cardinality estimate
	ErrInvalidEstimate = errors.New("invalid cardinality estimate")
)

// Options configures the planner
type Options struct {
	DisablePruning      bool                   // Explore every elimination order (branch-and-bound off)
	CancelCheckInterval int                    // Search iterations between context checks (default 1024)
	Collector           *annotations.Collector // Receives planning events (optional)
}

// SearchStats are the effort counters of one planning call
type SearchStats struct {
	Iterations         int // Stack iterations of the search loop
	ProductEvaluations int // Cost products computed
	OracleCalls        int // Estimates requested from the oracle
	ShortCircuits      int // Frames pruned by branch-and-bound
	MemoHits           int // Child states answered from the memo table
	MemoEntries        int // Distinct remaining sets memoised
	Refinements        int // Memo entries recomputed under a cheaper path
}

// Plan is the ordered fragment sequence for one pattern
type Plan struct {
	Fragments []traversal.Fragment // Steps in execution order
	Order     []*traversal.Node    // Node visitation order
	Cost      float64              // Total cost of the chosen elimination order
	Stats     SearchStats
}

// Table renders the fragments as a markdown table
func (p *Plan) Table() string {
	return annotations.NewPlanRenderer().RenderFragments(p.Fragments)
}

// String returns a human-readable representation of the plan
func (p *Plan) String() string {
	var sb strings.Builder
	sb.WriteString("Traversal Plan:\n")
	sb.WriteString(fmt.Sprintf("  Cost: %.6g\n", p.Cost))
	sb.WriteString(fmt.Sprintf("  Order: %s\n", annotations.NewPlanRenderer().RenderOrder(p.Order)))
	sb.WriteString("  Fragments:\n")
	for i, f := range p.Fragments {
		sb.WriteString(fmt.Sprintf("    %d. %s\n", i+1, f))
	}
	return sb.String()
}
