package planner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/golang-collections/collections/stack"
)

const defaultCancelCheckInterval = 1024

// searchFrame is the state of one remaining set while it sits on the search
// stack. A frame is visited twice: once to enter it (compute its entry cost
// and push its children), and once more to finalize it after every child
// frame above it has been popped.
type searchFrame struct {
	set      *remainingSet
	eligible []*planNode // nodes of set whose children are all eliminated
	prefix   float64     // path cost of the ancestors, excluding this frame
	entered  bool
	entry    float64 // product of the set, valid once entered
	children []*remainingSet
}

// search is the branch-and-bound dynamic program over elimination orders.
// It owns all of its state; one search serves one planning call.
type search struct {
	ctx      context.Context
	cost     *costModel
	topo     *topology
	memo     *memoTable
	stats    *SearchStats
	pruning  bool
	interval int

	best     float64 // cheapest complete elimination cost seen so far
	pathCost float64 // entry costs of the frames on the active path
}

func newSearch(ctx context.Context, cm *costModel, topo *topology, opts Options, st *SearchStats) *search {
	interval := opts.CancelCheckInterval
	if interval <= 0 {
		interval = defaultCancelCheckInterval
	}
	return &search{
		ctx:      ctx,
		cost:     cm,
		topo:     topo,
		memo:     newMemoTable(),
		stats:    st,
		pruning:  !opts.DisablePruning,
		interval: interval,
		best:     math.Inf(1),
	}
}

// run explores every elimination order of full, starting from the given
// eligible nodes, and returns the memo entry of the full set
func (s *search) run(full *remainingSet, eligible []*planNode) (*memoEntry, error) {
	frames := stack.New()
	frames.Push(&searchFrame{set: full, eligible: eligible})

	for frames.Len() > 0 {
		s.stats.Iterations++
		if s.stats.Iterations%s.interval == 0 {
			if err := s.ctx.Err(); err != nil {
				return nil, fmt.Errorf("search stopped after %d iterations: %w", s.stats.Iterations, err)
			}
		}

		frame := frames.Peek().(*searchFrame)
		if frame.entered {
			frames.Pop()
			s.finalize(frame)
			continue
		}

		next, pruned, err := s.enter(frame)
		if err != nil {
			return nil, err
		}
		if pruned {
			frames.Pop()
			continue
		}
		// Pushed in reverse so the cheapest child is explored first
		for i := len(next) - 1; i >= 0; i-- {
			frames.Push(next[i])
		}
	}

	s.stats.MemoEntries = s.memo.Len()

	root := s.memo.get(full)
	if root == nil || root.dead() {
		return nil, fmt.Errorf("%w: no complete elimination order for %s", ErrInvalidTopology, full)
	}
	return root, nil
}

// enter computes the frame's entry cost and either prunes it or returns the
// child frames still to be searched
func (s *search) enter(frame *searchFrame) ([]*searchFrame, bool, error) {
	entry, err := s.cost.product(frame.set)
	if err != nil {
		return nil, false, err
	}
	frame.entered = true
	frame.entry = entry
	s.pathCost = saturatingAdd(frame.prefix, entry)

	if s.pruning && s.pathCost >= s.best {
		s.stats.ShortCircuits++
		s.pathCost = frame.prefix
		return nil, true, nil
	}

	if frame.set.Len() <= 1 {
		return nil, false, nil
	}
	if len(frame.eligible) == 0 {
		return nil, false, fmt.Errorf("%w: nothing can be eliminated from %s", ErrInvalidTopology, frame.set)
	}

	order, err := s.byCardinality(frame.eligible)
	if err != nil {
		return nil, false, err
	}

	var pending []*searchFrame
	for _, r := range order {
		nextSet := frame.set.without(r)
		frame.children = append(frame.children, nextSet)

		if s.memo.usable(nextSet, s.pathCost) != nil {
			s.stats.MemoHits++
			continue
		}

		nextEligible := make([]*planNode, 0, len(frame.eligible))
		for _, e := range frame.eligible {
			if e != r {
				nextEligible = append(nextEligible, e)
			}
		}
		if parent := s.topo.becomesEligible(r, nextSet); parent != nil {
			nextEligible = append(nextEligible, parent)
		}

		pending = append(pending, &searchFrame{
			set:      nextSet,
			eligible: nextEligible,
			prefix:   s.pathCost,
		})
	}
	return pending, false, nil
}

// finalize records the cheapest completion of the frame's set among its
// children and closes the frame
func (s *search) finalize(frame *searchFrame) {
	s.pathCost = frame.prefix
	childPrefix := saturatingAdd(frame.prefix, frame.entry)

	bestCost := math.Inf(1)
	var bestNext *remainingSet
	bound := 0.0
	for _, child := range frame.children {
		e := s.memo.usable(child, childPrefix)
		if e == nil {
			// The child was cut off behind this frame's prefix
			bound = math.Max(bound, frame.prefix)
			continue
		}
		bound = math.Max(bound, e.bound-frame.entry)
		if !e.dead() && e.cost() < bestCost {
			bestCost, bestNext = e.cost(), child
		}
	}

	cost := math.Inf(1)
	switch {
	case frame.set.Len() <= 1:
		cost = frame.entry
	case bestNext != nil:
		cost = saturatingAdd(frame.entry, bestCost)
	}

	if s.memo.put(frame.set, cost, bestNext, bound) {
		s.stats.Refinements++
	}

	if s.pruning && !math.IsInf(cost, 1) {
		s.best = math.Min(s.best, saturatingAdd(frame.prefix, cost))
	}
}

// byCardinality returns a copy of nodes ordered by cardinality, then by input
// position
func (s *search) byCardinality(nodes []*planNode) ([]*planNode, error) {
	if err := s.cost.estimateAll(nodes); err != nil {
		return nil, err
	}
	order := append([]*planNode(nil), nodes...)
	sort.Slice(order, func(i, j int) bool {
		if order[i].card != order[j].card {
			return order[i].card < order[j].card
		}
		return order[i].ordinal < order[j].ordinal
	})
	return order, nil
}
