package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-traversal/traversal"
	"github.com/wbrown/janus-traversal/traversal/annotations"
	"github.com/wbrown/janus-traversal/traversal/fragment"
	"github.com/wbrown/janus-traversal/traversal/stats"
)

// testPattern is a set of variable nodes ?n0..?nk with fixed cardinalities
// and a child→parent map given by input position
type testPattern struct {
	nodes   []*traversal.Node
	parents map[int]int
	cards   map[*traversal.Node]float64
}

func newTestPattern(cards []float64, parents map[int]int) *testPattern {
	tp := &testPattern{
		nodes:   make([]*traversal.Node, len(cards)),
		parents: parents,
		cards:   make(map[*traversal.Node]float64, len(cards)),
	}
	for i, c := range cards {
		n := traversal.NewVarNode(traversal.Variable(fmt.Sprintf("?n%d", i)), "")
		tp.nodes[i] = n
		tp.cards[n] = c
	}
	return tp
}

func (tp *testPattern) arborescence() *traversal.Arborescence {
	m := make(map[*traversal.Node]*traversal.Node, len(tp.parents))
	for child, parent := range tp.parents {
		m[tp.nodes[child]] = tp.nodes[parent]
	}
	return traversal.NewArborescence(m)
}

func (tp *testPattern) oracle() stats.Oracle {
	return stats.Fixed(tp.cards)
}

func (tp *testPattern) plan(t *testing.T, opts Options) *Plan {
	t.Helper()
	plan, err := NewPlanner(tp.oracle(), opts).Plan(context.Background(), tp.nodes, tp.arborescence(), nil)
	require.NoError(t, err)
	return plan
}

func orderNames(order []*traversal.Node) []string {
	names := make([]string, len(order))
	for i, n := range order {
		names[i] = n.String()
	}
	return names
}

// bruteForce enumerates every elimination sequence that removes a node only
// after all its children and returns the cheapest accumulated cost
func bruteForce(cards []float64, parents map[int]int) float64 {
	children := make(map[int][]int)
	for c, p := range parents {
		children[p] = append(children[p], c)
	}

	best := math.Inf(1)
	var walk func(remaining map[int]bool, acc float64)
	walk = func(remaining map[int]bool, acc float64) {
		if len(remaining) == 0 {
			best = math.Min(best, acc)
			return
		}
		product := 1.0
		for i := range remaining {
			product *= cards[i]
		}
		acc += product

		candidates := make([]int, 0, len(remaining))
		for r := range remaining {
			candidates = append(candidates, r)
		}
		for _, r := range candidates {
			blocked := false
			for _, c := range children[r] {
				if remaining[c] {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			delete(remaining, r)
			walk(remaining, acc)
			remaining[r] = true
		}
	}

	all := make(map[int]bool, len(cards))
	for i := range cards {
		all[i] = true
	}
	walk(all, 0)
	return best
}

func randomPattern(rng *rand.Rand) ([]float64, map[int]int) {
	n := rng.Intn(7) + 1
	cards := make([]float64, n)
	parents := make(map[int]int)
	for i := range cards {
		cards[i] = float64(rng.Intn(60) + 1)
		if i > 0 && rng.Float64() < 0.8 {
			parents[i] = rng.Intn(i)
		}
	}
	return cards, parents
}

func TestPlanTwoNodeChain(t *testing.T) {
	r := traversal.NewVarNode("?r", "person")
	c := traversal.NewVarNode("?c", "name")

	isaR := fragment.OutEdge(fragment.Isa, "?r", "?rtype")
	sameR := fragment.Is("?r", "?x")
	isaC := fragment.OutEdge(fragment.Isa, "?c", "?ctype")
	edge := fragment.OutEdge(fragment.Has, "?r", "?c")
	valC, err := fragment.NewValue("?c", fragment.GT, 5)
	require.NoError(t, err)

	r.AddFragment(isaR)
	r.AddDependentFragment(sameR)
	c.AddFragment(isaC)
	c.AddDependentFragment(valC)

	st := stats.NewStatistics()
	st.Set("person", 10)
	st.Set("name", 5)

	arb := traversal.NewArborescence(map[*traversal.Node]*traversal.Node{c: r})
	edges := traversal.EdgeFragments{}
	edges.Put(c, r, edge)

	plan, err := NewPlanner(st, Options{}).Plan(context.Background(), []*traversal.Node{r, c}, arb, edges)
	require.NoError(t, err)

	assert.Equal(t, 60.0, plan.Cost)
	assert.Equal(t, []*traversal.Node{r, c}, plan.Order)
	assert.Equal(t, []traversal.Fragment{isaR, sameR, isaC, edge, valC}, plan.Fragments)

	// Fragment groups are drained into the plan
	assert.Empty(t, r.FragmentsWithoutDependency())
	assert.Empty(t, r.DependentFragments())
	assert.Empty(t, c.FragmentsWithoutDependency())
	assert.Empty(t, c.DependentFragments())

	assert.Contains(t, plan.String(), "Cost: 60")
	assert.Contains(t, plan.String(), "?r → ?c")
	assert.Contains(t, plan.Table(), "_5 fragments_")
}

func TestPlanSingleNode(t *testing.T) {
	n := traversal.NewVarNode("?x", "")
	a := fragment.OutEdge(fragment.Isa, "?x", "?t")
	b := fragment.Is("?x", "?y")
	d := fragment.InEdge(fragment.Plays, "?x", "?role")
	n.AddFragment(a)
	n.AddFragment(b)
	n.AddDependentFragment(d)

	oracle := stats.Fixed(map[*traversal.Node]float64{n: 42})
	plan, err := NewPlanner(oracle, Options{}).Plan(context.Background(), []*traversal.Node{n}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []traversal.Fragment{a, b, d}, plan.Fragments)
	assert.Equal(t, []*traversal.Node{n}, plan.Order)
	assert.Equal(t, 42.0, plan.Cost)
}

func TestPlanEmpty(t *testing.T) {
	plan, err := NewPlanner(nil, Options{}).Plan(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Fragments)
	assert.Empty(t, plan.Order)
	assert.Equal(t, 0.0, plan.Cost)
}

func TestPlanFixedCostHoisting(t *testing.T) {
	r := traversal.NewVarNode("?r", "")
	c := traversal.NewVarNode("?c", "")
	g := traversal.NewVarNode("?g", "")

	isaR := fragment.OutEdge(fragment.Isa, "?r", "?t")
	idR := fragment.IDLookup("?r", "V123")
	nameC, err := fragment.NewValue("?c", fragment.EQ, "alice")
	require.NoError(t, err)
	ageG, err := fragment.NewValue("?g", fragment.EQ, 30)
	require.NoError(t, err)
	like, err := fragment.NewValue("?g", fragment.Like, "^a.*")
	require.NoError(t, err)

	r.AddFragment(isaR)
	r.AddDependentFragment(idR)
	c.AddDependentFragment(nameC)
	g.AddDependentFragment(like)
	g.AddDependentFragment(ageG)

	oracle := stats.Fixed(map[*traversal.Node]float64{r: 100, c: 10, g: 1})
	arb := traversal.NewArborescence(map[*traversal.Node]*traversal.Node{c: r, g: c})

	plan, err := NewPlanner(oracle, Options{}).Plan(context.Background(), []*traversal.Node{r, c, g}, arb, nil)
	require.NoError(t, err)
	require.Len(t, plan.Fragments, 5)

	// Every fixed-cost fragment sits in a block at the front
	assert.ElementsMatch(t, []traversal.Fragment{idR, nameC, ageG}, plan.Fragments[:3])
	for _, f := range plan.Fragments[3:] {
		assert.False(t, f.HasFixedCost(), "fixed-cost fragment %s outside the front block", f)
	}
	assert.Equal(t, []*traversal.Node{r, c, g}, plan.Order)
}

func TestPlanDeterminism(t *testing.T) {
	cards := []float64{30, 2, 26, 32, 17, 2, 2}
	parents := map[int]int{1: 0, 2: 0, 3: 1, 4: 0, 6: 5}

	build := func() string {
		tp := newTestPattern(cards, parents)
		for i, n := range tp.nodes {
			n.AddFragment(fragment.OutEdge(fragment.Isa, traversal.Variable(fmt.Sprintf("?n%d", i)), "?t"))
		}
		plan := tp.plan(t, Options{})
		return plan.String()
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}

func TestPlanMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(20240611))

	for i := 0; i < 200; i++ {
		cards, parents := randomPattern(rng)
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			want := bruteForce(cards, parents)

			pruned := newTestPattern(cards, parents).plan(t, Options{})
			exhaustive := newTestPattern(cards, parents).plan(t, Options{DisablePruning: true})

			assert.InEpsilon(t, want, pruned.Cost, 1e-9, "cards=%v parents=%v", cards, parents)
			assert.InEpsilon(t, want, exhaustive.Cost, 1e-9, "cards=%v parents=%v", cards, parents)
			assert.Zero(t, exhaustive.Stats.ShortCircuits)
		})
	}
}

func TestPlanOrderIsPostorder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		cards, parents := randomPattern(rng)
		tp := newTestPattern(cards, parents)
		plan := tp.plan(t, Options{})

		require.Len(t, plan.Order, len(tp.nodes))
		pos := make(map[*traversal.Node]int, len(plan.Order))
		for i, n := range plan.Order {
			pos[n] = i
		}
		require.Len(t, pos, len(tp.nodes), "order is not a permutation")

		// Parents are visited before their children
		for child, parent := range parents {
			assert.Less(t, pos[tp.nodes[parent]], pos[tp.nodes[child]])
		}

		// The order reproduces the reported cost
		remaining := make(map[*traversal.Node]bool, len(tp.nodes))
		for _, n := range tp.nodes {
			remaining[n] = true
		}
		total := 0.0
		for j := len(plan.Order) - 1; j >= 0; j-- {
			product := 1.0
			for n := range remaining {
				product *= tp.cards[n]
			}
			total += product
			delete(remaining, plan.Order[j])
		}
		assert.InEpsilon(t, plan.Cost, total, 1e-9)
	}
}

func TestPlanPruning(t *testing.T) {
	cards := []float64{30, 2, 26, 32, 17}
	parents := map[int]int{1: 0, 2: 0, 3: 1, 4: 0}

	pruned := newTestPattern(cards, parents).plan(t, Options{})
	exhaustive := newTestPattern(cards, parents).plan(t, Options{DisablePruning: true})

	assert.Greater(t, pruned.Stats.ShortCircuits, 0)
	assert.Equal(t, 876270.0, pruned.Cost)
	assert.Equal(t, bruteForce(cards, parents), pruned.Cost)
	assert.Equal(t, []string{"?n0", "?n1", "?n4", "?n2", "?n3"}, orderNames(pruned.Order))

	assert.Zero(t, exhaustive.Stats.ShortCircuits)
	assert.Equal(t, pruned.Cost, exhaustive.Cost)
	assert.Equal(t, orderNames(pruned.Order), orderNames(exhaustive.Order))
}

func TestPlanInvalidTopology(t *testing.T) {
	a := traversal.NewVarNode("?a", "")
	b := traversal.NewVarNode("?b", "")
	c := traversal.NewVarNode("?c", "")
	foreign := traversal.NewVarNode("?z", "")

	tests := []struct {
		name    string
		nodes   []*traversal.Node
		parents map[*traversal.Node]*traversal.Node
	}{
		{"cycle", []*traversal.Node{a, b, c}, map[*traversal.Node]*traversal.Node{a: b, b: c, c: a}},
		{"two node cycle", []*traversal.Node{a, b}, map[*traversal.Node]*traversal.Node{a: b, b: a}},
		{"self parent", []*traversal.Node{a}, map[*traversal.Node]*traversal.Node{a: a}},
		{"foreign child", []*traversal.Node{a, b}, map[*traversal.Node]*traversal.Node{foreign: a}},
		{"foreign parent", []*traversal.Node{a, b}, map[*traversal.Node]*traversal.Node{b: foreign}},
		{"duplicate node", []*traversal.Node{a, b, a}, nil},
		{"nil node", []*traversal.Node{a, nil}, nil},
		{"edges without nodes", nil, map[*traversal.Node]*traversal.Node{a: b}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := annotations.NewCollector(nil)
			p := NewPlanner(stats.NewStatistics(), Options{Collector: collector})

			_, err := p.Plan(context.Background(), tt.nodes, traversal.NewArborescence(tt.parents), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTopology), "got %v", err)

			_, found := collector.Find(annotations.ErrorPlanTopology)
			assert.True(t, found)
		})
	}
}

func TestPlanOracleErrors(t *testing.T) {
	errBoom := errors.New("statistics backend unavailable")

	a := traversal.NewVarNode("?a", "")
	b := traversal.NewVarNode("?b", "")
	arb := traversal.NewArborescence(map[*traversal.Node]*traversal.Node{b: a})

	tests := []struct {
		name   string
		oracle stats.Oracle
		want   error
	}{
		{
			name: "oracle failure",
			oracle: stats.OracleFunc(func(_ context.Context, n *traversal.Node) (float64, error) {
				if n == b {
					return 0, errBoom
				}
				return 1, nil
			}),
			want: errBoom,
		},
		{
			name:   "negative estimate",
			oracle: stats.Fixed(map[*traversal.Node]float64{a: 1, b: -3}),
			want:   ErrInvalidEstimate,
		},
		{
			name:   "NaN estimate",
			oracle: stats.Fixed(map[*traversal.Node]float64{a: math.NaN(), b: 1}),
			want:   ErrInvalidEstimate,
		},
		{
			name:   "unknown label in strict statistics",
			oracle: &stats.Statistics{Strict: true, ElementCount: 10},
			want:   stats.ErrUnknownLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.Label, b.Label = "thing", "thing"
			defer func() { a.Label, b.Label = "", "" }()

			collector := annotations.NewCollector(nil)
			_, err := NewPlanner(tt.oracle, Options{Collector: collector}).
				Plan(context.Background(), []*traversal.Node{a, b}, arb, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			_, found := collector.Find(annotations.ErrorStats)
			assert.True(t, found)
		})
	}
}

func TestPlanQueriesOracleOncePerNode(t *testing.T) {
	tp := newTestPattern([]float64{5, 4, 3, 2, 1, 6}, map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 4})

	var mu sync.Mutex
	calls := make(map[*traversal.Node]int)
	oracle := stats.OracleFunc(func(ctx context.Context, n *traversal.Node) (float64, error) {
		mu.Lock()
		calls[n]++
		mu.Unlock()
		return tp.cards[n], nil
	})

	plan, err := NewPlanner(oracle, Options{}).Plan(context.Background(), tp.nodes, tp.arborescence(), nil)
	require.NoError(t, err)

	assert.Equal(t, len(tp.nodes), plan.Stats.OracleCalls)
	require.Len(t, calls, len(tp.nodes))
	for n, count := range calls {
		assert.Equal(t, 1, count, "oracle asked %d times for %s", count, n)
	}
}

func TestPlanSaturatesHugeCardinalities(t *testing.T) {
	tp := newTestPattern([]float64{1e200, 1e200, math.Inf(1), 1e150}, map[int]int{1: 0, 2: 0, 3: 0})

	plan := tp.plan(t, Options{})
	assert.Equal(t, math.MaxFloat64, plan.Cost)
	assert.False(t, math.IsInf(plan.Cost, 0))
	assert.Len(t, plan.Order, 4)
	assert.Equal(t, tp.nodes[0], plan.Order[0])
}

func TestPlanContextCancellation(t *testing.T) {
	tp := newTestPattern([]float64{3, 1, 4, 1, 5}, map[int]int{1: 0, 2: 0, 3: 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collector := annotations.NewCollector(nil)
	_, err := NewPlanner(tp.oracle(), Options{CancelCheckInterval: 1, Collector: collector}).
		Plan(ctx, tp.nodes, tp.arborescence(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, found := collector.Find(annotations.ErrorPlanInternal)
	assert.True(t, found)
}

func TestPlanAnnotations(t *testing.T) {
	tp := newTestPattern([]float64{10, 5}, map[int]int{1: 0})
	for _, n := range tp.nodes {
		n.AddFragment(fragment.Is(n.ID.Vars[0], "?other"))
	}

	var handled []string
	collector := annotations.NewCollector(func(ev annotations.Event) {
		handled = append(handled, ev.Name)
	})
	tp.plan(t, Options{Collector: collector})

	assert.Equal(t, []string{
		annotations.PlanInvoked,
		annotations.StatsEstimate,
		annotations.StatsEstimate,
		annotations.PlanSearchComplete,
		annotations.PlanCreated,
	}, handled)

	search, ok := collector.Find(annotations.PlanSearchComplete)
	require.True(t, ok)
	assert.Equal(t, 60.0, search.Data["cost"])
	assert.Equal(t, 2, search.Data["memo.entries"])

	created, ok := collector.Find(annotations.PlanCreated)
	require.True(t, ok)
	assert.Equal(t, 2, created.Data["fragment.count"])
	assert.Equal(t, "?n0 → ?n1", created.Data["order"])
	assert.True(t, strings.Contains(created.Data["plan"].(string), "?n1[is:?other]"))
}

func TestPlannerConcurrentUse(t *testing.T) {
	st := stats.NewStatistics()
	p := NewPlanner(st, Options{})

	var wg sync.WaitGroup
	costs := make([]float64, 8)
	errs := make([]error, 8)
	for i := range costs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tp := newTestPattern([]float64{1, 1, 1, 1}, map[int]int{1: 0, 2: 0, 3: 1})
			plan, err := p.Plan(context.Background(), tp.nodes, tp.arborescence(), nil)
			errs[i] = err
			if err == nil {
				costs[i] = plan.Cost
			}
		}(i)
	}
	wg.Wait()

	for i := range costs {
		require.NoError(t, errs[i])
		assert.Equal(t, costs[0], costs[i])
	}
}
