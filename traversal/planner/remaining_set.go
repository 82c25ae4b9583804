package planner

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"

	pair "github.com/notEpsilon/go-pair"
	"github.com/spaolacci/murmur3"
	"github.com/wbrown/janus-traversal/traversal"
)

// remainingSet is an immutable set of not-yet-eliminated nodes, kept sorted
// by ordinal. Its content hash is computed once at construction, so memo
// lookups never rehash the members.
type remainingSet struct {
	nodes []*planNode
	hash  uint64
}

// newRemainingSet copies and sorts nodes
func newRemainingSet(nodes []*planNode) *remainingSet {
	sorted := append([]*planNode(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ordinal < sorted[j].ordinal })
	return &remainingSet{nodes: sorted, hash: hashOrdinals(sorted)}
}

func hashOrdinals(nodes []*planNode) uint64 {
	buf := make([]byte, 4*len(nodes))
	for i, pn := range nodes {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(pn.ordinal))
	}
	return murmur3.Sum64(buf)
}

// without returns a new set lacking pn; order is preserved
func (s *remainingSet) without(pn *planNode) *remainingSet {
	nodes := make([]*planNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n != pn {
			nodes = append(nodes, n)
		}
	}
	return &remainingSet{nodes: nodes, hash: hashOrdinals(nodes)}
}

func (s *remainingSet) Len() int {
	return len(s.nodes)
}

func (s *remainingSet) Hash() uint64 {
	return s.hash
}

// Contains reports membership by binary search on the ordinal
func (s *remainingSet) Contains(pn *planNode) bool {
	i := sort.Search(len(s.nodes), func(i int) bool { return s.nodes[i].ordinal >= pn.ordinal })
	return i < len(s.nodes) && s.nodes[i] == pn
}

// Equal compares contents; both sides are sorted, so position equality is
// set equality.
func (s *remainingSet) Equal(o *remainingSet) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.hash != o.hash || len(s.nodes) != len(o.nodes) {
		return false
	}
	for i := range s.nodes {
		if s.nodes[i] != o.nodes[i] {
			return false
		}
	}
	return true
}

// removedFrom returns the single node in s that next lacks
func (s *remainingSet) removedFrom(next *remainingSet) (*planNode, bool) {
	if next == nil || next.Len() != s.Len()-1 {
		return nil, false
	}
	var removed *planNode
	for _, pn := range s.nodes {
		if !next.Contains(pn) {
			if removed != nil {
				return nil, false
			}
			removed = pn
		}
	}
	return removed, removed != nil
}

// Nodes returns the caller's nodes in ordinal order
func (s *remainingSet) Nodes() []*traversal.Node {
	out := make([]*traversal.Node, len(s.nodes))
	for i, pn := range s.nodes {
		out[i] = pn.node
	}
	return out
}

func (s *remainingSet) String() string {
	parts := make([]string, len(s.nodes))
	for i, pn := range s.nodes {
		parts[i] = pn.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// memoEntry is the best known completion of one remaining set: First is
// the completion cost, Second the next remaining set on that path (nil for
// a singleton). A completion cost of +Inf marks a set whose every
// continuation was pruned.
//
// bound is the smallest path cost in front of the set for which the entry
// may be reused. Entries computed without any pruning below them have bound
// 0 and are never rewritten; an entry computed while part of its subtree was
// cut off is only trusted on paths at least as expensive as the one it was
// computed on, because on such paths the cut-off branches could not have
// beaten the best plan either.
type memoEntry struct {
	set    *remainingSet
	result pair.Pair[float64, *remainingSet]
	bound  float64
}

func (e *memoEntry) cost() float64 {
	return e.result.First
}

func (e *memoEntry) next() *remainingSet {
	return e.result.Second
}

func (e *memoEntry) dead() bool {
	return math.IsInf(e.result.First, 1)
}

// memoTable maps remaining sets to their best completion, bucketed by the
// cached content hash
type memoTable struct {
	buckets map[uint64][]*memoEntry
	size    int
}

func newMemoTable() *memoTable {
	return &memoTable{buckets: make(map[uint64][]*memoEntry)}
}

func (m *memoTable) get(s *remainingSet) *memoEntry {
	for _, e := range m.buckets[s.hash] {
		if e.set.Equal(s) {
			return e
		}
	}
	return nil
}

// usable returns the entry for s if it may be reused behind a path costing
// prefix
func (m *memoTable) usable(s *remainingSet, prefix float64) *memoEntry {
	e := m.get(s)
	if e == nil || e.bound > prefix {
		return nil
	}
	return e
}

// put records a completion for s. An existing entry is only ever replaced
// by a recomputation under a cheaper path: the cheaper completion wins and
// the entry takes the new, lower bound. It reports whether an existing entry
// was refined.
func (m *memoTable) put(s *remainingSet, cost float64, next *remainingSet, bound float64) bool {
	if e := m.get(s); e != nil {
		if bound >= e.bound {
			return false
		}
		if cost < e.cost() {
			e.result = pair.Pair[float64, *remainingSet]{First: cost, Second: next}
		}
		e.bound = bound
		return true
	}

	m.buckets[s.hash] = append(m.buckets[s.hash], &memoEntry{
		set:    s,
		result: pair.Pair[float64, *remainingSet]{First: cost, Second: next},
		bound:  bound,
	})
	m.size++
	return false
}

func (m *memoTable) Len() int {
	return m.size
}
