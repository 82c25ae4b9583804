package traversal

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Arborescence is an immutable rooted dependency tree, stored as a
// child→parent map. A node that never appears as a child is a root.
type Arborescence struct {
	parents  map[*Node]*Node
	children map[*Node]mapset.Set[*Node]
}

// NewArborescence copies the child→parent map and precomputes the child set
// of every parent. Nil keys and values are ignored.
func NewArborescence(parents map[*Node]*Node) *Arborescence {
	a := &Arborescence{
		parents:  make(map[*Node]*Node, len(parents)),
		children: make(map[*Node]mapset.Set[*Node]),
	}
	for child, parent := range parents {
		if child == nil || parent == nil {
			continue
		}
		a.parents[child] = parent
		set, ok := a.children[parent]
		if !ok {
			set = mapset.NewThreadUnsafeSet[*Node]()
			a.children[parent] = set
		}
		set.Add(child)
	}
	return a
}

// Parent returns the parent of n, or nil for roots and unknown nodes
func (a *Arborescence) Parent(n *Node) *Node {
	if a == nil {
		return nil
	}
	return a.parents[n]
}

// HasChildren reports whether any node names n as its parent
func (a *Arborescence) HasChildren(n *Node) bool {
	if a == nil {
		return false
	}
	_, ok := a.children[n]
	return ok
}

// Children returns the set of nodes whose parent is n. The set is shared;
// callers must not modify it.
func (a *Arborescence) Children(n *Node) mapset.Set[*Node] {
	if a == nil {
		return nil
	}
	return a.children[n]
}

// Len returns the number of child→parent edges
func (a *Arborescence) Len() int {
	if a == nil {
		return 0
	}
	return len(a.parents)
}

// Edges returns every child→parent edge, in no particular order
func (a *Arborescence) Edges() []Edge {
	if a == nil {
		return nil
	}
	edges := make([]Edge, 0, len(a.parents))
	for child, parent := range a.parents {
		edges = append(edges, Edge{Child: child, Parent: parent})
	}
	return edges
}

// Nodes returns every node mentioned by the tree, in no particular order
func (a *Arborescence) Nodes() []*Node {
	if a == nil {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet[*Node]()
	for child, parent := range a.parents {
		seen.Add(child)
		seen.Add(parent)
	}
	return seen.ToSlice()
}

// Roots returns the mentioned nodes that have no parent
func (a *Arborescence) Roots() []*Node {
	var roots []*Node
	for _, n := range a.Nodes() {
		if _, ok := a.parents[n]; !ok {
			roots = append(roots, n)
		}
	}
	return roots
}
