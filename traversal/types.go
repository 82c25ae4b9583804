// Package traversal defines the graph-pattern values the traversal planner
// works on: query variables, planning nodes, fragments and the dependency
// tree connecting the nodes.
package traversal

import (
	"fmt"
	"sort"
	"strings"
)

// Variable represents a pattern variable (e.g., ?x, ?person)
type Variable string

// IsVariable returns true if this is a named variable (starts with ?)
func (v Variable) IsVariable() bool {
	return len(v) > 0 && v[0] == '?'
}

// String returns the string representation
func (v Variable) String() string {
	return string(v)
}

// NodeKind distinguishes plain variable nodes from the synthetic middle
// nodes introduced by edge fragments.
type NodeKind uint8

const (
	VarNode     NodeKind = iota // A pattern variable
	IsaNode                     // Middle node of an isa edge
	PlaysNode                   // Middle node of a plays edge
	RelatesNode                 // Middle node of a relates edge
	SubNode                     // Middle node of a sub edge
)

func (k NodeKind) String() string {
	switch k {
	case VarNode:
		return "var"
	case IsaNode:
		return "isa"
	case PlaysNode:
		return "plays"
	case RelatesNode:
		return "relates"
	case SubNode:
		return "sub"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// NodeID identifies a planning node by kind and the variables it covers.
// Variables are kept sorted so equal ids render identically.
type NodeID struct {
	Kind NodeKind
	Vars []Variable
}

// NewNodeID creates an id with its variables sorted
func NewNodeID(kind NodeKind, vars ...Variable) NodeID {
	sorted := append([]Variable(nil), vars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return NodeID{Kind: kind, Vars: sorted}
}

// VarID is shorthand for the id of a plain variable node
func VarID(v Variable) NodeID {
	return NodeID{Kind: VarNode, Vars: []Variable{v}}
}

// String returns e.g. "?x" for variable nodes and "plays(?r ?x)" otherwise
func (id NodeID) String() string {
	parts := make([]string, len(id.Vars))
	for i, v := range id.Vars {
		parts[i] = string(v)
	}
	joined := strings.Join(parts, " ")
	if id.Kind == VarNode {
		return joined
	}
	return fmt.Sprintf("%s(%s)", id.Kind, joined)
}

// Fragment is one atomic traversal or filter step of a plan. The planner only
// inspects HasFixedCost; everything else is carried through unchanged.
type Fragment interface {
	Name() string
	Start() Variable
	End() Variable // empty for fragments that do not move along an edge
	Cost() float64
	HasFixedCost() bool
	String() string
}

// Node is a query variable together with the fragments anchored on it.
// Nodes are compared by pointer identity.
type Node struct {
	ID    NodeID
	Label string // Type label the node is constrained to, if known

	withoutDependency []Fragment
	dependent         []Fragment
}

// NewNode creates a node with no fragments
func NewNode(id NodeID) *Node {
	return &Node{ID: id}
}

// NewVarNode creates a plain variable node with an optional type label
func NewVarNode(v Variable, label string) *Node {
	return &Node{ID: VarID(v), Label: label}
}

// AddFragment adds a fragment that can run as soon as the node is visited
func (n *Node) AddFragment(f Fragment) {
	n.withoutDependency = append(n.withoutDependency, f)
}

// AddDependentFragment adds a fragment that needs other variables bound first
func (n *Node) AddDependentFragment(f Fragment) {
	n.dependent = append(n.dependent, f)
}

// FragmentsWithoutDependency returns the dependency-free fragments
func (n *Node) FragmentsWithoutDependency() []Fragment {
	return n.withoutDependency
}

// DependentFragments returns the dependent fragments
func (n *Node) DependentFragments() []Fragment {
	return n.dependent
}

// DrainFragmentsWithoutDependency returns the dependency-free fragments and
// empties the group, so each fragment is handed out exactly once.
func (n *Node) DrainFragmentsWithoutDependency() []Fragment {
	frags := n.withoutDependency
	n.withoutDependency = nil
	return frags
}

// DrainDependentFragments returns the dependent fragments and empties the group
func (n *Node) DrainDependentFragments() []Fragment {
	frags := n.dependent
	n.dependent = nil
	return frags
}

// String returns the node id
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.ID.String()
}

// Edge is a child→parent pair of the dependency tree
type Edge struct {
	Child  *Node
	Parent *Node
}

// EdgeFragments maps a tree edge to the fragment that walks it.
// A missing entry means the edge needs no explicit step.
type EdgeFragments map[Edge]Fragment

// Get returns the fragment for the child→parent edge, or nil
func (ef EdgeFragments) Get(child, parent *Node) Fragment {
	if ef == nil || child == nil || parent == nil {
		return nil
	}
	return ef[Edge{Child: child, Parent: parent}]
}

// Put records the fragment walking child→parent
func (ef EdgeFragments) Put(child, parent *Node, f Fragment) {
	ef[Edge{Child: child, Parent: parent}] = f
}
