// Package fragment provides the concrete traversal and filter steps that
// make up a plan: edge walks between variables, label and id lookups, value
// predicates and "is" constraints.
package fragment

import (
	"fmt"

	"github.com/wbrown/janus-traversal/traversal"
)

// Internal cost estimates, in expected elements produced per input element
const (
	CostInstancesPerType = 1000.0
	CostTypesPerRole     = 4.0
	CostRolesPerType     = 2.0
	CostRolesPerRelation = 2.0
	CostSubsPerType      = 1.0
	CostIndexLookup      = 1.1
	CostNodeID           = 1.0
	CostValuePredicate   = 0.1
	CostSameAs           = 0.5
)

// base holds the fields shared by every fragment
type base struct {
	start traversal.Variable
}

func (b base) Start() traversal.Variable { return b.start }

// Edge walks a labelled edge from Start to End. Direction Out follows the
// edge forwards, In walks it backwards.
type Edge struct {
	base
	end       traversal.Variable
	label     EdgeLabel
	direction Direction
	required  bool
}

// EdgeLabel names a schema edge type
type EdgeLabel string

const (
	Isa        EdgeLabel = "isa"
	Plays      EdgeLabel = "plays"
	Relates    EdgeLabel = "relates"
	Sub        EdgeLabel = "sub"
	Has        EdgeLabel = "has"
	RolePlayer EdgeLabel = "role-player"
)

// Direction of an edge walk
type Direction uint8

const (
	Out Direction = iota
	In
)

// OutEdge creates a fragment following label forwards from start to end
func OutEdge(label EdgeLabel, start, end traversal.Variable) *Edge {
	return &Edge{base: base{start: start}, end: end, label: label, direction: Out}
}

// InEdge creates a fragment following label backwards from start to end
func InEdge(label EdgeLabel, start, end traversal.Variable) *Edge {
	return &Edge{base: base{start: start}, end: end, label: label, direction: In}
}

// Required restricts a plays edge to required role players
func (e *Edge) Required() *Edge {
	e.required = true
	return e
}

func (e *Edge) End() traversal.Variable { return e.end }
func (e *Edge) Label() EdgeLabel        { return e.label }
func (e *Edge) Direction() Direction    { return e.direction }
func (e *Edge) IsRequired() bool        { return e.required }
func (e *Edge) HasFixedCost() bool      { return false }

// Name renders the edge arrow, e.g. "-[plays:required]->" or "<-[isa]-"
func (e *Edge) Name() string {
	label := string(e.label)
	if e.required {
		label += ":required"
	}
	if e.direction == In {
		return fmt.Sprintf("<-[%s]-", label)
	}
	return fmt.Sprintf("-[%s]->", label)
}

// Cost returns the expected fan-out of the walk
func (e *Edge) Cost() float64 {
	switch e.label {
	case Plays:
		if e.direction == Out {
			return CostRolesPerType
		}
		return CostTypesPerRole
	case Relates:
		return CostRolesPerRelation
	case Sub:
		return CostSubsPerType
	case Isa:
		if e.direction == In {
			return CostInstancesPerType
		}
		return 1
	default:
		return CostRolesPerRelation
	}
}

// MiddleNodeID returns the id of the synthetic node standing for the edge
// itself in the planning graph.
func (e *Edge) MiddleNodeID() traversal.NodeID {
	var kind traversal.NodeKind
	switch e.label {
	case Isa:
		kind = traversal.IsaNode
	case Plays:
		kind = traversal.PlaysNode
	case Relates:
		kind = traversal.RelatesNode
	case Sub:
		kind = traversal.SubNode
	default:
		kind = traversal.VarNode
	}
	return traversal.NewNodeID(kind, e.start, e.end)
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s%s%s", e.start, e.Name(), e.end)
}

// Label restricts Start to instances of one schema type, looked up by index
type Label struct {
	base
	label string
}

// LabelLookup creates a fixed-cost label lookup for v
func LabelLookup(v traversal.Variable, label string) *Label {
	return &Label{base: base{start: v}, label: label}
}

func (l *Label) Name() string            { return fmt.Sprintf("[label:%s]", l.label) }
func (l *Label) End() traversal.Variable { return "" }
func (l *Label) Cost() float64           { return CostIndexLookup }
func (l *Label) HasFixedCost() bool      { return true }
func (l *Label) TypeLabel() string       { return l.label }
func (l *Label) String() string          { return fmt.Sprintf("%s%s", l.start, l.Name()) }

// ID pins Start to one concept id
type ID struct {
	base
	id string
}

// IDLookup creates a fixed-cost id lookup for v
func IDLookup(v traversal.Variable, id string) *ID {
	return &ID{base: base{start: v}, id: id}
}

func (i *ID) Name() string            { return fmt.Sprintf("[id:%s]", i.id) }
func (i *ID) End() traversal.Variable { return "" }
func (i *ID) Cost() float64           { return CostNodeID }
func (i *ID) HasFixedCost() bool      { return true }
func (i *ID) String() string          { return fmt.Sprintf("%s%s", i.start, i.Name()) }

// SameAs asserts two variables are bound to the same concept
type SameAs struct {
	base
	other traversal.Variable
}

// Is creates a fragment requiring v and other to be the same concept
func Is(v, other traversal.Variable) *SameAs {
	return &SameAs{base: base{start: v}, other: other}
}

func (s *SameAs) Name() string            { return "[is]" }
func (s *SameAs) End() traversal.Variable { return s.other }
func (s *SameAs) Cost() float64           { return CostSameAs }
func (s *SameAs) HasFixedCost() bool      { return false }
func (s *SameAs) String() string          { return fmt.Sprintf("%s[is:%s]", s.start, s.other) }

var (
	_ traversal.Fragment = (*Edge)(nil)
	_ traversal.Fragment = (*Label)(nil)
	_ traversal.Fragment = (*ID)(nil)
	_ traversal.Fragment = (*SameAs)(nil)
	_ traversal.Fragment = (*Value)(nil)
)
