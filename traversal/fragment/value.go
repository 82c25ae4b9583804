package fragment

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-traversal/traversal"
)

// Comparator is the operator of a value predicate
type Comparator string

const (
	EQ       Comparator = "=="
	NEQ      Comparator = "!="
	GT       Comparator = ">"
	GTE      Comparator = ">="
	LT       Comparator = "<"
	LTE      Comparator = "<="
	Contains Comparator = "contains"
	Like     Comparator = "like"
)

// Valid reports whether c is a known comparator
func (c Comparator) Valid() bool {
	switch c {
	case EQ, NEQ, GT, GTE, LT, LTE, Contains, Like:
		return true
	}
	return false
}

// ValueKind is the type of a predicate operand
type ValueKind uint8

const (
	LongValue ValueKind = iota
	DoubleValue
	BooleanValue
	StringValue
	DateTimeValue
	VariableValue
)

func (k ValueKind) String() string {
	switch k {
	case LongValue:
		return "long"
	case DoubleValue:
		return "double"
	case BooleanValue:
		return "boolean"
	case StringValue:
		return "string"
	case DateTimeValue:
		return "datetime"
	case VariableValue:
		return "variable"
	default:
		return "unknown"
	}
}

// Value filters Start by comparing its attribute value with an operand,
// which is either a constant or another variable.
type Value struct {
	base
	comparator Comparator
	operand    interface{}
	kind       ValueKind
}

// NewValue creates a value predicate. Supported operands are int, int64,
// float64, bool, string, time.Time and traversal.Variable.
func NewValue(v traversal.Variable, cmp Comparator, operand interface{}) (*Value, error) {
	if !cmp.Valid() {
		return nil, fmt.Errorf("unknown comparator %q", cmp)
	}

	val := &Value{base: base{start: v}, comparator: cmp}
	switch o := operand.(type) {
	case int:
		val.operand, val.kind = int64(o), LongValue
	case int64:
		val.operand, val.kind = o, LongValue
	case float64:
		val.operand, val.kind = o, DoubleValue
	case bool:
		val.operand, val.kind = o, BooleanValue
	case string:
		val.operand, val.kind = o, StringValue
	case time.Time:
		val.operand, val.kind = o, DateTimeValue
	case traversal.Variable:
		val.operand, val.kind = o, VariableValue
	default:
		return nil, fmt.Errorf("unsupported value operand %T", operand)
	}

	switch val.comparator {
	case Contains, Like:
		if val.kind != StringValue && val.kind != VariableValue {
			return nil, fmt.Errorf("comparator %s needs a string operand, got %s", cmp, val.kind)
		}
	}
	return val, nil
}

func (v *Value) Comparator() Comparator { return v.comparator }
func (v *Value) Operand() interface{}   { return v.operand }
func (v *Value) Kind() ValueKind        { return v.kind }

// IsValueEquality reports an equality test against a constant
func (v *Value) IsValueEquality() bool {
	return v.comparator == EQ && v.kind != VariableValue
}

// End returns the compared variable for variable operands
func (v *Value) End() traversal.Variable {
	if v.kind == VariableValue {
		return v.operand.(traversal.Variable)
	}
	return ""
}

// AsDouble widens a long operand to a double predicate
func (v *Value) AsDouble() (*Value, error) {
	switch v.kind {
	case DoubleValue:
		return v, nil
	case LongValue:
		return &Value{base: v.base, comparator: v.comparator, operand: float64(v.operand.(int64)), kind: DoubleValue}, nil
	default:
		return nil, fmt.Errorf("cannot cast %s value predicate to double", v.kind)
	}
}

func (v *Value) Name() string {
	return fmt.Sprintf("[value:%s %s]", v.comparator, v.operandString())
}

// Cost is the selectivity of the filter
func (v *Value) Cost() float64 {
	if v.IsValueEquality() {
		return CostIndexLookup
	}
	return CostValuePredicate
}

// HasFixedCost is true for equality against a constant, which resolves
// through the value index independently of traversal order
func (v *Value) HasFixedCost() bool {
	return v.IsValueEquality()
}

func (v *Value) String() string {
	return fmt.Sprintf("%s%s", v.start, v.Name())
}

func (v *Value) operandString() string {
	switch o := v.operand.(type) {
	case string:
		return fmt.Sprintf("%q", o)
	case time.Time:
		return o.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", o)
	}
}
