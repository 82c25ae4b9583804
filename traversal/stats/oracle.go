// Package stats supplies cardinality estimates for planning nodes.
//
// An Oracle must be safe for concurrent read-only use: several planning calls
// may query the same oracle at once. The planner caches each estimate for the
// duration of one call; Cache shares estimates across calls.
package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/wbrown/janus-traversal/traversal"
)

// DefaultElementCount is the element count assumed when nothing better is known
const DefaultElementCount = 1000000

// ErrUnknownLabel is returned by strict oracles for labels they hold no
// statistics for
var ErrUnknownLabel = errors.New("no statistics for label")

// Oracle estimates how many graph elements a node matches
type Oracle interface {
	Estimate(ctx context.Context, node *traversal.Node) (float64, error)
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, node *traversal.Node) (float64, error)

// Estimate implements Oracle
func (f OracleFunc) Estimate(ctx context.Context, node *traversal.Node) (float64, error) {
	return f(ctx, node)
}

// Statistics is a fixed table of per-label instance counts
type Statistics struct {
	LabelCardinality map[string]int64 // Instances per type label
	ElementCount     int64            // Total number of elements, used for unlabelled nodes
	Strict           bool             // Fail on unknown labels instead of falling back to ElementCount
}

// NewStatistics creates statistics with the default element count
func NewStatistics() *Statistics {
	return &Statistics{
		LabelCardinality: make(map[string]int64),
		ElementCount:     DefaultElementCount,
	}
}

// Set records the instance count of a label
func (s *Statistics) Set(label string, count int64) {
	if s.LabelCardinality == nil {
		s.LabelCardinality = make(map[string]int64)
	}
	s.LabelCardinality[label] = count
}

// Estimate implements Oracle
func (s *Statistics) Estimate(_ context.Context, node *traversal.Node) (float64, error) {
	if node.Label == "" {
		return float64(s.ElementCount), nil
	}
	if count, ok := s.LabelCardinality[node.Label]; ok {
		return float64(count), nil
	}
	if s.Strict {
		return 0, fmt.Errorf("estimate %s: %w %q", node, ErrUnknownLabel, node.Label)
	}
	return float64(s.ElementCount), nil
}

// Fixed returns an oracle answering from a per-node table, for callers that
// already hold estimates
func Fixed(estimates map[*traversal.Node]float64) Oracle {
	return OracleFunc(func(_ context.Context, node *traversal.Node) (float64, error) {
		est, ok := estimates[node]
		if !ok {
			return 0, fmt.Errorf("estimate %s: no estimate for node", node)
		}
		return est, nil
	})
}
