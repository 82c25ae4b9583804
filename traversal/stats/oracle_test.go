package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-traversal/traversal"
)

func TestStatisticsEstimate(t *testing.T) {
	st := NewStatistics()
	st.Set("person", 500)
	st.Set("company", 20)

	tests := []struct {
		name  string
		label string
		want  float64
	}{
		{"known label", "person", 500},
		{"another label", "company", 20},
		{"unknown label falls back", "city", 1000000},
		{"unlabelled node", "", 1000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.Estimate(context.Background(), traversal.NewVarNode("?x", tt.label))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatisticsStrict(t *testing.T) {
	st := &Statistics{Strict: true, ElementCount: 10}
	st.Set("person", 3)

	got, err := st.Estimate(context.Background(), traversal.NewVarNode("?p", "person"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	_, err = st.Estimate(context.Background(), traversal.NewVarNode("?c", "city"))
	assert.True(t, errors.Is(err, ErrUnknownLabel))
	assert.Contains(t, err.Error(), "city")

	got, err = st.Estimate(context.Background(), traversal.NewVarNode("?u", ""))
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestFixedOracle(t *testing.T) {
	a := traversal.NewVarNode("?a", "")
	b := traversal.NewVarNode("?b", "")
	oracle := Fixed(map[*traversal.Node]float64{a: 7})

	got, err := oracle.Estimate(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	_, err = oracle.Estimate(context.Background(), b)
	assert.Error(t, err)
}
