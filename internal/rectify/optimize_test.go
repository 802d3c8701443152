package rectify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEfficacy_RawWeight(t *testing.T) {
	eff := DefaultEfficacy()
	assert.InDelta(t, 2.35/3, eff[MethodAscendantAlignment].RawWeight(), 1e-9)
	assert.InDelta(t, 0.75, eff[MethodSignRelationship].RawWeight(), 1e-9)
	assert.InDelta(t, 1.7/3, UnknownEfficacy.RawWeight(), 1e-9)
}

func TestOptimizeWeights(t *testing.T) {
	scores := map[string]float64{
		MethodAscendantAlignment: 80,
		MethodSignRelationship:   60,
		MethodBeneficMalefic:     0,
		MethodEventCorrelation:   0,
	}
	res, err := OptimizeWeights(scores, OptimizationConstraints{})
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Empty(t, res.Reason)
	require.Len(t, res.Weights, 2)
	assert.InDelta(t, 0.783333/1.533333, res.Weights[MethodAscendantAlignment], 1e-4)
	assert.InDelta(t, 0.75/1.533333, res.Weights[MethodSignRelationship], 1e-4)

	sum := 0.0
	for _, w := range res.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	assert.Equal(t, DefaultWeights(), res.DefaultWeights)
	assert.Greater(t, res.Improvement, 30.0)
	assert.InDelta(t, 0.978, res.Consistency, 1e-3)
}

func TestOptimizeWeights_NotEnoughMethods(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
	}{
		{"none", nil},
		{"single", map[string]float64{MethodAscendantAlignment: 90}},
		{"zeros ignored", map[string]float64{MethodAscendantAlignment: 90, MethodSignRelationship: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OptimizeWeights(tt.scores, OptimizationConstraints{})
			require.NoError(t, err)
			assert.False(t, res.Applied)
			assert.NotEmpty(t, res.Reason)
			assert.Equal(t, DefaultWeights(), res.Weights)
			assert.Zero(t, res.Improvement)
		})
	}
}

func TestOptimizeWeights_UnknownMethod(t *testing.T) {
	res, err := OptimizeWeights(map[string]float64{
		MethodAscendantAlignment: 80,
		"custom":                 70,
	}, OptimizationConstraints{})
	require.NoError(t, err)
	require.True(t, res.Applied)

	asc, custom := 2.35/3, 1.7/3
	assert.InDelta(t, custom/(asc+custom), res.Weights["custom"], 1e-9)
}

func TestOptimizeWeights_Bounds(t *testing.T) {
	scores := map[string]float64{MethodAscendantAlignment: 80, MethodSignRelationship: 60}
	tests := []struct {
		name string
		c    OptimizationConstraints
	}{
		{"capped", OptimizationConstraints{MaxWeight: 0.5}},
		{"floored", OptimizationConstraints{MinWeight: 0.9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OptimizeWeights(scores, tt.c)
			require.NoError(t, err)
			assert.InDelta(t, 0.5, res.Weights[MethodAscendantAlignment], 1e-9)
			assert.InDelta(t, 0.5, res.Weights[MethodSignRelationship], 1e-9)
			assert.InDelta(t, 1.0, res.Consistency, 1e-9)
		})
	}
}

func TestOptimizeWeights_CustomDefaults(t *testing.T) {
	defaults := map[string]float64{"a": 0.5, "b": 0.5}
	res, err := OptimizeWeights(map[string]float64{"a": 50}, OptimizationConstraints{DefaultWeights: defaults})
	require.NoError(t, err)
	assert.Equal(t, defaults, res.Weights)

	res.Weights["a"] = 1
	assert.InDelta(t, 0.5, defaults["a"], 1e-9)
}

func TestOptimizeWeights_Errors(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
		c      OptimizationConstraints
	}{
		{"negative min", nil, OptimizationConstraints{MinWeight: -0.1}},
		{"min above max", nil, OptimizationConstraints{MinWeight: 0.6, MaxWeight: 0.5}},
		{"score above range", map[string]float64{"a": 120}, OptimizationConstraints{}},
		{"negative score", map[string]float64{"a": -1}, OptimizationConstraints{}},
		{"nan score", map[string]float64{"a": math.NaN()}, OptimizationConstraints{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OptimizeWeights(tt.scores, tt.c)
			assert.Error(t, err)
		})
	}
}
