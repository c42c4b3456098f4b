package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		v1   []float64
		v2   []float64
		want float64
	}{
		{"identical vectors", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite vectors", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal vectors", []float64{1, 0}, []float64{0, 1}, 0},
		{"mismatched dimensions", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty vectors", nil, nil, 0},
		{"zero magnitude", []float64{0, 0}, []float64{1, 2}, 0},
		{"scaled vectors keep similarity", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.v1, tt.v2), 1e-9)
		})
	}
}

func TestCosineSimilarityBounded(t *testing.T) {
	vectors := [][]float64{
		{0.3, -0.7, 0.2},
		{1.5, 2.5, -3.5},
		{-0.1, 0.1, 0.9},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			sim := CosineSimilarity(a, b)
			assert.GreaterOrEqual(t, sim, -1.0-1e-9)
			assert.LessOrEqual(t, sim, 1.0+1e-9)
		}
	}
}

func TestNormalizeVector(t *testing.T) {
	normalized := NormalizeVector([]float64{3, 4})
	assert.InDelta(t, 0.6, normalized[0], 1e-9)
	assert.InDelta(t, 0.8, normalized[1], 1e-9)

	var norm float64
	for _, v := range normalized {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	// Degenerate inputs pass through untouched
	assert.Empty(t, NormalizeVector(nil))
	assert.Equal(t, []float64{0, 0}, NormalizeVector([]float64{0, 0}))
}

func TestIsValidVector(t *testing.T) {
	assert.True(t, IsValidVector([]float64{0.1, -0.5, 2}))
	assert.True(t, IsValidVector(nil))
	assert.False(t, IsValidVector([]float64{0.1, math.NaN()}))
	assert.False(t, IsValidVector([]float64{math.Inf(1)}))
	assert.False(t, IsValidVector([]float64{math.Inf(-1), 0}))
}
