package scheduler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
		want  []float32
	}{
		{"already unit", []float32{0, 1, 0}, []float32{0, 1, 0}},
		{"three four five", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative components", []float32{-2, 0}, []float32{-1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.input)
			assert.InDeltaSlice(t, tt.want, got, 1e-6)
			assert.InDelta(t, 1.0, magnitude(got), 1e-6)
		})
	}
}

func TestNormalizeVector_EdgeCases(t *testing.T) {
	assert.Empty(t, NormalizeVector(nil))
	assert.Equal(t, []float32{0, 0, 0}, NormalizeVector([]float32{0, 0, 0}), "zero vector stays zero")

	in := []float32{2, 0}
	_ = NormalizeVector(in)
	assert.Equal(t, []float32{2, 0}, in, "input is not modified")
}
