package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}
	assert.Equal(t, 10.0, Percentile(values, 0))
	assert.Equal(t, 50.0, Percentile(values, 1))
	assert.Equal(t, 30.0, Percentile(values, 0.5))
	assert.InDelta(t, 48.0, Percentile(values, 0.95), 0.01)
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
}

func TestMinMax(t *testing.T) {
	values := []float64{4, -1, 7}
	assert.Equal(t, -1.0, Min(values))
	assert.Equal(t, 7.0, Max(values))
	assert.Equal(t, 0.0, Min(nil))
	assert.Equal(t, 0.0, Max(nil))
}

func TestMeanAbs(t *testing.T) {
	assert.Equal(t, 2.0, MeanAbs([]float64{-1, 2, -3}))
}

func TestFilterMax(t *testing.T) {
	assert.Equal(t, []float64{1, 3}, FilterMax([]float64{1, 10, 3}, 5))
}
