package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	s := Describe([]float64{4, 1, 3, 2, math.NaN()})

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.Std, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.InDelta(t, 1.75, s.P25, 1e-12)
	assert.InDelta(t, 2.5, s.P50, 1e-12)
	assert.InDelta(t, 3.25, s.P75, 1e-12)
	assert.Equal(t, 4.0, s.Max)
}

func TestDescribe_SingleValue(t *testing.T) {
	s := Describe([]float64{7})
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 7.0, s.Mean)
	assert.True(t, math.IsNaN(s.Std))
	assert.Equal(t, 7.0, s.P50)
}

func TestDescribe_Empty(t *testing.T) {
	s := Describe(nil)
	assert.Zero(t, s.Count)
	assert.True(t, math.IsNaN(s.Mean))
	assert.True(t, math.IsNaN(s.Max))
}

func TestHistogram(t *testing.T) {
	bins := Histogram([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5)
	require.Len(t, bins, 5)

	assert.Equal(t, 0.0, bins[0].Lo)
	assert.Equal(t, 10.0, bins[4].Hi)
	counts := []int{bins[0].Count, bins[1].Count, bins[2].Count, bins[3].Count, bins[4].Count}
	assert.Equal(t, []int{2, 2, 2, 2, 3}, counts, "maximum lands in the closed last bin")
}

func TestHistogram_ConstantValues(t *testing.T) {
	bins := Histogram([]float64{3, 3, 3}, 2)
	require.Len(t, bins, 2)
	assert.Equal(t, 2.5, bins[0].Lo)
	assert.Equal(t, 3.5, bins[1].Hi)
	assert.Equal(t, 3, bins[0].Count+bins[1].Count)
}

func TestHistogram_EmptyAndDefaultBins(t *testing.T) {
	assert.Nil(t, Histogram(nil, 10))
	assert.Len(t, Histogram([]float64{1, 2}, 0), DefaultBins)
}

func TestHistogramRange_SharedEdges(t *testing.T) {
	bins := HistogramRange([]float64{-1, 0, 5, 11}, 2, 0, 10)
	require.Len(t, bins, 2)
	assert.Equal(t, 1, bins[0].Count)
	assert.Equal(t, 1, bins[1].Count)
}

func TestSummaryJSON_NaNAsNull(t *testing.T) {
	data, err := json.Marshal(Describe([]float64{5}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1,"mean":5,"std":null,"min":5,"p25":5,"p50":5,"p75":5,"max":5}`, string(data))
}
