// Package stats computes the summary tables and histograms shown beside the map.
package stats

import (
	"encoding/json"
	"math"
	"sort"
)

// DefaultBins is the histogram bin count used by the dashboard.
const DefaultBins = 30

// Summary is a describe() style summary of one series.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// MarshalJSON writes NaN fields as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	num := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Count int      `json:"count"`
		Mean  *float64 `json:"mean"`
		Std   *float64 `json:"std"`
		Min   *float64 `json:"min"`
		P25   *float64 `json:"p25"`
		P50   *float64 `json:"p50"`
		P75   *float64 `json:"p75"`
		Max   *float64 `json:"max"`
	}{s.Count, num(s.Mean), num(s.Std), num(s.Min), num(s.P25), num(s.P50), num(s.P75), num(s.Max)})
}

// Describe summarizes values, ignoring NaN. Std is the sample standard
// deviation and is NaN for fewer than two values. Percentiles interpolate
// linearly between closest ranks. An empty input yields Count 0 and NaN
// everywhere else.
func Describe(values []float64) Summary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}

	nan := math.NaN()
	s := Summary{Count: len(clean), Mean: nan, Std: nan, Min: nan, P25: nan, P50: nan, P75: nan, Max: nan}
	if len(clean) == 0 {
		return s
	}
	sort.Float64s(clean)

	var sum float64
	for _, v := range clean {
		sum += v
	}
	s.Mean = sum / float64(len(clean))

	if len(clean) > 1 {
		var sq float64
		for _, v := range clean {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(clean)-1))
	}

	s.Min = clean[0]
	s.Max = clean[len(clean)-1]
	s.P25 = quantile(clean, 0.25)
	s.P50 = quantile(clean, 0.50)
	s.P75 = quantile(clean, 0.75)
	return s
}

// quantile expects sorted input.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Bin is one histogram bar covering [Lo, Hi). The last bin is closed.
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Histogram splits the range of values into bins equal-width bins. When all
// values are equal the range is widened by 0.5 on each side.
func Histogram(values []float64, bins int) []Bin {
	if bins <= 0 {
		bins = DefaultBins
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return nil
	}
	return HistogramRange(values, bins, lo, hi)
}

// HistogramRange bins values over a fixed [lo, hi] so several series can
// share one set of edges. Values outside the range are not counted.
func HistogramRange(values []float64, bins int, lo, hi float64) []Bin {
	if bins <= 0 {
		bins = DefaultBins
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)

	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lo: lo + float64(i)*width, Hi: lo + float64(i+1)*width}
	}
	out[bins-1].Hi = hi

	for _, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}
