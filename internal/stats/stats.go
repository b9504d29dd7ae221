// Package stats has the small summary helpers the analysis reports share.
package stats

import "sort"

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func Median(values []float64) float64 {
	return Percentile(values, 0.5)
}

// Percentile linearly interpolates between the closest ranks. It returns 0
// for an empty slice.
func Percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	k := float64(len(sorted)-1) * pct
	f := int(k)
	c := f + 1
	if c >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	if float64(f) == k {
		return sorted[f]
	}
	return sorted[f]*(float64(c)-k) + sorted[c]*(k-float64(f))
}

func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func MeanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(values))
}

// FilterMax keeps values at or under the given maximum.
func FilterMax(values []float64, maximum float64) []float64 {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v <= maximum {
			kept = append(kept, v)
		}
	}
	return kept
}
