// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stats provides the pure statistical primitives the detection
// core is built on: central-tendency and dispersion estimators, sorted
// percentiles, and the outlier predicates the detectors share.
//
// Every function here is a pure function of its input slice; none of
// them mutate their argument or carry state. For sorting, NaNs order
// after every real value and equal to each other, so that percentile
// output is deterministic regardless of where a NaN lands in the input.
package stats

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

func minOf[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func sortedCopy(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	sort.Slice(out, func(i, j int) bool {
		// NaN orders after every real value (and equal to another NaN)
		// so it sorts deterministically instead of corrupting the
		// ordering of the real values.
		if math.IsNaN(out[i]) {
			return false
		}
		if math.IsNaN(out[j]) {
			return true
		}
		return out[i] < out[j]
	})
	return out
}

// Mean returns the arithmetic mean of data, or 0 for an empty slice.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// StdDev returns the sample standard deviation (n-1 denominator),
// or 0 when data has fewer than two elements.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	mean := Mean(data)
	sumSq := 0.0
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)-1))
}

// Median returns the middle value of data (averaging the two central
// values for an even-length slice), or 0 for an empty slice.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := sortedCopy(data)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MAD returns the median absolute deviation: median(|x_i - median(x)|).
func MAD(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	med := Median(data)
	devs := make([]float64, len(data))
	for i, v := range data {
		devs[i] = math.Abs(v - med)
	}
	return Median(devs)
}

// Percentile returns the p-th percentile (p in [0, 100]) of data using
// stable linear interpolation between closest ranks, or 0 for an empty
// slice.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := sortedCopy(data)
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	p = maxOf(0.0, minOf(100.0, p))
	rank := (p / 100) * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Quartiles returns (q1, q3, iqr) computed via Percentile(25)/Percentile(75).
func Quartiles(data []float64) (q1, q3, iqr float64) {
	q1 = Percentile(data, 25)
	q3 = Percentile(data, 75)
	return q1, q3, q3 - q1
}

// Min returns the smallest value in data, or 0 for an empty slice.
func Min(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0]
	for _, v := range data[1:] {
		m = minOf(m, v)
	}
	return m
}

// Max returns the largest value in data, or 0 for an empty slice.
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0]
	for _, v := range data[1:] {
		m = maxOf(m, v)
	}
	return m
}

// ZScore returns (x-mean)/stdDev, or 0 when stdDev is 0.
func ZScore(x, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (x - mean) / stdDev
}

// IsZScoreOutlier reports whether |ZScore(x, mean, stdDev)| exceeds threshold.
func IsZScoreOutlier(x, mean, stdDev, threshold float64) bool {
	return math.Abs(ZScore(x, mean, stdDev)) > threshold
}

// IQRBounds returns the [lower, upper] fence for the given quartiles and
// multiplier k: lower = q1 - k*iqr, upper = q3 + k*iqr.
func IQRBounds(q1, q3, iqr, k float64) (lower, upper float64) {
	return q1 - k*iqr, q3 + k*iqr
}

// IsIQROutlier reports whether x falls outside the IQR fence.
func IsIQROutlier(x, q1, q3, iqr, k float64) bool {
	lower, upper := IQRBounds(q1, q3, iqr, k)
	return x < lower || x > upper
}

// ModifiedZScore returns the MAD-based robust z-score 0.6745*|x-median|/mad,
// or 0 when mad is 0.
func ModifiedZScore(x, median, mad float64) float64 {
	if mad == 0 {
		return 0
	}
	return 0.6745 * math.Abs(x-median) / mad
}

// IsMADOutlier reports whether the modified z-score of x exceeds threshold.
// A zero MAD is never an outlier: a degenerate (constant) sample carries
// no information about dispersion.
func IsMADOutlier(x, median, mad, threshold float64) bool {
	if mad == 0 {
		return false
	}
	return ModifiedZScore(x, median, mad) > threshold
}
