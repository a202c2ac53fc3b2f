// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats_test

import (
	"math"
	"testing"

	"github.com/llm-sentinel/sentinel/pkg/stats"
)

func TestMean(t *testing.T) {
	if got := stats.Mean([]float64{1, 2, 3, 4, 5}); got != 3 {
		t.Fatalf("Mean() = %v, want 3", got)
	}
	if got := stats.Mean(nil); got != 0 {
		t.Fatalf("Mean(nil) = %v, want 0", got)
	}
}

func TestStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := stats.StdDev(data)
	if math.Abs(got-2.138) > 0.01 {
		t.Fatalf("StdDev() = %v, want ~2.138", got)
	}
	if got := stats.StdDev([]float64{5}); got != 0 {
		t.Fatalf("StdDev(single) = %v, want 0", got)
	}
}

func TestMedian(t *testing.T) {
	if got := stats.Median([]float64{1, 2, 3, 4, 5}); got != 3 {
		t.Fatalf("Median(odd) = %v, want 3", got)
	}
	if got := stats.Median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Fatalf("Median(even) = %v, want 2.5", got)
	}
}

func TestMAD(t *testing.T) {
	// median is 3, deviations are [2,1,0,1,2], median of those is 1.
	if got := stats.MAD([]float64{1, 2, 3, 4, 5}); got != 1 {
		t.Fatalf("MAD() = %v, want 1", got)
	}
}

func TestQuartiles(t *testing.T) {
	data := make([]float64, 0, 20)
	for i := 1; i <= 20; i++ {
		data = append(data, float64(i*10))
	}
	q1, q3, iqr := stats.Quartiles(data)
	if q3 <= q1 {
		t.Fatalf("expected q3 > q1, got q1=%v q3=%v", q1, q3)
	}
	if iqr != q3-q1 {
		t.Fatalf("iqr mismatch: %v != %v-%v", iqr, q3, q1)
	}
}

func TestZScore(t *testing.T) {
	if got := stats.ZScore(5, 3, 2); got != 1 {
		t.Fatalf("ZScore = %v, want 1", got)
	}
	if got := stats.ZScore(3, 3, 0); got != 0 {
		t.Fatalf("ZScore with zero stddev = %v, want 0", got)
	}
}

func TestIsMADOutlier(t *testing.T) {
	if stats.IsMADOutlier(10, 5, 0, 3.5) {
		t.Fatal("zero MAD must never be an outlier")
	}
}

func TestPercentileDeterministicWithNaN(t *testing.T) {
	a := stats.Percentile([]float64{1, 2, math.NaN(), 4, 5}, 50)
	b := stats.Percentile([]float64{1, 2, math.NaN(), 4, 5}, 50)
	if a != b {
		t.Fatalf("percentile not deterministic: %v != %v", a, b)
	}
}

func TestRollingWindowBoundAndFIFO(t *testing.T) {
	w := stats.NewRollingWindow(3)
	if w.IsFull() {
		t.Fatal("new window must not be full")
	}
	for _, v := range []float64{1, 2, 3, 4} {
		w.Push(v)
		if w.Len() > w.Capacity() {
			t.Fatalf("window exceeded capacity: len=%d cap=%d", w.Len(), w.Capacity())
		}
	}
	got := w.Data()
	want := []float64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Data() = %v, want %v", got, want)
		}
	}
}

func TestRollingWindowClear(t *testing.T) {
	w := stats.NewRollingWindow(5)
	w.Push(1)
	w.Push(2)
	w.Clear()
	if w.Len() != 0 {
		t.Fatalf("expected empty window after Clear, got len=%d", w.Len())
	}
}
