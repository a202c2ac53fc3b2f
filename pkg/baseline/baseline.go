// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package baseline holds the rolling statistical summary each
// (service, model, metric) triple is compared against by the
// detectors, and the concurrent store that keeps one such summary per
// key up to date as events stream through the pipeline.
package baseline

import (
	"github.com/llm-sentinel/sentinel/pkg/events"
	"github.com/llm-sentinel/sentinel/pkg/stats"
)

// Key identifies the population a Baseline summarizes.
type Key struct {
	Service events.ServiceId
	Model   events.ModelId
	Metric  events.Metric
}

// MinSamples is the minimum window population before a Baseline is
// considered statistically meaningful. Below this count, detectors
// must treat the baseline as absent rather than compare against noise.
const MinSamples = 10

// Baseline is an immutable snapshot of a RollingWindow's statistics at
// the moment it was computed. Detectors read it; only the Store writes
// a new one, under the shard lock, after each Push that leaves the
// window full.
type Baseline struct {
	Key         Key
	Mean        float64
	StdDev      float64
	Median      float64
	MAD         float64
	Q1          float64
	Q3          float64
	IQR         float64
	P95         float64
	P99         float64
	Min         float64
	Max         float64
	SampleCount int
}

// IsValid reports whether the baseline has observed enough samples to
// be used as a detection reference.
func (b Baseline) IsValid() bool {
	return b.SampleCount >= MinSamples
}

// computeBaseline derives a Baseline snapshot from a window's current
// contents. The Store calls it while holding the shard lock, so data
// (which aliases the window's storage) cannot change underneath it; it
// only reads data.
func computeBaseline(key Key, data []float64) Baseline {
	q1, q3, iqr := stats.Quartiles(data)
	return Baseline{
		Key:         key,
		Mean:        stats.Mean(data),
		StdDev:      stats.StdDev(data),
		Median:      stats.Median(data),
		MAD:         stats.MAD(data),
		Q1:          q1,
		Q3:          q3,
		IQR:         iqr,
		P95:         stats.Percentile(data, 95),
		P99:         stats.Percentile(data, 99),
		Min:         stats.Min(data),
		Max:         stats.Max(data),
		SampleCount: len(data),
	}
}
