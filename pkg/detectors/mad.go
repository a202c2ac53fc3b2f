// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package detectors

import (
	"fmt"

	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/events"
	"github.com/llm-sentinel/sentinel/pkg/stats"
)

// MADConfig configures the MAD detector.
type MADConfig struct {
	Threshold      float64 // default 3.5
	UpdateBaseline bool
}

// DefaultMADConfig returns the spec's default modified-z-score threshold.
func DefaultMADConfig() MADConfig {
	return MADConfig{Threshold: 3.5, UpdateBaseline: true}
}

// MADDetector flags latency outliers using the median-absolute-deviation
// based modified z-score, which stays meaningful even when the sample
// already contains extreme values (unlike mean/stddev).
type MADDetector struct {
	cfg MADConfig
}

// NewMADDetector constructs a MAD detector with cfg.
func NewMADDetector(cfg MADConfig) *MADDetector {
	return &MADDetector{cfg: cfg}
}

func (d *MADDetector) Name() string                  { return "mad" }
func (d *MADDetector) Method() events.DetectionMethod { return events.DetectionMethodMAD }
func (d *MADDetector) Reset()                        {}

func (d *MADDetector) Detect(store *baseline.Store, event events.TelemetryEvent) (events.AnomalyEvent, bool) {
	key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: events.MetricLatencyMs}
	b, ok := store.Get(key)
	if !ok || !b.IsValid() {
		return events.AnomalyEvent{}, false
	}

	x := event.LatencyMs
	if !stats.IsMADOutlier(x, b.Median, b.MAD, d.cfg.Threshold) {
		return events.AnomalyEvent{}, false
	}

	m := stats.ModifiedZScore(x, b.Median, b.MAD)
	severity := events.SeverityMedium
	if x > b.P99 {
		severity = events.SeverityHigh
	}
	confidence := clampConfidence(m/d.cfg.Threshold, 0, 0.99)

	anomaly := events.NewAnomalyEvent(
		severity,
		events.AnomalyTypeLatencySpike,
		event.ServiceName,
		event.Model,
		events.DetectionMethodMAD,
		confidence,
		events.AnomalyDetails{
			Metric:         string(events.MetricLatencyMs),
			Value:          x,
			Baseline:       b.Median,
			Threshold:      d.cfg.Threshold,
			DeviationSigma: floatPtr(m),
		},
		events.AnomalyContext{
			TimeWindow:  fmt.Sprintf("last %d samples", b.SampleCount),
			SampleCount: b.SampleCount,
		},
	)
	return anomaly, true
}

func (d *MADDetector) Update(store *baseline.Store, event events.TelemetryEvent) {
	if !d.cfg.UpdateBaseline {
		return
	}
	key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: events.MetricLatencyMs}
	store.Update(key, event.LatencyMs)
}
