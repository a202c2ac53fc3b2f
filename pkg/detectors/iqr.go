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

// IQRConfig configures the IQR detector.
type IQRConfig struct {
	Multiplier     float64 // default 1.5
	UpdateBaseline bool
}

// DefaultIQRConfig returns the spec's default IQR multiplier.
func DefaultIQRConfig() IQRConfig {
	return IQRConfig{Multiplier: 1.5, UpdateBaseline: true}
}

// IQRDetector flags latency outliers outside the interquartile fence.
type IQRDetector struct {
	cfg IQRConfig
}

// NewIQRDetector constructs an IQR detector with cfg.
func NewIQRDetector(cfg IQRConfig) *IQRDetector {
	return &IQRDetector{cfg: cfg}
}

func (d *IQRDetector) Name() string                  { return "iqr" }
func (d *IQRDetector) Method() events.DetectionMethod { return events.DetectionMethodIQR }
func (d *IQRDetector) Reset()                        {}

func (d *IQRDetector) Detect(store *baseline.Store, event events.TelemetryEvent) (events.AnomalyEvent, bool) {
	key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: events.MetricLatencyMs}
	b, ok := store.Get(key)
	if !ok || !b.IsValid() || b.IQR == 0 {
		return events.AnomalyEvent{}, false
	}

	x := event.LatencyMs
	lower, upper := stats.IQRBounds(b.Q1, b.Q3, b.IQR, d.cfg.Multiplier)

	var severity events.Severity
	var distance float64
	switch {
	case x > upper:
		distance = x - upper
		switch {
		case x > b.Q3+3*b.IQR:
			severity = events.SeverityCritical
		case x > 1.5*upper:
			severity = events.SeverityHigh
		default:
			severity = events.SeverityMedium
		}
	case x < lower:
		distance = lower - x
		severity = events.SeverityLow
	default:
		return events.AnomalyEvent{}, false
	}

	confidence := clampConfidence(0.7+minFloat(3, distance/b.IQR)*0.1, 0.7, 0.99)

	anomaly := events.NewAnomalyEvent(
		severity,
		events.AnomalyTypeLatencySpike,
		event.ServiceName,
		event.Model,
		events.DetectionMethodIQR,
		confidence,
		events.AnomalyDetails{
			Metric:    string(events.MetricLatencyMs),
			Value:     x,
			Baseline:  b.Median,
			Threshold: upper,
		},
		events.AnomalyContext{
			TimeWindow:  fmt.Sprintf("last %d samples", b.SampleCount),
			SampleCount: b.SampleCount,
		},
	)
	return anomaly, true
}

func (d *IQRDetector) Update(store *baseline.Store, event events.TelemetryEvent) {
	if !d.cfg.UpdateBaseline {
		return
	}
	key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: events.MetricLatencyMs}
	store.Update(key, event.LatencyMs)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
