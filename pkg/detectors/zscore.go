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

// ZScoreConfig configures the Z-Score detector.
type ZScoreConfig struct {
	Threshold      float64 // default 3.0
	UpdateBaseline bool
}

// DefaultZScoreConfig returns the spec's default Z-Score thresholds.
func DefaultZScoreConfig() ZScoreConfig {
	return ZScoreConfig{Threshold: 3.0, UpdateBaseline: true}
}

// zscoreMetric pairs a tracked metric with the AnomalyType it raises.
type zscoreMetric struct {
	metric events.Metric
	kind   events.AnomalyType
}

// zscoreMetrics is evaluated in this fixed order; the first metric
// whose z-score breaches the threshold short-circuits the rest.
var zscoreMetrics = []zscoreMetric{
	{events.MetricLatencyMs, events.AnomalyTypeLatencySpike},
	{events.MetricTotalTokens, events.AnomalyTypeTokenUsageSpike},
	{events.MetricCostUSD, events.AnomalyTypeCostAnomaly},
}

// ZScoreDetector flags events whose value is too many standard
// deviations from its metric's rolling mean.
type ZScoreDetector struct {
	cfg ZScoreConfig
}

// NewZScoreDetector constructs a Z-Score detector with cfg.
func NewZScoreDetector(cfg ZScoreConfig) *ZScoreDetector {
	return &ZScoreDetector{cfg: cfg}
}

func (d *ZScoreDetector) Name() string                    { return "zscore" }
func (d *ZScoreDetector) Method() events.DetectionMethod   { return events.DetectionMethodZScore }
func (d *ZScoreDetector) Reset()                           {}

func zscoreSeverity(absZ float64) events.Severity {
	switch {
	case absZ >= 6:
		return events.SeverityCritical
	case absZ >= 4:
		return events.SeverityHigh
	case absZ >= 3:
		return events.SeverityMedium
	default:
		return events.SeverityLow
	}
}

func zscoreConfidence(absZ, threshold float64) float64 {
	c := 1 - 1/(1+(absZ-threshold))
	return clampConfidence(c, 0.5, 0.99)
}

func (d *ZScoreDetector) Detect(store *baseline.Store, event events.TelemetryEvent) (events.AnomalyEvent, bool) {
	for _, m := range zscoreMetrics {
		key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: m.metric}
		b, ok := store.Get(key)
		if !ok || !b.IsValid() {
			continue
		}
		x, ok := event.MetricValue(m.metric)
		if !ok {
			continue
		}
		z := stats.ZScore(x, b.Mean, b.StdDev)
		absZ := z
		if absZ < 0 {
			absZ = -absZ
		}
		if absZ <= d.cfg.Threshold {
			continue
		}

		severity := zscoreSeverity(absZ)
		confidence := zscoreConfidence(absZ, d.cfg.Threshold)

		anomaly := events.NewAnomalyEvent(
			severity,
			m.kind,
			event.ServiceName,
			event.Model,
			events.DetectionMethodZScore,
			confidence,
			events.AnomalyDetails{
				Metric:         string(m.metric),
				Value:          x,
				Baseline:       b.Mean,
				Threshold:      d.cfg.Threshold,
				DeviationSigma: floatPtr(z),
			},
			events.AnomalyContext{
				TimeWindow:  fmt.Sprintf("last %d samples", b.SampleCount),
				SampleCount: b.SampleCount,
			},
		)
		return anomaly, true
	}
	return events.AnomalyEvent{}, false
}

func (d *ZScoreDetector) Update(store *baseline.Store, event events.TelemetryEvent) {
	if !d.cfg.UpdateBaseline {
		return
	}
	for _, m := range zscoreMetrics {
		x, ok := event.MetricValue(m.metric)
		if !ok {
			continue
		}
		key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: m.metric}
		store.Update(key, x)
	}
}
