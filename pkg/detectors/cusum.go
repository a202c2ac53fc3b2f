// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package detectors

import (
	"fmt"
	"sync"

	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// CUSUMConfig configures the CUSUM change-point detector.
type CUSUMConfig struct {
	Threshold      float64 // h, default 5.0
	Slack          float64 // k, default 0.5
	UpdateBaseline bool
}

// DefaultCUSUMConfig returns the spec's default CUSUM parameters.
func DefaultCUSUMConfig() CUSUMConfig {
	return CUSUMConfig{Threshold: 5.0, Slack: 0.5, UpdateBaseline: true}
}

// cusumState is the running (S+, S-, n) triple for one baseline key.
// It is the only mutable state a detector owns beyond the shared
// baseline store, per the detection-engine contract.
type cusumState struct {
	mu         sync.Mutex
	sPos, sNeg float64
	n          int
}

// CUSUMDetector flags sustained drift in cost_usd that individual
// Z-Score checks would miss because no single observation crosses the
// per-event threshold — only the accumulated deviation does.
type CUSUMDetector struct {
	cfg CUSUMConfig

	mu     sync.Mutex
	states map[baseline.Key]*cusumState
}

// NewCUSUMDetector constructs a CUSUM detector with cfg.
func NewCUSUMDetector(cfg CUSUMConfig) *CUSUMDetector {
	return &CUSUMDetector{cfg: cfg, states: make(map[baseline.Key]*cusumState)}
}

func (d *CUSUMDetector) Name() string                  { return "cusum" }
func (d *CUSUMDetector) Method() events.DetectionMethod { return events.DetectionMethodCUSUM }

// Reset drops all accumulated per-key state.
func (d *CUSUMDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = make(map[baseline.Key]*cusumState)
}

func (d *CUSUMDetector) stateFor(key baseline.Key) *cusumState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[key]
	if !ok {
		st = &cusumState{}
		d.states[key] = st
	}
	return st
}

func (d *CUSUMDetector) Detect(store *baseline.Store, event events.TelemetryEvent) (events.AnomalyEvent, bool) {
	key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: events.MetricCostUSD}
	b, ok := store.Get(key)
	if !ok || !b.IsValid() {
		return events.AnomalyEvent{}, false
	}

	x := event.CostUSD
	k, h := d.cfg.Slack, d.cfg.Threshold

	st := d.stateFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sPos = max0(st.sPos + (x - b.Mean) - k)
	st.sNeg = min0(st.sNeg + (x - b.Mean) + k)
	st.n++

	absNeg := -st.sNeg
	if st.sPos <= h && absNeg <= h {
		return events.AnomalyEvent{}, false
	}

	severity := events.SeverityMedium
	if st.sPos > 2*h {
		severity = events.SeverityHigh
	}
	peak := st.sPos
	if absNeg > peak {
		peak = absNeg
	}
	confidence := clampConfidence(peak/h, 0, 0.95)

	anomaly := events.NewAnomalyEvent(
		severity,
		events.AnomalyTypeCostAnomaly,
		event.ServiceName,
		event.Model,
		events.DetectionMethodCUSUM,
		confidence,
		events.AnomalyDetails{
			Metric:    string(events.MetricCostUSD),
			Value:     x,
			Baseline:  b.Mean,
			Threshold: h,
		},
		events.AnomalyContext{
			TimeWindow:  fmt.Sprintf("%d samples accumulated", st.n),
			SampleCount: b.SampleCount,
		},
	)

	st.sPos, st.sNeg, st.n = 0, 0, 0
	return anomaly, true
}

func (d *CUSUMDetector) Update(store *baseline.Store, event events.TelemetryEvent) {
	if !d.cfg.UpdateBaseline {
		return
	}
	key := baseline.Key{Service: event.ServiceName, Model: event.Model, Metric: events.MetricCostUSD}
	store.Update(key, event.CostUSD)
}

func max0(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func min0(v float64) float64 {
	if v < 0 {
		return v
	}
	return 0
}
