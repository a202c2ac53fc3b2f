// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package detectors implements the statistical anomaly detectors the
// detection engine runs in order against each telemetry event: Z-Score,
// IQR, MAD and CUSUM. Each detector reads the shared baseline store to
// decide whether an event is anomalous, and separately folds the event
// back into that store so future comparisons track the current regime.
package detectors

import (
	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// Detector is the common contract every detection method implements.
// Detect must not mutate the baseline store; Update is the only
// method allowed to. A detector that finds its target metric's
// baseline missing or invalid (fewer than baseline.MinSamples
// observations) silently skips it rather than erroring.
type Detector interface {
	// Detect inspects event against the current baseline state and
	// returns an anomaly if one is found.
	Detect(store *baseline.Store, event events.TelemetryEvent) (events.AnomalyEvent, bool)
	// Update folds event into the baseline(s) this detector tracks,
	// when its UpdateBaseline configuration flag is set.
	Update(store *baseline.Store, event events.TelemetryEvent)
	// Reset clears any state owned by the detector beyond the shared
	// baseline store (a no-op for stateless detectors).
	Reset()
	// Name identifies the detector for metrics and logging.
	Name() string
	// Method reports the detection method this detector raises
	// anomalies under.
	Method() events.DetectionMethod
}

// clampConfidence constrains a confidence value to [lo, hi].
func clampConfidence(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floatPtr(f float64) *float64 { return &f }

func stringPtr(s string) *string { return &s }
