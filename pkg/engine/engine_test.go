// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine_test

import (
	"errors"
	"testing"

	"github.com/llm-sentinel/sentinel/internal/sentinelerr"
	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/detectors"
	"github.com/llm-sentinel/sentinel/pkg/engine"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// panickingDetector always panics on Detect, used to exercise the
// engine's per-detector panic isolation.
type panickingDetector struct{}

func (panickingDetector) Detect(*baseline.Store, events.TelemetryEvent) (events.AnomalyEvent, bool) {
	panic("boom")
}
func (panickingDetector) Update(*baseline.Store, events.TelemetryEvent) {}
func (panickingDetector) Reset()                                       {}
func (panickingDetector) Name() string                                 { return "panicky" }
func (panickingDetector) Method() events.DetectionMethod {
	return events.DetectionMethodZScore
}

func TestNewRefusesZeroDetectors(t *testing.T) {
	store := baseline.NewStore(100, 0)
	_, err := engine.New(store, nil)
	if !errors.Is(err, sentinelerr.ErrNoDetectorsEnabled) {
		t.Fatalf("expected ErrNoDetectorsEnabled, got %v", err)
	}
}

func TestProcessContinuesLearningAfterAnomaly(t *testing.T) {
	store := baseline.NewStore(10, 0)
	zscore := detectors.NewZScoreDetector(detectors.DefaultZScoreConfig())
	eng, err := engine.New(store, []detectors.Detector{zscore})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	normal := []float64{95, 97, 100, 98, 102, 100, 99, 101, 103, 105}
	for _, v := range normal {
		ev := events.NewTelemetryEvent("svc-a", "gpt-4", events.PromptInfo{}, events.ResponseInfo{}, v, 0)
		if _, found := eng.Process(ev); found {
			t.Fatal("did not expect an anomaly while warming up the baseline")
		}
	}

	spike := events.NewTelemetryEvent("svc-a", "gpt-4", events.PromptInfo{}, events.ResponseInfo{}, 1000, 0)
	anomaly, found := eng.Process(spike)
	if !found {
		t.Fatal("expected an anomaly on the latency spike")
	}
	if anomaly.Severity != events.SeverityCritical {
		t.Fatalf("severity = %v, want Critical", anomaly.Severity)
	}

	key := baseline.Key{Service: "svc-a", Model: "gpt-4", Metric: events.MetricLatencyMs}
	b, ok := store.Get(key)
	if !ok {
		t.Fatal("expected baseline to still exist after the anomaly")
	}
	if b.SampleCount != 10 {
		t.Fatalf("SampleCount = %d, want 10 (window stays at capacity; learning must continue after an alert)", b.SampleCount)
	}
	if b.Max != 1000 {
		t.Fatalf("Max = %v, want 1000 (the anomalous value must be folded into the window)", b.Max)
	}

	stats := eng.Snapshot()
	if stats.EventsProcessed != 11 {
		t.Fatalf("EventsProcessed = %d, want 11", stats.EventsProcessed)
	}
	if stats.AnomaliesEmitted != 1 {
		t.Fatalf("AnomaliesEmitted = %d, want 1", stats.AnomaliesEmitted)
	}
	if stats.PerDetector["zscore"].Fired != 1 {
		t.Fatalf("zscore Fired = %d, want 1", stats.PerDetector["zscore"].Fired)
	}
}

func TestProcessIsolatesPanickingDetector(t *testing.T) {
	store := baseline.NewStore(10, 0)
	zscore := detectors.NewZScoreDetector(detectors.DefaultZScoreConfig())
	eng, err := engine.New(store, []detectors.Detector{panickingDetector{}, zscore})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ev := events.NewTelemetryEvent("svc-a", "gpt-4", events.PromptInfo{}, events.ResponseInfo{}, 100, 0)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Process must not let a detector panic escape: %v", r)
		}
	}()
	if _, found := eng.Process(ev); found {
		t.Fatal("did not expect an anomaly from a single warm-up event")
	}

	stats := eng.Snapshot()
	if stats.PerDetector["panicky"].Errors != 1 {
		t.Fatalf("panicky Errors = %d, want 1", stats.PerDetector["panicky"].Errors)
	}
	if stats.EventsProcessed != 1 {
		t.Fatalf("EventsProcessed = %d, want 1", stats.EventsProcessed)
	}
}
