// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package detectors_test

import (
	"testing"

	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/detectors"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

func latencyEvent(service events.ServiceId, model events.ModelId, latency float64) events.TelemetryEvent {
	return events.NewTelemetryEvent(service, model, events.PromptInfo{}, events.ResponseInfo{}, latency, 0)
}

func TestZScoreNoBaselineNoAlert(t *testing.T) {
	store := baseline.NewStore(10, 0)
	d := detectors.NewZScoreDetector(detectors.DefaultZScoreConfig())

	ev := latencyEvent("svc-a", "gpt-4", 1000)
	if _, found := d.Detect(store, ev); found {
		t.Fatal("expected no anomaly with zero samples observed")
	}
}

func TestZScoreLatencySpike(t *testing.T) {
	store := baseline.NewStore(10, 0)
	d := detectors.NewZScoreDetector(detectors.DefaultZScoreConfig())
	key := baseline.Key{Service: "svc-a", Model: "gpt-4", Metric: events.MetricLatencyMs}

	normal := []float64{95, 97, 100, 98, 102, 100, 99, 101, 103, 105}
	for _, v := range normal {
		ev := latencyEvent("svc-a", "gpt-4", v)
		d.Update(store, ev)
	}
	if !store.HasValid(key) {
		t.Fatal("expected baseline to be valid after 10 samples")
	}

	spike := latencyEvent("svc-a", "gpt-4", 1000)
	anomaly, found := d.Detect(store, spike)
	if !found {
		t.Fatal("expected a Z-Score anomaly on a 1000ms spike")
	}
	if anomaly.Severity != events.SeverityCritical {
		t.Fatalf("severity = %v, want Critical", anomaly.Severity)
	}
	if anomaly.DetectionMethod != events.DetectionMethodZScore {
		t.Fatalf("method = %v, want z_score", anomaly.DetectionMethod)
	}
	if anomaly.Confidence < 0.98 {
		t.Fatalf("confidence = %v, want >= 0.98", anomaly.Confidence)
	}
	if anomaly.Details.Value != 1000 {
		t.Fatalf("details.value = %v, want 1000", anomaly.Details.Value)
	}
}

func TestIQRRobustness(t *testing.T) {
	store := baseline.NewStore(20, 0)
	d := detectors.NewIQRDetector(detectors.DefaultIQRConfig())

	for i := 1; i <= 20; i++ {
		ev := latencyEvent("svc-b", "gpt-4", float64(i*10))
		d.Update(store, ev)
	}

	spike := latencyEvent("svc-b", "gpt-4", 500)
	anomaly, found := d.Detect(store, spike)
	if !found {
		t.Fatal("expected an IQR anomaly on latency 500")
	}
	if anomaly.AnomalyType.String() != "latency_spike" {
		t.Fatalf("anomaly type = %v, want latency_spike", anomaly.AnomalyType)
	}

	normalish := latencyEvent("svc-b", "gpt-4", 150)
	if _, found := d.Detect(store, normalish); found {
		t.Fatal("expected no anomaly at latency 150 inside the fence")
	}
}

func TestCUSUMDriftDetectsWithinThirtyEvents(t *testing.T) {
	store := baseline.NewStore(20, 0)
	d := detectors.NewCUSUMDetector(detectors.DefaultCUSUMConfig())

	for i := 0; i < 20; i++ {
		ev := events.NewTelemetryEvent("svc-c", "gpt-4", events.PromptInfo{}, events.ResponseInfo{}, 0, 0.01)
		d.Update(store, ev)
	}

	found := false
	for i := 0; i < 30 && !found; i++ {
		ev := events.NewTelemetryEvent("svc-c", "gpt-4", events.PromptInfo{}, events.ResponseInfo{}, 0, 0.02)
		anomaly, ok := d.Detect(store, ev)
		if ok {
			found = true
			if anomaly.AnomalyType.String() != "cost_anomaly" {
				t.Fatalf("anomaly type = %v, want cost_anomaly", anomaly.AnomalyType)
			}
		}
		d.Update(store, ev)
	}
	if !found {
		t.Fatal("expected CUSUM to detect the cost drift within 30 events")
	}
}

func TestMADSkipsWhenBaselineMissing(t *testing.T) {
	store := baseline.NewStore(10, 0)
	d := detectors.NewMADDetector(detectors.DefaultMADConfig())
	ev := latencyEvent("svc-d", "gpt-4", 5000)
	if _, found := d.Detect(store, ev); found {
		t.Fatal("expected no anomaly with no baseline")
	}
}
