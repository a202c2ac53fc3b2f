// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/dedup"
	"github.com/llm-sentinel/sentinel/pkg/detectors"
	"github.com/llm-sentinel/sentinel/pkg/engine"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// fakeSource serves a fixed sequence of batches, then returns empty
// batches forever so Run can be canceled cleanly via context.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]events.TelemetryEvent
}

func (f *fakeSource) Pull(ctx context.Context) ([]events.TelemetryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

type fakeStorage struct {
	mu        sync.Mutex
	telemetry []events.TelemetryEvent
	anomalies []events.AnomalyEvent
}

func (f *fakeStorage) WriteTelemetry(ctx context.Context, e events.TelemetryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telemetry = append(f.telemetry, e)
	return nil
}

func (f *fakeStorage) WriteAnomaly(ctx context.Context, a events.AnomalyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, a)
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []events.AnomalyEvent
}

func (f *fakeTransport) Send(ctx context.Context, a events.AnomalyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return nil
}

func noopValidate(events.TelemetryEvent) error { return nil }

func newTestDriver(t *testing.T, source Source, storage *fakeStorage, transport *fakeTransport) *Driver {
	t.Helper()
	store := baseline.NewStore(10, 0)
	zscore := detectors.NewZScoreDetector(detectors.DefaultZScoreConfig())
	eng, err := engine.New(store, []detectors.Detector{zscore})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	dd := dedup.New(dedup.DefaultConfig())
	return New(Config{SourceBackoff: time.Millisecond}, source, noopValidate, eng, storage, dd, transport, nil)
}

func latencyEvent(v float64) events.TelemetryEvent {
	return events.NewTelemetryEvent("svc-a", "gpt-4", events.PromptInfo{}, events.ResponseInfo{}, v, 0)
}

func TestProcessOneWritesTelemetryAlways(t *testing.T) {
	storage := &fakeStorage{}
	transport := &fakeTransport{}
	d := newTestDriver(t, &fakeSource{}, storage, transport)

	d.processOne(context.Background(), latencyEvent(100))

	if len(storage.telemetry) != 1 {
		t.Fatalf("expected 1 telemetry write, got %d", len(storage.telemetry))
	}
	if len(storage.anomalies) != 0 {
		t.Fatalf("expected no anomaly write for a normal event, got %d", len(storage.anomalies))
	}
}

func TestProcessOneDropsInvalidEvents(t *testing.T) {
	storage := &fakeStorage{}
	transport := &fakeTransport{}
	d := newTestDriver(t, &fakeSource{}, storage, transport)
	d.validate = func(events.TelemetryEvent) error { return errValidationStub }

	d.processOne(context.Background(), latencyEvent(100))

	if len(storage.telemetry) != 0 {
		t.Fatalf("expected dropped event to skip storage, got %d writes", len(storage.telemetry))
	}
}

var errValidationStub = errStub("validation failed")

type errStub string

func (e errStub) Error() string { return string(e) }

func TestProcessOnePublishesAnomalyOnFirstOccurrence(t *testing.T) {
	storage := &fakeStorage{}
	transport := &fakeTransport{}
	d := newTestDriver(t, &fakeSource{}, storage, transport)

	normal := []float64{95, 97, 100, 98, 102, 100, 99, 101, 103, 105}
	for _, v := range normal {
		d.processOne(context.Background(), latencyEvent(v))
	}

	d.processOne(context.Background(), latencyEvent(1000))

	if len(storage.anomalies) != 1 {
		t.Fatalf("expected 1 anomaly write, got %d", len(storage.anomalies))
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 published alert, got %d", len(transport.sent))
	}
}

func TestProcessOneDeduplicatesRepeatedAnomaly(t *testing.T) {
	storage := &fakeStorage{}
	transport := &fakeTransport{}
	d := newTestDriver(t, &fakeSource{}, storage, transport)

	normal := []float64{95, 97, 100, 98, 102, 100, 99, 101, 103, 105}
	for _, v := range normal {
		d.processOne(context.Background(), latencyEvent(v))
	}

	// The first spike is folded into the window (mean 190.5, stddev
	// ~284.4), so the second must be far enough out to stay Critical
	// (z ~16.9) and share the first alert's signature.
	d.processOne(context.Background(), latencyEvent(1000))
	d.processOne(context.Background(), latencyEvent(5000))

	if len(storage.anomalies) != 2 {
		t.Fatalf("expected both anomalies persisted, got %d", len(storage.anomalies))
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected only the first alert published before the dedup window, got %d", len(transport.sent))
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	storage := &fakeStorage{}
	transport := &fakeTransport{}
	source := &fakeSource{batches: [][]events.TelemetryEvent{{latencyEvent(100)}}}
	d := newTestDriver(t, source, storage, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
