// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/llm-sentinel/sentinel/pkg/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sentinel.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTelemetry() events.TelemetryEvent {
	return events.NewTelemetryEvent("checkout-svc", "gpt-4", events.PromptInfo{Text: "hi", Tokens: 1}, events.ResponseInfo{Text: "hello", Tokens: 2}, 120.0, 0.002)
}

func sampleAnomaly() events.AnomalyEvent {
	return events.NewAnomalyEvent(
		events.SeverityHigh,
		events.AnomalyTypeLatencySpike,
		"checkout-svc",
		"gpt-4",
		events.DetectionMethodZScore,
		0.91,
		events.AnomalyDetails{Metric: "latency_ms", Value: 1000, Baseline: 100, Threshold: 3},
		events.AnomalyContext{TimeWindow: "1000", SampleCount: 50},
	)
}

func TestWriteAndQueryTelemetryRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := sampleTelemetry()
	if err := s.WriteTelemetry(ctx, e); err != nil {
		t.Fatalf("WriteTelemetry: %v", err)
	}

	got, err := s.QueryTelemetry(ctx, TelemetryFilter{Service: e.ServiceName, Limit: 10})
	if err != nil {
		t.Fatalf("QueryTelemetry: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].EventID != e.EventID {
		t.Errorf("EventID mismatch: got %s, want %s", got[0].EventID, e.EventID)
	}
}

func TestWriteTelemetryIsIdempotentOnEventID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := sampleTelemetry()
	if err := s.WriteTelemetry(ctx, e); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.WriteTelemetry(ctx, e); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := s.QueryTelemetry(ctx, TelemetryFilter{Service: e.ServiceName})
	if err != nil {
		t.Fatalf("QueryTelemetry: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 row after duplicate write, got %d", len(got))
	}
}

func TestWriteTelemetryBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := []events.TelemetryEvent{sampleTelemetry(), sampleTelemetry(), sampleTelemetry()}
	if err := s.WriteTelemetryBatch(ctx, batch); err != nil {
		t.Fatalf("WriteTelemetryBatch: %v", err)
	}

	got, err := s.QueryTelemetry(ctx, TelemetryFilter{Service: batch[0].ServiceName})
	if err != nil {
		t.Fatalf("QueryTelemetry: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
}

func TestQueryAnomaliesFiltersBySeverity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	high := sampleAnomaly()
	if err := s.WriteAnomaly(ctx, high); err != nil {
		t.Fatalf("WriteAnomaly: %v", err)
	}
	low := sampleAnomaly()
	low.AlertID = uuid.New()
	low.Severity = events.SeverityLow
	if err := s.WriteAnomaly(ctx, low); err != nil {
		t.Fatalf("WriteAnomaly: %v", err)
	}

	wantHigh := events.SeverityHigh
	got, err := s.QueryAnomalies(ctx, AnomalyFilter{Severity: &wantHigh})
	if err != nil {
		t.Fatalf("QueryAnomalies: %v", err)
	}
	if len(got) != 1 || got[0].AlertID != high.AlertID {
		t.Fatalf("expected only the high-severity alert, got %+v", got)
	}
}

func TestQueryTelemetryRespectsSinceFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := sampleTelemetry()
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.WriteTelemetry(ctx, old); err != nil {
		t.Fatalf("WriteTelemetry old: %v", err)
	}
	recent := sampleTelemetry()
	if err := s.WriteTelemetry(ctx, recent); err != nil {
		t.Fatalf("WriteTelemetry recent: %v", err)
	}

	got, err := s.QueryTelemetry(ctx, TelemetryFilter{Since: time.Now().UTC().Add(-1 * time.Hour)})
	if err != nil {
		t.Fatalf("QueryTelemetry: %v", err)
	}
	if len(got) != 1 || got[0].EventID != recent.EventID {
		t.Fatalf("expected only the recent event, got %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	s := openTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
