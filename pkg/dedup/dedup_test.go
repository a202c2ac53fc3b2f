// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dedup_test

import (
	"testing"
	"time"

	"github.com/llm-sentinel/sentinel/pkg/dedup"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

func testAnomaly(severity events.Severity) events.AnomalyEvent {
	return events.NewAnomalyEvent(
		severity,
		events.AnomalyTypeLatencySpike,
		"svc-a",
		"gpt-4",
		events.DetectionMethodZScore,
		0.9,
		events.AnomalyDetails{},
		events.AnomalyContext{},
	)
}

func TestShouldSendWithinWindowIsSuppressed(t *testing.T) {
	d := dedup.New(dedup.Config{Enabled: true, Window: time.Minute})
	sig := testAnomaly(events.SeverityHigh)

	if !d.ShouldSend(sig) {
		t.Fatal("first observation of a signature must return true")
	}
	for i := 0; i < 5; i++ {
		if d.ShouldSend(testAnomaly(events.SeverityHigh)) {
			t.Fatal("repeated observation within the window must be suppressed")
		}
	}

	stats := d.Snapshot()
	if stats.TotalSignatures != 1 {
		t.Fatalf("TotalSignatures = %d, want 1", stats.TotalSignatures)
	}
	if stats.TotalSuppressed != 5 {
		t.Fatalf("TotalSuppressed = %d, want 5", stats.TotalSuppressed)
	}
}

func TestShouldSendResetsAfterWindowExpiry(t *testing.T) {
	d := dedup.New(dedup.Config{Enabled: true, Window: 10 * time.Millisecond})

	if !d.ShouldSend(testAnomaly(events.SeverityHigh)) {
		t.Fatal("first observation must return true")
	}
	time.Sleep(20 * time.Millisecond)
	if !d.ShouldSend(testAnomaly(events.SeverityHigh)) {
		t.Fatal("observation strictly after the window must return true again")
	}
}

func TestShouldSendDisabledAlwaysTrue(t *testing.T) {
	d := dedup.New(dedup.Config{Enabled: false})
	for i := 0; i < 3; i++ {
		if !d.ShouldSend(testAnomaly(events.SeverityLow)) {
			t.Fatal("disabled deduplication must always return true")
		}
	}
	if stats := d.Snapshot(); stats.TotalSignatures != 0 {
		t.Fatalf("disabled deduplication must not touch state, got %d signatures", stats.TotalSignatures)
	}
}

func TestCleanupRemovesExpiredEntriesWithoutChangingSemantics(t *testing.T) {
	d := dedup.New(dedup.Config{Enabled: true, Window: 10 * time.Millisecond})
	d.ShouldSend(testAnomaly(events.SeverityMedium))
	time.Sleep(20 * time.Millisecond)
	d.Cleanup()

	if stats := d.Snapshot(); stats.TotalSignatures != 0 {
		t.Fatalf("expected cleanup to remove the expired signature, got %d", stats.TotalSignatures)
	}
	if !d.ShouldSend(testAnomaly(events.SeverityMedium)) {
		t.Fatal("a signature removed by cleanup must behave as never observed")
	}
}
