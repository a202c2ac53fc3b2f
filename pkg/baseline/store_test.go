// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package baseline_test

import (
	"testing"

	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

func testKey() baseline.Key {
	return baseline.Key{Service: "checkout-svc", Model: "gpt-4", Metric: events.MetricLatencyMs}
}

func TestStoreBecomesValidOnceWindowIsFull(t *testing.T) {
	s := baseline.NewStore(baseline.MinSamples, 0)
	key := testKey()

	for i := 0; i < baseline.MinSamples-1; i++ {
		s.Update(key, 100)
	}
	if s.HasValid(key) {
		t.Fatal("expected baseline to be invalid before the window is full")
	}

	s.Update(key, 100)
	if !s.HasValid(key) {
		t.Fatal("expected baseline to be valid once the window is full")
	}
}

func TestStoreStaysInvalidPastMinSamplesUntilWindowFull(t *testing.T) {
	s := baseline.NewStore(100, 0)
	key := testKey()

	for i := 0; i < baseline.MinSamples; i++ {
		s.Update(key, 100)
	}
	if s.HasValid(key) {
		t.Fatal("expected baseline to stay invalid past MinSamples while the window has not yet filled")
	}

	for i := baseline.MinSamples; i < 100; i++ {
		s.Update(key, 100)
	}
	if !s.HasValid(key) {
		t.Fatal("expected baseline to become valid once the full 100-sample window is reached")
	}
}

func TestStoreUpdateTracksStats(t *testing.T) {
	s := baseline.NewStore(10, 0)
	key := testKey()
	for _, v := range []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10} {
		s.Update(key, v)
	}
	b, ok := s.Get(key)
	if !ok {
		t.Fatal("expected baseline to exist")
	}
	if b.Mean != 5.5 {
		t.Fatalf("Mean = %v, want 5.5", b.Mean)
	}
	if b.SampleCount != 10 {
		t.Fatalf("SampleCount = %d, want 10", b.SampleCount)
	}
}

func TestStoreClearRemovesKey(t *testing.T) {
	s := baseline.NewStore(1, 0)
	key := testKey()
	s.Update(key, 1)
	s.Clear(key)
	if _, ok := s.Get(key); ok {
		t.Fatal("expected key to be cleared")
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s := baseline.NewStore(1, 2)
	// The bound is per shard, so these three keys are chosen to hash to
	// the same shard (index 63).
	k1 := baseline.Key{Service: "svc-41", Model: "m", Metric: events.MetricLatencyMs}
	k2 := baseline.Key{Service: "svc-96", Model: "m", Metric: events.MetricLatencyMs}
	k3 := baseline.Key{Service: "svc-171", Model: "m", Metric: events.MetricLatencyMs}

	s.Update(k1, 1)
	s.Update(k2, 1)
	s.Update(k1, 2) // touch k1, making k2 the least recently used among k1/k2
	s.Update(k3, 1) // should evict k2

	if _, ok := s.Get(k2); ok {
		t.Fatal("expected k2 to have been evicted")
	}
	if _, ok := s.Get(k1); !ok {
		t.Fatal("expected k1 to survive eviction")
	}
	if _, ok := s.Get(k3); !ok {
		t.Fatal("expected k3 to be present")
	}
}

func TestStoreIndependentKeysDoNotInterfere(t *testing.T) {
	s := baseline.NewStore(1, 0)
	k1 := baseline.Key{Service: "svc-a", Model: "m", Metric: events.MetricLatencyMs}
	k2 := baseline.Key{Service: "svc-a", Model: "m", Metric: events.MetricCostUSD}

	s.Update(k1, 100)
	s.Update(k2, 1)

	b1, _ := s.Get(k1)
	b2, _ := s.Get(k2)
	if b1.Mean == b2.Mean {
		t.Fatal("expected independent keys to track independent baselines")
	}
}
