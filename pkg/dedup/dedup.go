// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dedup suppresses repeated alerts for the same anomaly
// signature within a configured window, so a sustained regime shift
// does not page on-call once per event.
package dedup

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/llm-sentinel/sentinel/pkg/events"
)

const shardCount = 64

// Config configures the deduplicator.
type Config struct {
	Enabled         bool
	Window          time.Duration // default 300s
	CleanupInterval time.Duration // default 60s
}

// DefaultConfig returns the spec's default deduplication window.
func DefaultConfig() Config {
	return Config{Enabled: true, Window: 300 * time.Second, CleanupInterval: 60 * time.Second}
}

type entry struct {
	mu         sync.Mutex
	count      int
	lastSeen   time.Time
	suppressed []uuid.UUID
}

type shard struct {
	mu      sync.Mutex
	entries map[events.DeduplicationKey]*entry
}

// Deduplicator implements the should_send contract described in §4.5.
type Deduplicator struct {
	cfg    Config
	shards [shardCount]*shard

	totalObservations atomic.Int64
	totalSuppressed   atomic.Int64

	sevMu             sync.Mutex
	perSeveritySuppressed map[events.Severity]int64
}

// New constructs a Deduplicator with cfg.
func New(cfg Config) *Deduplicator {
	d := &Deduplicator{cfg: cfg, perSeveritySuppressed: make(map[events.Severity]int64)}
	for i := range d.shards {
		d.shards[i] = &shard{entries: make(map[events.DeduplicationKey]*entry)}
	}
	return d
}

func (d *Deduplicator) shardIndex(key events.DeduplicationKey) int {
	h := fnv64(string(key.ServiceName) + "\x00" + string(key.Model) + "\x00" + key.AnomalyType + "\x00" + key.Severity.String())
	return int(h % shardCount)
}

func fnv64(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// ShouldSend reports whether anomaly should be published. When
// deduplication is globally disabled it always returns true and
// touches no state.
func (d *Deduplicator) ShouldSend(anomaly events.AnomalyEvent) bool {
	if !d.cfg.Enabled {
		return true
	}
	d.totalObservations.Add(1)

	key := anomaly.Signature()
	sh := d.shards[d.shardIndex(key)]

	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		e = &entry{}
		sh.entries[key] = e
	}
	sh.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.lastSeen.IsZero() || now.Sub(e.lastSeen) > d.cfg.Window {
		e.count = 1
		e.suppressed = nil
		e.lastSeen = now
		return true
	}

	e.count++
	e.suppressed = append(e.suppressed, anomaly.AlertID)
	e.lastSeen = now
	d.totalSuppressed.Add(1)
	d.recordSuppressed(anomaly.Severity)
	return false
}

func (d *Deduplicator) recordSuppressed(sev events.Severity) {
	d.sevMu.Lock()
	defer d.sevMu.Unlock()
	d.perSeveritySuppressed[sev]++
}

// Cleanup removes entries whose last observation predates the
// configured window. It never changes should_send semantics: a
// removed entry is indistinguishable from one never observed.
func (d *Deduplicator) Cleanup() {
	now := time.Now()
	for _, sh := range d.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			e.mu.Lock()
			expired := now.Sub(e.lastSeen) > d.cfg.Window
			e.mu.Unlock()
			if expired {
				delete(sh.entries, key)
			}
		}
		sh.mu.Unlock()
	}
}

// Stats is a point-in-time snapshot of the deduplicator's counters.
type Stats struct {
	TotalSignatures       int
	TotalSuppressed       int64
	PerSeveritySuppressed map[events.Severity]int64
	SuppressionRate       float64
}

// Snapshot reports the deduplicator's current statistics.
func (d *Deduplicator) Snapshot() Stats {
	signatures := 0
	for _, sh := range d.shards {
		sh.mu.Lock()
		signatures += len(sh.entries)
		sh.mu.Unlock()
	}

	d.sevMu.Lock()
	perSeverity := make(map[events.Severity]int64, len(d.perSeveritySuppressed))
	for k, v := range d.perSeveritySuppressed {
		perSeverity[k] = v
	}
	d.sevMu.Unlock()

	observations := d.totalObservations.Load()
	suppressed := d.totalSuppressed.Load()
	rate := 0.0
	if observations > 0 {
		rate = float64(suppressed) / float64(observations)
	}

	return Stats{
		TotalSignatures:       signatures,
		TotalSuppressed:       suppressed,
		PerSeveritySuppressed: perSeverity,
		SuppressionRate:       rate,
	}
}
