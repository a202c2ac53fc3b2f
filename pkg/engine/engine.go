// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine implements the detection ensemble: an ordered list of
// detectors run against every telemetry event, short-circuiting on the
// first anomaly found but always folding the event into every
// detector's learning state afterward.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/llm-sentinel/sentinel/internal/sentinelerr"
	"github.com/llm-sentinel/sentinel/internal/slog"
	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/detectors"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// detectorStats accumulates the per-detector counters the engine
// exposes: how often it fired, and the running average confidence of
// its emissions.
type detectorStats struct {
	mu            sync.Mutex
	fired         int64
	confidenceSum float64
	errors        int64
}

func (s *detectorStats) record(confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired++
	s.confidenceSum += confidence
}

func (s *detectorStats) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *detectorStats) snapshot() (fired int64, avgConfidence float64, errs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired == 0 {
		return 0, 0, s.errors
	}
	return s.fired, s.confidenceSum / float64(s.fired), s.errors
}

// Stats is a point-in-time snapshot of the engine's running counters.
type Stats struct {
	EventsProcessed  int64
	AnomaliesEmitted int64
	DetectionRate    float64
	PerDetector      map[string]DetectorStat
}

// DetectorStat is one detector's contribution to Stats.
type DetectorStat struct {
	Fired         int64
	AvgConfidence float64
	Errors        int64
}

// Engine owns the shared baseline store and the ordered, enabled
// detector set. Detect order is significant: detectors are
// complementary, and the first hit is taken as the most specific
// actionable finding.
type Engine struct {
	store     *baseline.Store
	detectors []detectors.Detector
	stats     map[string]*detectorStats

	eventsProcessed  atomic.Int64
	anomaliesEmitted atomic.Int64
}

// New constructs an Engine over store with the given ordered detector
// list. It refuses to construct with zero detectors, per the spec's
// configuration-error contract.
func New(store *baseline.Store, detectorList []detectors.Detector) (*Engine, error) {
	if len(detectorList) == 0 {
		return nil, fmt.Errorf("engine: %w", sentinelerr.ErrNoDetectorsEnabled)
	}
	e := &Engine{
		store:     store,
		detectors: detectorList,
		stats:     make(map[string]*detectorStats, len(detectorList)),
	}
	for _, d := range detectorList {
		e.stats[d.Name()] = &detectorStats{}
	}
	return e, nil
}

// Process runs event through the detector ensemble: detect, in order,
// until the first hit; then fold event into every detector's learning
// state regardless of whether one fired, so continuous learning never
// stalls on an alert.
func (e *Engine) Process(event events.TelemetryEvent) (events.AnomalyEvent, bool) {
	e.eventsProcessed.Add(1)

	var (
		found events.AnomalyEvent
		hit   bool
	)
	for _, d := range e.detectors {
		if hit {
			break
		}
		anomaly, ok, err := e.safeDetect(d, event)
		if err != nil {
			slog.Error("detector failed, skipping", slog.String("detector", d.Name()), slog.Err(err))
			e.stats[d.Name()].recordError()
			continue
		}
		if ok {
			found, hit = anomaly, true
			e.stats[d.Name()].record(anomaly.Confidence)
		}
	}

	for _, d := range e.detectors {
		e.safeUpdate(d, event)
	}

	if hit {
		e.anomaliesEmitted.Add(1)
	}
	return found, hit
}

// safeDetect isolates a single detector's Detect call: a panic there is
// treated as a detection error per the error-handling contract — Process
// logs the returned error, counts it, and the ensemble moves
// on to the next detector rather than taking the whole pipeline down.
func (e *Engine) safeDetect(d detectors.Detector, event events.TelemetryEvent) (anomaly events.AnomalyEvent, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector %s panicked: %v", d.Name(), r)
		}
	}()
	anomaly, ok = d.Detect(e.store, event)
	return anomaly, ok, nil
}

func (e *Engine) safeUpdate(d detectors.Detector, event events.TelemetryEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.stats[d.Name()].recordError()
		}
	}()
	d.Update(e.store, event)
}

// Store returns the shared baseline store, for collaborators (e.g. the
// periodic metrics refresh job) that need to read baseline snapshots
// without going through the engine.
func (e *Engine) Store() *baseline.Store {
	return e.store
}

// Snapshot returns the engine's current statistics.
func (e *Engine) Snapshot() Stats {
	processed := e.eventsProcessed.Load()
	emitted := e.anomaliesEmitted.Load()

	rate := 0.0
	if processed > 0 {
		rate = float64(emitted) / float64(processed)
	}

	perDetector := make(map[string]DetectorStat, len(e.stats))
	for name, st := range e.stats {
		fired, avg, errs := st.snapshot()
		perDetector[name] = DetectorStat{Fired: fired, AvgConfidence: avg, Errors: errs}
	}

	return Stats{
		EventsProcessed:  processed,
		AnomaliesEmitted: emitted,
		DetectionRate:    rate,
		PerDetector:      perDetector,
	}
}

// Reset clears every detector's owned state (not the baseline store).
func (e *Engine) Reset() {
	for _, d := range e.detectors {
		d.Reset()
	}
}
