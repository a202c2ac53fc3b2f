// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline drives the core's main loop: pull a batch from the
// source, validate and persist each event, run it through the
// detection engine, and on anomaly persist and publish it subject to
// deduplication. It is the single place all the other collaborators
// are wired together.
package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/llm-sentinel/sentinel/internal/sentinelmetrics"
	"github.com/llm-sentinel/sentinel/internal/slog"
	"github.com/llm-sentinel/sentinel/pkg/dedup"
	"github.com/llm-sentinel/sentinel/pkg/engine"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// Source yields batches of telemetry events. An empty batch with a nil
// error is a legal, expected idle result.
type Source interface {
	Pull(ctx context.Context) ([]events.TelemetryEvent, error)
}

// Storage persists telemetry and anomaly records.
type Storage interface {
	WriteTelemetry(ctx context.Context, e events.TelemetryEvent) error
	WriteAnomaly(ctx context.Context, a events.AnomalyEvent) error
}

// Transport publishes anomaly alerts to the outside world.
type Transport interface {
	Send(ctx context.Context, a events.AnomalyEvent) error
}

// Validator checks one event before it is persisted or detected. The
// driver depends only on this function type rather than on
// pkg/events's ValidationConfig.
type Validator func(events.TelemetryEvent) error

// Config configures the driver loop.
type Config struct {
	SourceBackoff time.Duration // fixed backoff applied after a source pull error
}

// DefaultConfig returns the backoff named in the pipeline's error
// handling contract.
func DefaultConfig() Config {
	return Config{SourceBackoff: 5 * time.Second}
}

// Driver wires a Source, Validator, detection Engine, Storage,
// Deduplicator and Transport into the per-batch processing loop.
type Driver struct {
	cfg       Config
	source    Source
	validate  Validator
	engine    *engine.Engine
	storage   Storage
	dedup     *dedup.Deduplicator
	transport Transport
	metrics   *sentinelmetrics.Metrics

	backoffLimiter *rate.Limiter

	lastErrorsMu sync.Mutex
	lastErrors   map[string]int64
}

// New constructs a Driver. metrics may be nil, in which case
// observability is skipped (useful in tests).
func New(cfg Config, source Source, validate Validator, eng *engine.Engine, storage Storage, deduplicator *dedup.Deduplicator, transport Transport, metrics *sentinelmetrics.Metrics) *Driver {
	if cfg.SourceBackoff <= 0 {
		cfg.SourceBackoff = 5 * time.Second
	}
	return &Driver{
		cfg:            cfg,
		source:         source,
		validate:       validate,
		engine:         eng,
		storage:        storage,
		dedup:          deduplicator,
		transport:      transport,
		metrics:        metrics,
		backoffLimiter: rate.NewLimiter(rate.Every(cfg.SourceBackoff), 1),
		lastErrors:     make(map[string]int64),
	}
}

// RefreshMetrics exports the gauges and counters that are cheapest to
// compute periodically rather than per event: dedup cardinality,
// per-(service,model,metric) baseline means, and the cumulative
// per-detector error count. Intended to be called from a dedicated
// scheduler job rather than the hot path.
func (d *Driver) RefreshMetrics() {
	if d.metrics == nil {
		return
	}

	d.metrics.DedupEntries.Set(float64(d.dedup.Snapshot().TotalSignatures))

	for _, b := range d.engine.Store().Snapshot() {
		d.metrics.BaselineMean.WithLabelValues(string(b.Key.Service), string(b.Key.Model), string(b.Key.Metric)).Set(b.Mean)
	}

	d.lastErrorsMu.Lock()
	defer d.lastErrorsMu.Unlock()
	for name, stat := range d.engine.Snapshot().PerDetector {
		delta := stat.Errors - d.lastErrors[name]
		if delta > 0 {
			d.metrics.DetectionErrors.WithLabelValues(name).Add(float64(delta))
		}
		d.lastErrors[name] = stat.Errors
	}
}


// Run executes the driver loop until ctx is canceled, breaking out at
// the next batch boundary rather than mid-batch.
func (d *Driver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline driver stopping")
			return
		default:
		}

		batch, err := d.source.Pull(ctx)
		if err != nil {
			slog.Warn("source pull failed, backing off", slog.Err(err), slog.Duration("backoff", d.cfg.SourceBackoff))
			if waitErr := d.backoffLimiter.Wait(ctx); waitErr != nil {
				return
			}
			continue
		}

		for _, event := range batch {
			d.processOne(ctx, event)
		}
	}
}

// processOne runs a single event through validate -> storage -> engine
// -> (storage, dedup, transport) per the driver's per-batch contract.
func (d *Driver) processOne(ctx context.Context, event events.TelemetryEvent) {
	if d.metrics != nil {
		d.metrics.EventsIngested.Inc()
	}

	if err := d.validate(event); err != nil {
		slog.Warn("event failed validation, dropping", slog.String("event_id", event.EventID.String()), slog.Err(err))
		if d.metrics != nil {
			d.metrics.EventsDropped.Inc()
		}
		return
	}

	if err := d.storage.WriteTelemetry(ctx, event); err != nil {
		slog.Error("writing telemetry failed, continuing", slog.String("event_id", event.EventID.String()), slog.Err(err))
	}

	start := time.Now()
	anomaly, found := d.engine.Process(event)
	if d.metrics != nil {
		d.metrics.EventsProcessed.Inc()
		d.metrics.DetectionDuration.WithLabelValues("ensemble").Observe(time.Since(start).Seconds())
	}
	if !found {
		return
	}

	if err := d.storage.WriteAnomaly(ctx, anomaly); err != nil {
		slog.Error("writing anomaly failed, continuing", slog.String("alert_id", anomaly.AlertID.String()), slog.Err(err))
	}
	if d.metrics != nil {
		d.metrics.AnomaliesDetected.WithLabelValues(anomaly.DetectionMethod.String(), anomaly.AnomalyType.String(), anomaly.Severity.String()).Inc()
	}

	if !d.dedup.ShouldSend(anomaly) {
		if d.metrics != nil {
			d.metrics.AlertsDeduplicated.Inc()
		}
		return
	}

	if err := d.transport.Send(ctx, anomaly); err != nil {
		slog.Error("publishing anomaly failed", slog.String("alert_id", anomaly.AlertID.String()), slog.Err(err))
		return
	}
	if d.metrics != nil {
		d.metrics.AlertsSent.Inc()
	}
}
