// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sentinelmetrics exposes the Prometheus metrics named in
// SPEC_FULL.md §6.4 as an observable contract: the metric names and
// label sets are part of the external interface and must not drift.
package sentinelmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter, histogram and gauge the core emits,
// registered against a private registry so the /metrics endpoint never
// picks up the Go runtime's default collectors by accident.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested     prometheus.Counter
	EventsProcessed    prometheus.Counter
	EventsDropped      prometheus.Counter
	AnomaliesDetected  *prometheus.CounterVec
	AlertsSent         prometheus.Counter
	AlertsDeduplicated prometheus.Counter
	DetectionErrors    *prometheus.CounterVec
	DetectionDuration  *prometheus.HistogramVec
	DedupEntries       prometheus.Gauge
	BaselineMean       *prometheus.GaugeVec
}

// New constructs and registers every metric named in §6.4.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_events_ingested_total",
			Help: "Telemetry events received from the source collaborator.",
		}),
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_events_processed_total",
			Help: "Telemetry events that passed validation and reached the detection engine.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_events_dropped_total",
			Help: "Telemetry events dropped for failing validation.",
		}),
		AnomaliesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_anomalies_detected_total",
			Help: "Anomalies emitted by the detection engine.",
		}, []string{"detector", "type", "severity"}),
		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_sent_total",
			Help: "Anomaly alerts published via the alert transport.",
		}),
		AlertsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_deduplicated_total",
			Help: "Anomaly alerts suppressed by the deduplicator.",
		}),
		DetectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_detection_errors_total",
			Help: "Errors raised while running a detector.",
		}, []string{"detector"}),
		DetectionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_detection_duration_seconds",
			Help:    "Time spent running detection for one event; the pipeline records the whole ensemble pass under detector=\"ensemble\".",
			Buckets: prometheus.DefBuckets,
		}, []string{"detector"}),
		DedupEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_deduplication_entries",
			Help: "Current number of tracked deduplication signatures.",
		}),
		BaselineMean: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_baseline_mean",
			Help: "Current rolling mean of a tracked (service, model, metric) baseline.",
		}, []string{"service", "model", "metric"}),
	}
	return m
}

// Handler returns the HTTP handler serving /metrics against this
// instance's private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
