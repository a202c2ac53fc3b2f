// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package events

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyDetails carries the numeric evidence behind a detection.
type AnomalyDetails struct {
	Metric         string                 `json:"metric"`
	Value          float64                `json:"value"`
	Baseline       float64                `json:"baseline"`
	Threshold      float64                `json:"threshold"`
	DeviationSigma *float64               `json:"deviation_sigma,omitempty"`
	Additional     map[string]interface{} `json:"additional,omitempty"`
}

// AnomalyContext carries request/window context alongside a detection.
type AnomalyContext struct {
	TraceID     *string           `json:"trace_id,omitempty"`
	UserID      *string           `json:"user_id,omitempty"`
	Region      *string           `json:"region,omitempty"`
	TimeWindow  string            `json:"time_window"`
	SampleCount int               `json:"sample_count"`
	Additional  map[string]string `json:"additional,omitempty"`
}

// AnomalyEvent is a detection verdict produced by a Detector. Once
// constructed it is never mutated: it passes through the deduplicator,
// gets persisted, and is published, in that order.
type AnomalyEvent struct {
	AlertID         uuid.UUID        `json:"alert_id" db:"alert_id"`
	Timestamp       time.Time        `json:"timestamp" db:"timestamp"`
	Severity        Severity         `json:"severity" db:"severity"`
	AnomalyType     AnomalyType      `json:"anomaly_type" db:"type"`
	ServiceName     ServiceId        `json:"service_name" db:"service"`
	Model           ModelId          `json:"model" db:"model"`
	DetectionMethod DetectionMethod  `json:"detection_method" db:"method"`
	Confidence      float64          `json:"confidence" db:"confidence"`
	Details         AnomalyDetails   `json:"details"`
	Context         AnomalyContext   `json:"context"`
	RootCause       *string          `json:"root_cause,omitempty"`
	Remediation     []string         `json:"remediation,omitempty"`
	RelatedAlerts   []uuid.UUID      `json:"related_alerts,omitempty"`
	RunbookURL      *string          `json:"runbook_url,omitempty"`
}

// NewAnomalyEvent stamps a fresh alert ID and timestamp around a
// detector's findings.
func NewAnomalyEvent(
	severity Severity,
	anomalyType AnomalyType,
	service ServiceId,
	model ModelId,
	method DetectionMethod,
	confidence float64,
	details AnomalyDetails,
	context AnomalyContext,
) AnomalyEvent {
	return AnomalyEvent{
		AlertID:         uuid.New(),
		Timestamp:       time.Now().UTC(),
		Severity:        severity,
		AnomalyType:     anomalyType,
		ServiceName:     service,
		Model:           model,
		DetectionMethod: method,
		Confidence:      confidence,
		Details:         details,
		Context:         context,
	}
}

// DeduplicationKey identifies the alert signature the deduplicator
// suppresses storms against. Distinct severities for the same anomaly
// type are distinct signatures by design: a severity upgrade must alert.
type DeduplicationKey struct {
	ServiceName ServiceId
	Model       ModelId
	AnomalyType string
	Severity    Severity
}

// Signature derives the anomaly's deduplication key.
func (a AnomalyEvent) Signature() DeduplicationKey {
	return DeduplicationKey{
		ServiceName: a.ServiceName,
		Model:       a.Model,
		AnomalyType: a.AnomalyType.String(),
		Severity:    a.Severity,
	}
}
