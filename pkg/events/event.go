// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package events

import (
	"time"

	"github.com/google/uuid"
)

// Field size ceilings carried over from the original implementation's
// event validator, expressed as named constants rather than magic
// numbers scattered through validation code.
const (
	MaxPromptChars   = 100_000
	MaxResponseChars = 100_000
	MaxMetadataChars = 4_096
	MaxLatencyMs     = 600_000.0 // 10 minutes
	MaxTokens        = 128_000
	MaxCostUSD       = 100.0
)

// PromptInfo carries the prompt side of an LLM request.
type PromptInfo struct {
	Text      string    `json:"text"`
	Tokens    int32     `json:"tokens"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ResponseInfo carries the response side of an LLM request.
type ResponseInfo struct {
	Text         string    `json:"text"`
	Tokens       int32     `json:"tokens"`
	FinishReason string    `json:"finish_reason"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// TelemetryEvent is one observed LLM request. It is constructed by the
// source collaborator, read-only inside the core, and released once
// both storage and detection have observed it.
type TelemetryEvent struct {
	EventID     uuid.UUID         `json:"event_id" db:"event_id"`
	Timestamp   time.Time         `json:"timestamp" db:"timestamp"`
	ServiceName ServiceId         `json:"service_name" db:"service"`
	TraceID     *string           `json:"trace_id,omitempty" db:"trace_id"`
	SpanID      *string           `json:"span_id,omitempty" db:"span_id"`
	Model       ModelId           `json:"model" db:"model"`
	Prompt      PromptInfo        `json:"prompt"`
	Response    ResponseInfo      `json:"response"`
	LatencyMs   float64           `json:"latency_ms" db:"latency_ms"`
	CostUSD     float64           `json:"cost_usd" db:"cost_usd"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Errors      []string          `json:"errors,omitempty"`
}

// NewTelemetryEvent stamps a fresh event ID and timestamp around the
// caller-supplied observation fields, mirroring the constructor the
// source collaborator is expected to use.
func NewTelemetryEvent(service ServiceId, model ModelId, prompt PromptInfo, response ResponseInfo, latencyMs, costUSD float64) TelemetryEvent {
	return TelemetryEvent{
		EventID:     uuid.New(),
		Timestamp:   time.Now().UTC(),
		ServiceName: service,
		Model:       model,
		Prompt:      prompt,
		Response:    response,
		LatencyMs:   latencyMs,
		CostUSD:     costUSD,
		Metadata:    map[string]string{},
	}
}

// HasErrors reports whether the event carries any recorded error.
func (e TelemetryEvent) HasErrors() bool {
	return len(e.Errors) > 0
}

// TotalTokens sums prompt and response token counts.
func (e TelemetryEvent) TotalTokens() int32 {
	return e.Prompt.Tokens + e.Response.Tokens
}

// ErrorRate is 1 if the event recorded any error, 0 otherwise — the
// single-event building block the error_rate baseline metric is folded
// from.
func (e TelemetryEvent) ErrorRate() float64 {
	if e.HasErrors() {
		return 1
	}
	return 0
}

// MetricValue returns the event's observation for the given metric.
// The error_rate metric is the only one derived rather than stored
// directly on the event.
func (e TelemetryEvent) MetricValue(metric Metric) (float64, bool) {
	switch metric {
	case MetricLatencyMs:
		return e.LatencyMs, true
	case MetricTotalTokens:
		return float64(e.TotalTokens()), true
	case MetricCostUSD:
		return e.CostUSD, true
	case MetricErrorRate:
		return e.ErrorRate(), true
	default:
		return 0, false
	}
}
