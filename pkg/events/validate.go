// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package events

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/llm-sentinel/sentinel/internal/sentinelerr"
)

// ValidationConfig bounds the field ranges a TelemetryEvent must fall
// within to be accepted by the pipeline's validator collaborator.
// Defaults mirror the original implementation's event validator.
type ValidationConfig struct {
	MinLatencyMs float64
	MaxLatencyMs float64
	MaxTokens    int32
	MaxCostUSD   float64
}

// DefaultValidationConfig returns the original implementation's bounds:
// 0-10min latency, 128k max tokens, $100 max per-request cost.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinLatencyMs: 0,
		MaxLatencyMs: MaxLatencyMs,
		MaxTokens:    MaxTokens,
		MaxCostUSD:   MaxCostUSD,
	}
}

// Validate checks e against the structural invariants in §3 (finite,
// non-negative numeric fields; bounded text lengths) plus the
// configured sanity ceilings. It never mutates e.
func Validate(e TelemetryEvent, cfg ValidationConfig) error {
	if e.EventID == uuid.Nil {
		return fmt.Errorf("%w: event_id is required", sentinelerr.ErrValidation)
	}
	if !isFinite(e.LatencyMs) {
		return fmt.Errorf("%w: latency_ms is not finite: %v", sentinelerr.ErrValidation, e.LatencyMs)
	}
	if !isFinite(e.CostUSD) {
		return fmt.Errorf("%w: cost_usd is not finite: %v", sentinelerr.ErrValidation, e.CostUSD)
	}
	if e.LatencyMs < cfg.MinLatencyMs {
		return fmt.Errorf("%w: latency_ms %v is below minimum %v", sentinelerr.ErrValidation, e.LatencyMs, cfg.MinLatencyMs)
	}
	if e.LatencyMs > cfg.MaxLatencyMs {
		return fmt.Errorf("%w: latency_ms %v exceeds maximum %v", sentinelerr.ErrValidation, e.LatencyMs, cfg.MaxLatencyMs)
	}
	if e.CostUSD < 0 {
		return fmt.Errorf("%w: cost_usd must be non-negative, got %v", sentinelerr.ErrValidation, e.CostUSD)
	}
	if e.CostUSD > cfg.MaxCostUSD {
		return fmt.Errorf("%w: cost_usd %v exceeds maximum %v", sentinelerr.ErrValidation, e.CostUSD, cfg.MaxCostUSD)
	}
	if e.Prompt.Tokens < 0 || e.Response.Tokens < 0 {
		return fmt.Errorf("%w: token counts must be non-negative", sentinelerr.ErrValidation)
	}
	if e.TotalTokens() > cfg.MaxTokens {
		return fmt.Errorf("%w: total_tokens %d exceeds maximum %d", sentinelerr.ErrValidation, e.TotalTokens(), cfg.MaxTokens)
	}
	if len(e.Prompt.Text) > MaxPromptChars {
		return fmt.Errorf("%w: prompt text length %d exceeds maximum %d", sentinelerr.ErrValidation, len(e.Prompt.Text), MaxPromptChars)
	}
	if len(e.Response.Text) > MaxResponseChars {
		return fmt.Errorf("%w: response text length %d exceeds maximum %d", sentinelerr.ErrValidation, len(e.Response.Text), MaxResponseChars)
	}
	if e.ServiceName == "" {
		return fmt.Errorf("%w: service_name is required", sentinelerr.ErrValidation)
	}
	if e.Model == "" {
		return fmt.Errorf("%w: model is required", sentinelerr.ErrValidation)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
