// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/llm-sentinel/sentinel/pkg/events"
)

// InfluxSink writes telemetry and anomaly observations to an InfluxDB
// v2-compatible /api/v2/write endpoint over line protocol, mirroring
// the teacher's own use of influxdata/line-protocol for its metric
// wire format. It is optional: a nil *InfluxSink is a valid no-op,
// the same way the core treats an empty Storage.InfluxAddr as
// "sink disabled" rather than an error.
type InfluxSink struct {
	addr       string
	bucket     string
	org        string
	token      string
	httpClient *http.Client
}

// NewInfluxSink constructs a sink targeting addr (a base InfluxDB URL,
// e.g. "http://localhost:8086").
func NewInfluxSink(addr, org, bucket, token string) *InfluxSink {
	return &InfluxSink{
		addr:       addr,
		org:        org,
		bucket:     bucket,
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// WriteTelemetry encodes e as a "telemetry" measurement and writes it.
func (s *InfluxSink) WriteTelemetry(ctx context.Context, e events.TelemetryEvent) error {
	if s == nil {
		return nil
	}
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	enc.StartLine("telemetry")
	enc.AddTag("service", string(e.ServiceName))
	enc.AddTag("model", string(e.Model))
	enc.AddField("latency_ms", lineprotocol.MustNewValue(e.LatencyMs))
	enc.AddField("cost_usd", lineprotocol.MustNewValue(e.CostUSD))
	enc.AddField("prompt_tokens", lineprotocol.MustNewValue(int64(e.Prompt.Tokens)))
	enc.AddField("response_tokens", lineprotocol.MustNewValue(int64(e.Response.Tokens)))
	enc.AddField("total_tokens", lineprotocol.MustNewValue(int64(e.TotalTokens())))
	enc.AddField("has_errors", lineprotocol.MustNewValue(e.HasErrors()))
	enc.EndLine(e.Timestamp)
	if err := enc.Err(); err != nil {
		return fmt.Errorf("storage: encoding telemetry line: %w", err)
	}
	return s.write(ctx, enc.Bytes())
}

// WriteAnomaly encodes a as an "anomaly" measurement and writes it.
func (s *InfluxSink) WriteAnomaly(ctx context.Context, a events.AnomalyEvent) error {
	if s == nil {
		return nil
	}
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	enc.StartLine("anomaly")
	enc.AddTag("service", string(a.ServiceName))
	enc.AddTag("model", string(a.Model))
	enc.AddTag("severity", a.Severity.String())
	enc.AddTag("type", a.AnomalyType.String())
	enc.AddTag("method", a.DetectionMethod.String())
	enc.AddField("confidence", lineprotocol.MustNewValue(a.Confidence))
	enc.AddField("value", lineprotocol.MustNewValue(a.Details.Value))
	enc.AddField("baseline", lineprotocol.MustNewValue(a.Details.Baseline))
	enc.AddField("metric", lineprotocol.MustNewValue(a.Details.Metric))
	enc.AddField("threshold", lineprotocol.MustNewValue(a.Details.Threshold))
	enc.EndLine(a.Timestamp)
	if err := enc.Err(); err != nil {
		return fmt.Errorf("storage: encoding anomaly line: %w", err)
	}
	return s.write(ctx, enc.Bytes())
}

func (s *InfluxSink) write(ctx context.Context, body []byte) error {
	url := fmt.Sprintf("%s/api/v2/write?org=%s&bucket=%s&precision=ns", s.addr, s.org, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("storage: building influx write request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Token "+s.token)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage: influx write request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("storage: influx write returned status %s", resp.Status)
	}
	return nil
}
