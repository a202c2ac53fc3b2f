// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport delivers anomaly alerts to external systems. The
// only implementation today is a webhook transport with retry and
// optional HMAC signing, the Go rendering of the original alerting
// crate's webhook alerter.
package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llm-sentinel/sentinel/internal/slog"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// Config configures a WebhookTransport.
type Config struct {
	URL               string
	Method            string // "POST" or "PUT"; defaults to POST
	Timeout           time.Duration
	Headers           map[string]string
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	Secret            string // optional HMAC-SHA256 signing secret
}

// DefaultConfig mirrors the original alerting crate's webhook defaults.
func DefaultConfig() Config {
	return Config{
		Method:            http.MethodPost,
		Timeout:           10 * time.Second,
		Headers:           map[string]string{"Content-Type": "application/json"},
		MaxRetries:        3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2.0,
	}
}

// payload wraps an anomaly event in the webhook envelope, letting
// receivers distinguish event types without inspecting the body.
type payload struct {
	EventType string              `json:"event_type"`
	Timestamp time.Time           `json:"timestamp"`
	Data      events.AnomalyEvent `json:"data"`
	Signature string              `json:"signature,omitempty"`
}

// retryableStatus is the set of HTTP statuses worth retrying; anything
// else (4xx other than 429, or a successful response) ends the attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// WebhookTransport delivers anomaly alerts over HTTP with exponential
// backoff retry and optional HMAC-SHA256 request signing.
type WebhookTransport struct {
	cfg    Config
	client *http.Client
}

// New constructs a WebhookTransport. A blank URL is a configuration error.
func New(cfg Config) (*WebhookTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: webhook url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &WebhookTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Send delivers a single anomaly alert, retrying retryable failures
// with exponential backoff up to MaxRetries attempts.
func (w *WebhookTransport) Send(ctx context.Context, alert events.AnomalyEvent) error {
	body := payload{EventType: "anomaly.detected", Timestamp: time.Now().UTC(), Data: alert}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: marshaling webhook payload: %w", err)
	}
	if sig := w.sign(raw); sig != "" {
		body.Signature = sig
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: marshaling signed webhook payload: %w", err)
		}
	}

	delay := w.cfg.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		status, respBody, err := w.attempt(ctx, raw, body.Signature)
		if err == nil && status >= 200 && status < 300 {
			if attempt > 1 {
				slog.Info("webhook sent after retry", slog.String("alert_id", alert.AlertID.String()), slog.Int("attempt", attempt))
			}
			return nil
		}

		if err != nil {
			lastErr = err
		} else if retryableStatus[status] {
			lastErr = fmt.Errorf("webhook returned retryable status %d", status)
		} else {
			return fmt.Errorf("transport: webhook failed with status %d: %s", status, respBody)
		}

		if attempt == w.cfg.MaxRetries {
			break
		}
		slog.Warn("webhook attempt failed, retrying",
			slog.String("alert_id", alert.AlertID.String()), slog.Int("attempt", attempt), slog.Err(lastErr))
		select {
		case <-ctx.Done():
			return fmt.Errorf("transport: webhook retry loop canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * w.cfg.BackoffMultiplier)
	}
	return fmt.Errorf("transport: webhook failed after %d attempts: %w", w.cfg.MaxRetries, lastErr)
}

func (w *WebhookTransport) attempt(ctx context.Context, body []byte, signature string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, w.cfg.Method, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("building webhook request: %w", err)
	}
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}
	if signature != "" {
		req.Header.Set("X-Sentinel-Signature", signature)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(respBody), nil
}

// SendBatch delivers each alert in turn, collecting failures rather
// than stopping at the first one so a single bad delivery doesn't
// block the rest of the batch.
func (w *WebhookTransport) SendBatch(ctx context.Context, alerts []events.AnomalyEvent) error {
	if len(alerts) == 0 {
		return nil
	}
	var failed int
	for _, a := range alerts {
		if err := w.Send(ctx, a); err != nil {
			slog.Error("webhook delivery failed in batch", slog.String("alert_id", a.AlertID.String()), slog.Err(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("transport: %d of %d webhook deliveries failed", failed, len(alerts))
	}
	return nil
}

// HealthCheck issues a HEAD request against the webhook URL. Method
// Not Allowed is accepted as healthy since many webhook receivers only
// implement POST.
func (w *WebhookTransport) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("transport: webhook health check: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: webhook health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	return fmt.Errorf("transport: webhook health check returned status %d", resp.StatusCode)
}

func (w *WebhookTransport) sign(body []byte) string {
	if w.cfg.Secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Name identifies this transport for logging and metrics labels.
func (w *WebhookTransport) Name() string { return "webhook" }
