// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package source implements the pipeline's Source collaborator over
// NATS: telemetry events are published by instrumented services to a
// subject, and Pull drains what is currently buffered into a batch for
// the pipeline driver.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/llm-sentinel/sentinel/internal/slog"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// Config configures the NATS-backed source.
type Config struct {
	URL          string
	Subject      string
	QueueGroup   string // optional; empty disables load-balanced delivery
	BatchSize    int
	BatchTimeout time.Duration
}

// DefaultConfig returns reasonable batching defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 256, BatchTimeout: 200 * time.Millisecond}
}

// Source pulls batches of TelemetryEvent off a NATS subject.
type Source struct {
	cfg  Config
	conn *nats.Conn
	sub  *nats.Subscription
	ch   chan *nats.Msg
}

// Connect dials NATS and subscribes to cfg.Subject, delivering messages
// onto an internal channel that Pull drains.
func Connect(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source: nats url is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}

	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			slog.Error("nats error", slog.Err(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: connecting to %s: %w", cfg.URL, err)
	}

	ch := make(chan *nats.Msg, cfg.BatchSize*4)
	var sub *nats.Subscription
	if cfg.QueueGroup != "" {
		sub, err = conn.ChanQueueSubscribe(cfg.Subject, cfg.QueueGroup, ch)
	} else {
		sub, err = conn.ChanSubscribe(cfg.Subject, ch)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("source: subscribing to %s: %w", cfg.Subject, err)
	}

	slog.Info("source subscribed", slog.String("subject", cfg.Subject), slog.String("url", cfg.URL))
	return &Source{cfg: cfg, conn: conn, sub: sub, ch: ch}, nil
}

// Pull drains up to BatchSize currently buffered messages, waiting at
// most BatchTimeout for the first one to arrive. An empty batch is
// legal and means the source is idle. Malformed messages are logged
// and skipped rather than failing the whole batch.
func (s *Source) Pull(ctx context.Context) ([]events.TelemetryEvent, error) {
	batch := make([]events.TelemetryEvent, 0, s.cfg.BatchSize)

	timer := time.NewTimer(s.cfg.BatchTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return batch, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return batch, fmt.Errorf("source: subscription channel closed")
		}
		if ev, ok := decode(msg); ok {
			batch = append(batch, ev)
		}
	case <-timer.C:
		return batch, nil
	}

	for len(batch) < s.cfg.BatchSize {
		select {
		case msg, ok := <-s.ch:
			if !ok {
				return batch, nil
			}
			if ev, ok := decode(msg); ok {
				batch = append(batch, ev)
			}
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func decode(msg *nats.Msg) (events.TelemetryEvent, bool) {
	var ev events.TelemetryEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Warn("source: dropping malformed message", slog.String("subject", msg.Subject), slog.Err(err))
		return events.TelemetryEvent{}, false
	}
	return ev, true
}

// HealthCheck reports whether the underlying NATS connection is up.
func (s *Source) HealthCheck(ctx context.Context) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return fmt.Errorf("source: not connected")
	}
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Source) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			slog.Warn("source: unsubscribe failed", slog.Err(err))
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
