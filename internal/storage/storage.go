// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package storage persists telemetry observations and anomaly alerts
// to sqlite, the same single-writer discipline the teacher applies to
// its own embedded database: one open connection, hook-instrumented
// queries, and idempotent writes keyed on the record's own identifier
// so a redelivered event or a retried alert never duplicates a row.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/llm-sentinel/sentinel/pkg/events"
)

var registerHooksOnce sync.Once

const driverName = "sqlite3WithHooks"

// Store is the sqlite-backed storage collaborator.
type Store struct {
	db *sqlx.DB
}

// Open registers the hook-instrumented sqlite driver once per process
// and opens (creating if necessary) the database at path, applying the
// schema. Sqlite does not benefit from more than one writer connection
// — extra connections just contend for the same file lock — so the
// pool is capped at one, mirroring the teacher's dbConnection setup.
func Open(path string) (*Store, error) {
	registerHooksOnce.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, sqlHooks{}))
	})

	db, err := sqlx.Open(driverName, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WriteTelemetry persists one telemetry event, idempotent on EventID.
func (s *Store) WriteTelemetry(ctx context.Context, e events.TelemetryEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("storage: marshaling telemetry event %s: %w", e.EventID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO telemetry_events (event_id, timestamp, service, model, latency_ms, cost_usd, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID.String(), e.Timestamp.UTC(), string(e.ServiceName), string(e.Model), e.LatencyMs, e.CostUSD, string(payload),
	)
	if err != nil {
		return fmt.Errorf("storage: writing telemetry event %s: %w", e.EventID, err)
	}
	return nil
}

// WriteTelemetryBatch persists a batch of telemetry events inside a
// single transaction so a crash mid-batch never leaves a partial write
// durable beyond what a retry would redo idempotently.
func (s *Store) WriteTelemetryBatch(ctx context.Context, batch []events.TelemetryEvent) error {
	if len(batch) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO telemetry_events (event_id, timestamp, service, model, latency_ms, cost_usd, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(event_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range batch {
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshaling telemetry event %s: %w", e.EventID, err)
			}
			if _, err := stmt.ExecContext(ctx, e.EventID.String(), e.Timestamp.UTC(), string(e.ServiceName), string(e.Model), e.LatencyMs, e.CostUSD, string(payload)); err != nil {
				return fmt.Errorf("writing telemetry event %s: %w", e.EventID, err)
			}
		}
		return nil
	})
}

// WriteAnomaly persists one anomaly alert, idempotent on AlertID.
func (s *Store) WriteAnomaly(ctx context.Context, a events.AnomalyEvent) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("storage: marshaling anomaly event %s: %w", a.AlertID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anomaly_events (alert_id, timestamp, service, model, severity, type, method, confidence, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO NOTHING`,
		a.AlertID.String(), a.Timestamp.UTC(), string(a.ServiceName), string(a.Model), a.Severity.String(), a.AnomalyType.String(), a.DetectionMethod.String(), a.Confidence, string(payload),
	)
	if err != nil {
		return fmt.Errorf("storage: writing anomaly event %s: %w", a.AlertID, err)
	}
	return nil
}

// WriteAnomalyBatch persists a batch of anomaly alerts in one transaction.
func (s *Store) WriteAnomalyBatch(ctx context.Context, batch []events.AnomalyEvent) error {
	if len(batch) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO anomaly_events (alert_id, timestamp, service, model, severity, type, method, confidence, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(alert_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range batch {
			payload, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("marshaling anomaly event %s: %w", a.AlertID, err)
			}
			if _, err := stmt.ExecContext(ctx, a.AlertID.String(), a.Timestamp.UTC(), string(a.ServiceName), string(a.Model), a.Severity.String(), a.AnomalyType.String(), a.DetectionMethod.String(), a.Confidence, string(payload)); err != nil {
				return fmt.Errorf("writing anomaly event %s: %w", a.AlertID, err)
			}
		}
		return nil
	})
}

// TelemetryFilter narrows QueryTelemetry to a service/model/time range.
type TelemetryFilter struct {
	Service events.ServiceId
	Model   events.ModelId
	Since   time.Time
	Until   time.Time
	Limit   int
}

// QueryTelemetry returns telemetry events matching filter, most recent first.
func (s *Store) QueryTelemetry(ctx context.Context, filter TelemetryFilter) ([]events.TelemetryEvent, error) {
	query, args := buildTelemetryQuery(filter)
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: querying telemetry: %w", err)
	}
	defer rows.Close()

	var out []events.TelemetryEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scanning telemetry row: %w", err)
		}
		var e events.TelemetryEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("storage: decoding telemetry row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildTelemetryQuery(f TelemetryFilter) (string, []interface{}) {
	query := "SELECT payload FROM telemetry_events WHERE 1=1"
	var args []interface{}
	if f.Service != "" {
		query += " AND service = ?"
		args = append(args, string(f.Service))
	}
	if f.Model != "" {
		query += " AND model = ?"
		args = append(args, string(f.Model))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC())
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return query, args
}

// AnomalyFilter narrows QueryAnomalies to a service/model/severity/time range.
type AnomalyFilter struct {
	Service  events.ServiceId
	Model    events.ModelId
	Severity *events.Severity
	Since    time.Time
	Until    time.Time
	Limit    int
}

// QueryAnomalies returns anomaly alerts matching filter, most recent first.
func (s *Store) QueryAnomalies(ctx context.Context, filter AnomalyFilter) ([]events.AnomalyEvent, error) {
	query, args := buildAnomalyQuery(filter)
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: querying anomalies: %w", err)
	}
	defer rows.Close()

	var out []events.AnomalyEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scanning anomaly row: %w", err)
		}
		var a events.AnomalyEvent
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("storage: decoding anomaly row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func buildAnomalyQuery(f AnomalyFilter) (string, []interface{}) {
	query := "SELECT payload FROM anomaly_events WHERE 1=1"
	var args []interface{}
	if f.Service != "" {
		query += " AND service = ?"
		args = append(args, string(f.Service))
	}
	if f.Model != "" {
		query += " AND model = ?"
		args = append(args, string(f.Model))
	}
	if f.Severity != nil {
		query += " AND severity = ?"
		args = append(args, f.Severity.String())
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC())
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return query, args
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("storage: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("storage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: committing transaction: %w", err)
	}
	return nil
}
