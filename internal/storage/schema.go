// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

const schemaSQL = `
CREATE TABLE IF NOT EXISTS telemetry_events (
	event_id   TEXT PRIMARY KEY,
	timestamp  DATETIME NOT NULL,
	service    TEXT NOT NULL,
	model      TEXT NOT NULL,
	latency_ms REAL NOT NULL,
	cost_usd   REAL NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telemetry_service_model_ts
	ON telemetry_events (service, model, timestamp);

CREATE TABLE IF NOT EXISTS anomaly_events (
	alert_id   TEXT PRIMARY KEY,
	timestamp  DATETIME NOT NULL,
	service    TEXT NOT NULL,
	model      TEXT NOT NULL,
	severity   TEXT NOT NULL,
	type       TEXT NOT NULL,
	method     TEXT NOT NULL,
	confidence REAL NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_anomaly_service_model_ts
	ON anomaly_events (service, model, timestamp);

CREATE INDEX IF NOT EXISTS idx_anomaly_severity
	ON anomaly_events (severity, timestamp);
`
