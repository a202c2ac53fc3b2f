// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package restapi is the ambient query/health/metrics surface that
// sits alongside the detection core: a thin read-only view over
// storage plus the Prometheus scrape endpoint, wired the way the
// teacher mounts its own REST API onto a gorilla/mux router.
package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/llm-sentinel/sentinel/internal/sentinelmetrics"
	"github.com/llm-sentinel/sentinel/internal/slog"
	"github.com/llm-sentinel/sentinel/internal/storage"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

// HealthChecker reports whether a collaborator is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// API mounts the query, health and metrics routes.
type API struct {
	store   *storage.Store
	metrics *sentinelmetrics.Metrics
	health  map[string]HealthChecker
}

// New constructs an API over store, exposing metrics (if non-nil) at
// /metrics and the given named health checkers at /healthz.
func New(store *storage.Store, metrics *sentinelmetrics.Metrics, health map[string]HealthChecker) *API {
	return &API{store: store, metrics: metrics, health: health}
}

// Router builds the mux.Router with CORS, gzip and access logging
// applied the way the teacher wraps its own router.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.StrictSlash(true)
	api.HandleFunc("/telemetry", a.handleQueryTelemetry).Methods(http.MethodGet)
	api.HandleFunc("/anomalies", a.handleQueryAnomalies).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))

	return handlers.CombinedLoggingHandler(accessLogWriter{}, r)
}

// accessLogWriter routes gorilla/handlers' combined log lines through
// the structured logger instead of directly to stdout.
type accessLogWriter struct{}

func (accessLogWriter) Write(p []byte) (int, error) {
	slog.Info("http access", slog.String("line", string(p)))
	return len(p), nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	result := make(map[string]string, len(a.health))
	for name, checker := range a.health {
		if err := checker.HealthCheck(r.Context()); err != nil {
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			result[name] = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

func (a *API) handleQueryTelemetry(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTelemetryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := a.store.QueryTelemetry(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rows)
}

func (a *API) handleQueryAnomalies(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAnomalyFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := a.store.QueryAnomalies(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rows)
}

func parseTelemetryFilter(r *http.Request) (storage.TelemetryFilter, error) {
	q := r.URL.Query()
	f := storage.TelemetryFilter{
		Service: events.ServiceId(q.Get("service")),
		Model:   events.ModelId(q.Get("model")),
	}
	var err error
	if f.Since, err = parseTimeParam(q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q.Get("until")); err != nil {
		return f, err
	}
	if f.Limit, err = parseLimitParam(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseAnomalyFilter(r *http.Request) (storage.AnomalyFilter, error) {
	q := r.URL.Query()
	f := storage.AnomalyFilter{
		Service: events.ServiceId(q.Get("service")),
		Model:   events.ModelId(q.Get("model")),
	}
	if raw := q.Get("severity"); raw != "" {
		sev := severityFromQuery(raw)
		f.Severity = &sev
	}
	var err error
	if f.Since, err = parseTimeParam(q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q.Get("until")); err != nil {
		return f, err
	}
	if f.Limit, err = parseLimitParam(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func severityFromQuery(raw string) events.Severity {
	var s events.Severity
	_ = s.UnmarshalJSON([]byte(`"` + raw + `"`))
	return s
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseLimitParam(raw string) (int, error) {
	if raw == "" {
		return 100, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed encoding response body", slog.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
