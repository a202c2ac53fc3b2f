// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/llm-sentinel/sentinel/internal/config"
	"github.com/llm-sentinel/sentinel/internal/pipeline"
	"github.com/llm-sentinel/sentinel/internal/restapi"
	"github.com/llm-sentinel/sentinel/internal/scheduler"
	"github.com/llm-sentinel/sentinel/internal/sentinelmetrics"
	"github.com/llm-sentinel/sentinel/internal/slog"
	"github.com/llm-sentinel/sentinel/internal/source"
	"github.com/llm-sentinel/sentinel/internal/storage"
	"github.com/llm-sentinel/sentinel/internal/transport"
	"github.com/llm-sentinel/sentinel/pkg/baseline"
	"github.com/llm-sentinel/sentinel/pkg/dedup"
	"github.com/llm-sentinel/sentinel/pkg/detectors"
	"github.com/llm-sentinel/sentinel/pkg/engine"
	"github.com/llm-sentinel/sentinel/pkg/events"
)

func main() {
	var flagConfigFile string
	var flagStopImmediately bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "overwrite the default configuration with the values in `config.json`")
	flag.BoolVar(&flagStopImmediately, "no-server", false, "do not start the pipeline or API server, stop right after initialization")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Fatal("parsing './.env' file failed", slog.Err(err))
	}

	config.Init(flagConfigFile)
	slog.SetLevel(config.Keys.LogLevel)

	store, err := storage.Open(config.Keys.Storage.SQLitePath)
	if err != nil {
		slog.Fatal("opening storage", slog.Err(err))
	}
	defer store.Close()

	var influx *storage.InfluxSink
	if config.Keys.Storage.InfluxAddr != "" {
		influx = storage.NewInfluxSink(config.Keys.Storage.InfluxAddr, os.Getenv("SENTINEL_INFLUX_ORG"), os.Getenv("SENTINEL_INFLUX_BUCKET"), os.Getenv("SENTINEL_INFLUX_TOKEN"))
	}

	src, err := source.Connect(source.Config{
		URL:     config.Keys.Source.NATSURL,
		Subject: config.Keys.Source.Subject,
	})
	if err != nil {
		slog.Fatal("connecting to source", slog.Err(err))
	}
	defer src.Close()

	var alertTransport pipeline.Transport
	health := map[string]restapi.HealthChecker{"storage": store, "source": src}
	if config.Keys.Transport.WebhookURL != "" {
		webhookCfg := transport.DefaultConfig()
		webhookCfg.URL = config.Keys.Transport.WebhookURL
		webhookCfg.Secret = os.Getenv("SENTINEL_WEBHOOK_SECRET")
		wt, err := transport.New(webhookCfg)
		if err != nil {
			slog.Fatal("configuring webhook transport", slog.Err(err))
		}
		alertTransport = wt
		health["transport"] = wt
	} else {
		alertTransport = noopTransport{}
	}

	baselineStore := baseline.NewStore(config.Keys.Detection.BaselineWindowSize, 4096)
	eng, err := engine.New(baselineStore, buildDetectors())
	if err != nil {
		slog.Fatal("constructing detection engine", slog.Err(err))
	}

	deduplicator := dedup.New(dedup.Config{
		Enabled:         config.Keys.Dedup.Enabled,
		Window:          time.Duration(config.Keys.Dedup.WindowSecs) * time.Second,
		CleanupInterval: time.Duration(config.Keys.Dedup.CleanupIntervalSecs) * time.Second,
	})

	metrics := sentinelmetrics.New()

	var dataSink pipeline.Storage = store
	if influx != nil {
		dataSink = dualWriter{primary: store, secondary: influx}
	}

	validationCfg := events.DefaultValidationConfig()
	validate := func(e events.TelemetryEvent) error {
		return events.Validate(e, validationCfg)
	}

	driver := pipeline.New(pipeline.DefaultConfig(), src, validate, eng, dataSink, deduplicator, alertTransport, metrics)

	sched, err := scheduler.New()
	if err != nil {
		slog.Fatal("constructing scheduler", slog.Err(err))
	}
	dedupCleanupInterval := time.Duration(config.Keys.Dedup.CleanupIntervalSecs) * time.Second
	if err := sched.RegisterDedupCleanup(dedupCleanupInterval, deduplicator.Cleanup); err != nil {
		slog.Fatal("registering dedup cleanup job", slog.Err(err))
	}
	if err := sched.RegisterBaselineEviction(30*time.Second, driver.RefreshMetrics); err != nil {
		slog.Fatal("registering metrics refresh job", slog.Err(err))
	}

	api := restapi.New(store, metrics, health)
	apiServer := &http.Server{
		Addr:         config.Keys.API.Addr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if flagStopImmediately {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start()

	go func() {
		slog.Info("api server listening", slog.String("addr", config.Keys.API.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Fatal("api server failed", slog.Err(err))
		}
	}()

	go driver.Run(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	slog.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api server shutdown did not complete cleanly", slog.Err(err))
	}
	if err := sched.Stop(); err != nil {
		slog.Warn("scheduler shutdown did not complete cleanly", slog.Err(err))
	}

	slog.Info("graceful shutdown completed")
}

func buildDetectors() []detectors.Detector {
	var list []detectors.Detector
	if config.Keys.Detection.EnableZScore {
		cfg := detectors.DefaultZScoreConfig()
		cfg.Threshold = config.Keys.ZScore.Threshold
		list = append(list, detectors.NewZScoreDetector(cfg))
	}
	if config.Keys.Detection.EnableIQR {
		cfg := detectors.DefaultIQRConfig()
		cfg.Multiplier = config.Keys.IQR.Multiplier
		list = append(list, detectors.NewIQRDetector(cfg))
	}
	if config.Keys.Detection.EnableMAD {
		cfg := detectors.DefaultMADConfig()
		cfg.Threshold = config.Keys.MAD.Threshold
		list = append(list, detectors.NewMADDetector(cfg))
	}
	if config.Keys.Detection.EnableCUSUM {
		cfg := detectors.DefaultCUSUMConfig()
		cfg.Threshold = config.Keys.CUSUM.Threshold
		cfg.Slack = config.Keys.CUSUM.Slack
		list = append(list, detectors.NewCUSUMDetector(cfg))
	}
	return list
}

// dualWriter fans writes out to the primary sqlite store and the
// optional InfluxDB sink, treating the primary's error as the write's
// outcome: the sink is best-effort telemetry for dashboards, not a
// system of record.
type dualWriter struct {
	primary   *storage.Store
	secondary *storage.InfluxSink
}

func (d dualWriter) WriteTelemetry(ctx context.Context, e events.TelemetryEvent) error {
	if err := d.secondary.WriteTelemetry(ctx, e); err != nil {
		slog.Warn("influx telemetry write failed", slog.Err(err))
	}
	return d.primary.WriteTelemetry(ctx, e)
}

func (d dualWriter) WriteAnomaly(ctx context.Context, a events.AnomalyEvent) error {
	if err := d.secondary.WriteAnomaly(ctx, a); err != nil {
		slog.Warn("influx anomaly write failed", slog.Err(err))
	}
	return d.primary.WriteAnomaly(ctx, a)
}

// noopTransport is used when no webhook URL is configured: anomalies
// are still persisted and deduplicated, just never published.
type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, a events.AnomalyEvent) error { return nil }
