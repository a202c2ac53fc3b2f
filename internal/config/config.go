// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the sentinel process
// configuration: a JSON file checked against an embedded JSON Schema,
// overlaid with a handful of environment variables for the values
// operators most often need to override per-deployment (broker URL,
// storage path, webhook endpoint) without editing the file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/llm-sentinel/sentinel/internal/slog"
)

// DetectionConfig toggles which detectors the engine runs and how
// large their shared rolling window is.
type DetectionConfig struct {
	EnableZScore       bool `json:"enable_zscore"`
	EnableIQR          bool `json:"enable_iqr"`
	EnableMAD          bool `json:"enable_mad"`
	EnableCUSUM        bool `json:"enable_cusum"`
	BaselineWindowSize int  `json:"baseline_window_size"`
	ContinuousLearning bool `json:"continuous_learning"`
}

type ZScoreConfig struct {
	Threshold float64 `json:"threshold"`
}

type IQRConfig struct {
	Multiplier float64 `json:"multiplier"`
}

type MADConfig struct {
	Threshold float64 `json:"threshold"`
}

type CUSUMConfig struct {
	Threshold float64 `json:"threshold"`
	Slack     float64 `json:"slack"`
}

// DetectorCommon holds the fields shared by every detector config.
type DetectorCommon struct {
	MinSamples     int  `json:"min_samples"`
	UpdateBaseline bool `json:"update_baseline"`
}

type DedupConfig struct {
	Enabled             bool `json:"enabled"`
	WindowSecs          int  `json:"window_secs"`
	CleanupIntervalSecs int  `json:"cleanup_interval_secs"`
}

type SourceConfig struct {
	NATSURL string `json:"nats_url"`
	Subject string `json:"subject"`
}

type StorageConfig struct {
	SQLitePath string `json:"sqlite_path"`
	InfluxAddr string `json:"influx_addr"`
}

type TransportConfig struct {
	WebhookURL string `json:"webhook_url"`
}

type APIConfig struct {
	Addr string `json:"addr"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

// Config is the complete sentinel process configuration.
type Config struct {
	LogLevel       string          `json:"log_level"`
	Detection      DetectionConfig `json:"detection"`
	ZScore         ZScoreConfig    `json:"zscore"`
	IQR            IQRConfig       `json:"iqr"`
	MAD            MADConfig       `json:"mad"`
	CUSUM          CUSUMConfig     `json:"cusum"`
	DetectorCommon DetectorCommon  `json:"detector_common"`
	Dedup          DedupConfig     `json:"dedup"`
	Source         SourceConfig    `json:"source"`
	Storage        StorageConfig   `json:"storage"`
	Transport      TransportConfig `json:"transport"`
	API            APIConfig       `json:"api"`
	Metrics        MetricsConfig   `json:"metrics"`
}

// Keys holds the active configuration, populated by Init. Collaborator
// packages read it the way the teacher's internal/config.Keys is read
// package-wide after startup.
var Keys = Default()

// Default returns the configuration populated with every default named
// in SPEC_FULL.md §6.5.
func Default() Config {
	return Config{
		LogLevel: "info",
		Detection: DetectionConfig{
			EnableZScore:       true,
			EnableIQR:          true,
			EnableMAD:          true,
			EnableCUSUM:        true,
			BaselineWindowSize: 1000,
			ContinuousLearning: true,
		},
		ZScore:         ZScoreConfig{Threshold: 3.0},
		IQR:            IQRConfig{Multiplier: 1.5},
		MAD:            MADConfig{Threshold: 3.5},
		CUSUM:          CUSUMConfig{Threshold: 5.0, Slack: 0.5},
		DetectorCommon: DetectorCommon{MinSamples: 10, UpdateBaseline: true},
		Dedup:          DedupConfig{Enabled: true, WindowSecs: 300, CleanupIntervalSecs: 60},
		Source:         SourceConfig{NATSURL: "nats://127.0.0.1:4222", Subject: "sentinel.telemetry"},
		Storage:        StorageConfig{SQLitePath: "./var/sentinel.db"},
		Transport:      TransportConfig{WebhookURL: ""},
		API:            APIConfig{Addr: ":8090"},
		Metrics:        MetricsConfig{Addr: ":9090"},
	}
}

// Init reads flagConfigFile (if it exists), validates it against the
// embedded schema, decodes it over the defaults, applies the
// environment overlay, and stores the result in Keys. A missing file
// is not fatal: Keys is left at its defaults plus any environment
// overrides. A present-but-invalid file is a configuration error and
// is fatal, matching the teacher's Init contract.
func Init(flagConfigFile string) {
	cfg := Default()

	if flagConfigFile != "" {
		raw, err := os.ReadFile(flagConfigFile)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Fatal("reading config file", slog.String("path", flagConfigFile), slog.Err(err))
			}
		} else {
			if err := Validate(raw); err != nil {
				slog.Fatal("validating config file", slog.Err(err))
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cfg); err != nil {
				slog.Fatal("decoding config file", slog.Err(err))
			}
		}
	}

	applyEnvOverlay(&cfg)

	if cfg.Detection.BaselineWindowSize < 10 {
		slog.Fatal("baseline_window_size must be >= 10", slog.Int("got", cfg.Detection.BaselineWindowSize))
	}
	if !cfg.Detection.EnableZScore && !cfg.Detection.EnableIQR && !cfg.Detection.EnableMAD && !cfg.Detection.EnableCUSUM {
		slog.Fatal("at least one detector must be enabled")
	}

	Keys = cfg
}

// Validate checks raw against the embedded JSON Schema.
func Validate(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}

// applyEnvOverlay overrides the fields operators most commonly need to
// pin per-deployment (broker address, storage path, webhook endpoint,
// log verbosity) from the process environment, without requiring a
// config file edit. Unset variables leave the existing value alone.
func applyEnvOverlay(cfg *Config) {
	if v, ok := os.LookupEnv("SENTINEL_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("SENTINEL_NATS_URL"); ok {
		cfg.Source.NATSURL = v
	}
	if v, ok := os.LookupEnv("SENTINEL_NATS_SUBJECT"); ok {
		cfg.Source.Subject = v
	}
	if v, ok := os.LookupEnv("SENTINEL_SQLITE_PATH"); ok {
		cfg.Storage.SQLitePath = v
	}
	if v, ok := os.LookupEnv("SENTINEL_INFLUX_ADDR"); ok {
		cfg.Storage.InfluxAddr = v
	}
	if v, ok := os.LookupEnv("SENTINEL_WEBHOOK_URL"); ok {
		cfg.Transport.WebhookURL = v
	}
	if v, ok := os.LookupEnv("SENTINEL_API_ADDR"); ok {
		cfg.API.Addr = v
	}
	if v, ok := os.LookupEnv("SENTINEL_METRICS_ADDR"); ok {
		cfg.Metrics.Addr = v
	}
	if v, ok := os.LookupEnv("SENTINEL_DEDUP_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dedup.Enabled = b
		}
	}
}
