// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitWithMissingFileUsesDefaults(t *testing.T) {
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if Keys.ZScore.Threshold != 3.0 {
		t.Fatalf("ZScore.Threshold = %v, want 3.0", Keys.ZScore.Threshold)
	}
	if Keys.Detection.BaselineWindowSize != 1000 {
		t.Fatalf("BaselineWindowSize = %d, want 1000", Keys.Detection.BaselineWindowSize)
	}
}

func TestInitDecodesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"zscore":{"threshold":4.5},"dedup":{"enabled":true,"window_secs":120,"cleanup_interval_secs":30}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	Init(path)
	if Keys.ZScore.Threshold != 4.5 {
		t.Fatalf("ZScore.Threshold = %v, want 4.5", Keys.ZScore.Threshold)
	}
	if Keys.Dedup.WindowSecs != 120 {
		t.Fatalf("Dedup.WindowSecs = %d, want 120", Keys.Dedup.WindowSecs)
	}
}

func TestEnvOverlayOverridesFileValue(t *testing.T) {
	t.Setenv("SENTINEL_NATS_URL", "nats://override:4222")
	cfg := Default()
	applyEnvOverlay(&cfg)
	if cfg.Source.NATSURL != "nats://override:4222" {
		t.Fatalf("Source.NATSURL = %v, want override", cfg.Source.NATSURL)
	}
}
