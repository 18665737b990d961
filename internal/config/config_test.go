// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/geogate/internal/detection"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration failed validation: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Monitoring.Thresholds.Limit != 100 {
		t.Errorf("limit threshold = %d, want 100", cfg.Monitoring.Thresholds.Limit)
	}
	if cfg.Monitoring.SuspensionDuration != 72*time.Hour {
		t.Errorf("suspension duration = %s, want 72h", cfg.Monitoring.SuspensionDuration)
	}
	if cfg.AnomalyDetection.DuplicateRequestSeconds != 5 {
		t.Errorf("duplicate window = %d, want 5", cfg.AnomalyDetection.DuplicateRequestSeconds)
	}
	if got := cfg.Rule(RiskHigh).MaxRequests; got != 5 {
		t.Errorf("high risk max requests = %d, want 5", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEOGATE_LIMIT_THRESHOLD", "200")
	t.Setenv("GEOGATE_SUSPICION_TTL", "48h")
	t.Setenv("GEOGATE_LOG_LEVEL", "debug")
	t.Setenv("GEOGATE_UNKNOWN_KEY", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Monitoring.Thresholds.Limit != 200 {
		t.Errorf("limit threshold = %d, want 200 from env", cfg.Monitoring.Thresholds.Limit)
	}
	if cfg.Monitoring.SuspicionTTL != 48*time.Hour {
		t.Errorf("suspicion ttl = %s, want 48h from env", cfg.Monitoring.SuspicionTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug from env", cfg.Logging.Level)
	}
}

func TestConfigFileLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
monitoring:
  thresholds:
    warning: 30
    limit: 60
scheduler:
  release_interval: 30m
rate_limit:
  high:
    window_seconds: 10
    max_requests: 2
    cooldown_seconds: 120
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Monitoring.Thresholds.Warning != 30 || cfg.Monitoring.Thresholds.Limit != 60 {
		t.Errorf("thresholds = %+v, want warning=30 limit=60", cfg.Monitoring.Thresholds)
	}
	if cfg.Scheduler.ReleaseInterval != 30*time.Minute {
		t.Errorf("release interval = %s, want 30m", cfg.Scheduler.ReleaseInterval)
	}
	if got := cfg.Rule(RiskHigh); got.MaxRequests != 2 || got.CooldownSeconds != 120 {
		t.Errorf("high rule = %+v, want max_requests=2 cooldown=120", got)
	}
	// Untouched levels keep their defaults.
	if got := cfg.Rule(RiskLow).MaxRequests; got != 30 {
		t.Errorf("low rule max requests = %d, want default 30", got)
	}
}

func TestValidateCompleteness(t *testing.T) {
	t.Run("missing risk level", func(t *testing.T) {
		cfg := defaultConfig()
		delete(cfg.RateLimit, string(RiskMedium))
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing risk level rule")
		}
	})

	t.Run("unknown risk level", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.RateLimit["vip"] = RateLimitRule{WindowSeconds: 1, MaxRequests: 1, CooldownSeconds: 1}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown risk level")
		}
	})

	t.Run("missing tier score", func(t *testing.T) {
		cfg := defaultConfig()
		delete(cfg.Monitoring.AnomalyScores, detection.TierStrong.String())
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing tier score")
		}
	})

	t.Run("negative tier score", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Monitoring.AnomalyScores[detection.TierWatch.String()] = -1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative tier score")
		}
	})

	t.Run("warning above limit", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Monitoring.Thresholds.Warning = 200
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for warning >= limit")
		}
	})

	t.Run("zero suspicion ttl", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Monitoring.SuspicionTTL = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for zero suspicion ttl")
		}
	})

	t.Run("zero window seconds", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.RateLimit[string(RiskLow)] = RateLimitRule{WindowSeconds: 0, MaxRequests: 1, CooldownSeconds: 1}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for zero window")
		}
	})
}

func TestScoreForTier(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.Monitoring.ScoreForTier(detection.TierNormal); got != 0 {
		t.Errorf("normal score = %d, want 0", got)
	}
	if got := cfg.Monitoring.ScoreForTier(detection.TierBlock); got != cfg.Monitoring.Thresholds.Limit {
		t.Errorf("block score = %d, want limit threshold %d", got, cfg.Monitoring.Thresholds.Limit)
	}
}
