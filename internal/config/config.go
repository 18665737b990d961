// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package config provides layered configuration loading for Geogate.
//
// Configuration is assembled once at process start from struct defaults, an
// optional YAML file, and GEOGATE_* environment variables (highest priority),
// then validated and passed by value to every consumer. Nothing mutates it
// after load.
package config

import (
	"time"

	"github.com/tomtom215/geogate/internal/detection"
)

// RiskLevel partitions members into rate-limit buckets. Every level must have
// a configured rate-limit rule; load-time validation enforces completeness.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevels lists every risk level. Used for table-completeness validation.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// Config is the root configuration for the Geogate service.
type Config struct {
	Logging          LoggingConfig            `koanf:"logging"`
	Server           ServerConfig             `koanf:"server"`
	Database         DatabaseConfig           `koanf:"database"`
	State            StateConfig              `koanf:"state"`
	RateLimit        map[string]RateLimitRule `koanf:"rate_limit"`
	Monitoring       MonitoringConfig         `koanf:"monitoring"`
	AnomalyDetection AnomalyDetectionConfig   `koanf:"anomaly_detection"`
	Scheduler        SchedulerConfig          `koanf:"scheduler"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"required"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// ServerConfig configures the ops HTTP surface (healthz, metrics, read-only
// sanction listing).
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`

	// RequestsPerMinute throttles ops endpoints per client IP.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=1"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the DuckDB store holding members and sanction
// records. An empty path opens an in-memory database (tests).
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// StateConfig configures the Badger store holding suspicion scores and
// rate-limit state. InMemory is for tests.
type StateConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// RateLimitRule governs attempts per rolling window for one risk level.
type RateLimitRule struct {
	WindowSeconds   int `koanf:"window_seconds" validate:"min=1"`
	MaxRequests     int `koanf:"max_requests" validate:"min=1"`
	CooldownSeconds int `koanf:"cooldown_seconds" validate:"min=1"`
}

// Window returns the rolling window as a duration.
func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Cooldown returns the cooldown as a duration.
func (r RateLimitRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// ThresholdsConfig holds the suspicion-score action thresholds. Warning
// triggers a soft response (log + metric); Limit triggers escalation.
type ThresholdsConfig struct {
	Warning int `koanf:"warning" validate:"min=1"`
	Limit   int `koanf:"limit" validate:"min=1"`
}

// MonitoringConfig holds suspicion scoring and sanction parameters.
type MonitoringConfig struct {
	Thresholds ThresholdsConfig `koanf:"thresholds"`

	// AnomalyScores maps tier names (normal, watch, strong, block) to the
	// score delta added per observation.
	AnomalyScores map[string]int `koanf:"anomaly_scores"`

	// SuspicionTTL is how long an accumulated score survives after the
	// first contributing anomaly opened its window. Expiry resets the score
	// to zero (fixed-window reset, no gradual decay).
	SuspicionTTL time.Duration `koanf:"suspicion_ttl"`

	// SuspensionDuration is the length of an automatic temporary suspension.
	SuspensionDuration time.Duration `koanf:"suspension_duration"`

	// SystemAdminLogin is the reserved login id of the account automated
	// actions are attributed to. The account must exist at startup.
	SystemAdminLogin string `koanf:"system_admin_login" validate:"required"`
}

// ScoreForTier returns the configured score delta for a tier. Validation
// guarantees every tier has an entry.
func (m MonitoringConfig) ScoreForTier(tier detection.AnomalyTier) int {
	return m.AnomalyScores[tier.String()]
}

// AnomalyDetectionConfig holds classifier input parameters.
type AnomalyDetectionConfig struct {
	// LogWindowHours bounds how old a previous location report may be and
	// still participate in classification.
	LogWindowHours int `koanf:"log_window_hours" validate:"min=1"`

	// DuplicateRequestSeconds is the window inside which a repeated report
	// is treated as a duplicate tap or retry.
	DuplicateRequestSeconds int `koanf:"duplicate_request_seconds" validate:"min=0"`
}

// DuplicateThreshold returns the duplicate window as a duration.
func (a AnomalyDetectionConfig) DuplicateThreshold() time.Duration {
	return time.Duration(a.DuplicateRequestSeconds) * time.Second
}

// SchedulerConfig configures the sanction release sweep.
type SchedulerConfig struct {
	// ReleaseInterval is the period between sweeps.
	ReleaseInterval time.Duration `koanf:"release_interval"`

	// ReleaseOffset is the grace margin past expiry before a suspension is
	// eligible for release; a sweep only releases suspensions that expired
	// at least this long ago.
	ReleaseOffset time.Duration `koanf:"release_offset"`

	// ItemTimeout bounds the handling of a single expired record.
	ItemTimeout time.Duration `koanf:"item_timeout"`
}

// Rule returns the rate-limit rule for a risk level. Validation guarantees
// every level has an entry.
func (c *Config) Rule(level RiskLevel) RateLimitRule {
	return c.RateLimit[string(level)]
}

// defaultConfig returns a Config with every field set to a sensible default.
// Defaults are applied first, then overridden by file and env layers.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:              ":3858",
			RequestsPerMinute: 120,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/geogate.duckdb",
		},
		State: StateConfig{
			Path:     "/data/geogate-state",
			InMemory: false,
		},
		RateLimit: map[string]RateLimitRule{
			string(RiskLow):    {WindowSeconds: 60, MaxRequests: 30, CooldownSeconds: 60},
			string(RiskMedium): {WindowSeconds: 60, MaxRequests: 10, CooldownSeconds: 300},
			string(RiskHigh):   {WindowSeconds: 60, MaxRequests: 5, CooldownSeconds: 600},
		},
		Monitoring: MonitoringConfig{
			Thresholds: ThresholdsConfig{
				Warning: 50,
				Limit:   100,
			},
			AnomalyScores: map[string]int{
				detection.TierNormal.String(): 0,
				detection.TierWatch.String():  20,
				detection.TierStrong.String(): 50,
				// A single impossible movement crosses the limit threshold.
				detection.TierBlock.String(): 100,
			},
			SuspicionTTL:       24 * time.Hour,
			SuspensionDuration: 72 * time.Hour,
			SystemAdminLogin:   "system",
		},
		AnomalyDetection: AnomalyDetectionConfig{
			LogWindowHours:          24,
			DuplicateRequestSeconds: 5,
		},
		Scheduler: SchedulerConfig{
			ReleaseInterval: time.Hour,
			ReleaseOffset:   5 * time.Minute,
			ItemTimeout:     10 * time.Second,
		},
	}
}
