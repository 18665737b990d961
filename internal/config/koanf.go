// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/geogate/config.yaml",
	"/etc/geogate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is the prefix for all Geogate environment variables.
const envPrefix = "GEOGATE_"

// Load assembles configuration from layered sources:
//  1. Struct defaults
//  2. Optional YAML config file
//  3. GEOGATE_* environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKeyMappings maps GEOGATE_* variable names (lowercased, prefix stripped)
// to koanf config paths. Key names contain underscores themselves, so a
// mechanical separator transform cannot work; the mapping is explicit.
var envKeyMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",

	"http_addr":           "server.addr",
	"requests_per_minute": "server.requests_per_minute",

	"duckdb_path": "database.path",
	"state_path":  "state.path",

	"warning_threshold":   "monitoring.thresholds.warning",
	"limit_threshold":     "monitoring.thresholds.limit",
	"suspicion_ttl":       "monitoring.suspicion_ttl",
	"suspension_duration": "monitoring.suspension_duration",
	"system_admin_login":  "monitoring.system_admin_login",

	"log_window_hours":          "anomaly_detection.log_window_hours",
	"duplicate_request_seconds": "anomaly_detection.duplicate_request_seconds",

	"release_interval": "scheduler.release_interval",
	"release_offset":   "scheduler.release_offset",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unknown variables are dropped rather than guessed at.
//
// Examples:
//   - GEOGATE_SUSPICION_TTL     -> monitoring.suspicion_ttl
//   - GEOGATE_LIMIT_THRESHOLD   -> monitoring.thresholds.limit
//   - GEOGATE_DUCKDB_PATH       -> database.path
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if path, ok := envKeyMappings[key]; ok {
		return path
	}
	return ""
}
