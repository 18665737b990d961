// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/geogate/internal/detection"
)

// Validate checks the configuration for structural validity and for
// completeness of the enum-keyed tables. Every RiskLevel needs a rate-limit
// rule and every AnomalyTier needs a score entry; a partially configured
// table is a startup error, not a runtime surprise.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return translateValidatorError(err)
	}

	for _, level := range RiskLevels {
		rule, ok := c.RateLimit[string(level)]
		if !ok {
			return fmt.Errorf("rate_limit: missing rule for risk level %q", level)
		}
		if err := v.Struct(rule); err != nil {
			return fmt.Errorf("rate_limit[%s]: %w", level, translateValidatorError(err))
		}
	}
	for key := range c.RateLimit {
		if !knownRiskLevel(key) {
			return fmt.Errorf("rate_limit: unknown risk level %q", key)
		}
	}

	for _, tier := range detection.Tiers {
		if _, ok := c.Monitoring.AnomalyScores[tier.String()]; !ok {
			return fmt.Errorf("monitoring.anomaly_scores: missing score for tier %q", tier)
		}
	}
	for key, score := range c.Monitoring.AnomalyScores {
		if !knownTierName(key) {
			return fmt.Errorf("monitoring.anomaly_scores: unknown tier %q", key)
		}
		if score < 0 {
			return fmt.Errorf("monitoring.anomaly_scores[%s]: score must not be negative, got %d", key, score)
		}
	}

	if c.Monitoring.Thresholds.Warning >= c.Monitoring.Thresholds.Limit {
		return fmt.Errorf("monitoring.thresholds: warning (%d) must be below limit (%d)",
			c.Monitoring.Thresholds.Warning, c.Monitoring.Thresholds.Limit)
	}
	if c.Monitoring.SuspicionTTL <= 0 {
		return fmt.Errorf("monitoring.suspicion_ttl must be positive, got %s", c.Monitoring.SuspicionTTL)
	}
	if c.Monitoring.SuspensionDuration <= 0 {
		return fmt.Errorf("monitoring.suspension_duration must be positive, got %s", c.Monitoring.SuspensionDuration)
	}
	if c.Scheduler.ReleaseInterval <= 0 {
		return fmt.Errorf("scheduler.release_interval must be positive, got %s", c.Scheduler.ReleaseInterval)
	}
	if c.Scheduler.ReleaseOffset < 0 {
		return fmt.Errorf("scheduler.release_offset must not be negative, got %s", c.Scheduler.ReleaseOffset)
	}
	if c.Scheduler.ItemTimeout <= 0 {
		return fmt.Errorf("scheduler.item_timeout must be positive, got %s", c.Scheduler.ItemTimeout)
	}
	if !c.State.InMemory && c.State.Path == "" {
		return fmt.Errorf("state.path is required unless state.in_memory is set")
	}

	return nil
}

func knownRiskLevel(key string) bool {
	for _, level := range RiskLevels {
		if string(level) == key {
			return true
		}
	}
	return false
}

func knownTierName(key string) bool {
	for _, tier := range detection.Tiers {
		if tier.String() == key {
			return true
		}
	}
	return false
}

// translateValidatorError flattens validator.ValidationErrors into one
// actionable message per failing field.
func translateValidatorError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, fe := range verrs {
		return fmt.Errorf("field %s failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return err
}
