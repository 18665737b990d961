// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package unlock evaluates unlock attempts. This is the request-path core:
// input gates, anomaly classification against the member's previous report,
// rate limiting, suspicion accumulation, and escalation when the limit
// threshold is crossed. The unlock HTTP surface itself lives outside this
// service; callers feed attempts in and act on the returned verdict.
package unlock

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/detection"
	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/metrics"
)

// Observation is one location report: where the member said they were and
// when the server accepted the report.
type Observation struct {
	Latitude   float64
	Longitude  float64
	ReportedAt time.Time
}

// Attempt is one unlock attempt to evaluate. Previous is the member's last
// accepted report inside the log window, nil when there is none. ClientTime
// is the device clock, nil when the client did not send one.
type Attempt struct {
	MemberID  int64
	RiskLevel config.RiskLevel

	Latitude  *float64
	Longitude *float64

	ClientTime *time.Time
	Previous   *Observation
}

// Result is the verdict for one attempt. ConditionMet reports whether the
// input passed the validation gates (coordinates, clock skew, rate limit);
// the anomaly tier is meaningful only when it did. Results are computed
// fresh per attempt and never persisted.
type Result struct {
	ConditionMet bool
	Tier         detection.AnomalyTier
	ScoreDelta   int

	// Outcome labels the evaluation for logs and metrics: success, anomaly,
	// invalid_coordinate, time_manipulation, rate_limited.
	Outcome string
}

// Success reports whether the caller should honor the unlock.
func (r Result) Success() bool {
	return r.ConditionMet && r.Tier == detection.TierNormal
}

// Evaluation outcome labels.
const (
	OutcomeSuccess           = "success"
	OutcomeAnomaly           = "anomaly"
	OutcomeInvalidCoordinate = "invalid_coordinate"
	OutcomeTimeManipulation  = "time_manipulation"
	OutcomeRateLimited       = "rate_limited"
)

// ScoreStore accumulates per-member suspicion.
type ScoreStore interface {
	Add(ctx context.Context, memberID int64, delta int) (int, error)
	Reset(ctx context.Context, memberID int64) error
}

// RateLimiter throttles attempts per member and risk level.
type RateLimiter interface {
	Allow(ctx context.Context, memberID int64, level config.RiskLevel) (bool, error)
}

// Escalator suspends members whose suspicion crossed the limit threshold.
type Escalator interface {
	Escalate(ctx context.Context, memberID int64, detail string) error
}

// Evaluator wires the evaluation pipeline. Safe for concurrent use; all
// mutable state lives behind the injected stores.
type Evaluator struct {
	scores    ScoreStore
	limiter   RateLimiter
	escalator Escalator

	monitoring config.MonitoringConfig
	anomaly    config.AnomalyDetectionConfig
	now        func() time.Time
}

// NewEvaluator creates an evaluator from validated configuration.
func NewEvaluator(
	scores ScoreStore,
	limiter RateLimiter,
	escalator Escalator,
	monitoring config.MonitoringConfig,
	anomaly config.AnomalyDetectionConfig,
) *Evaluator {
	return &Evaluator{
		scores:     scores,
		limiter:    limiter,
		escalator:  escalator,
		monitoring: monitoring,
		anomaly:    anomaly,
		now:        time.Now,
	}
}

// EvaluateUnlockAttempt runs one attempt through the pipeline and returns
// the verdict. Gate failures short-circuit: a rejected input is never
// classified and never accumulates score. The returned error reports
// infrastructure failures only; an abusive attempt is a valid Result, not
// an error.
func (e *Evaluator) EvaluateUnlockAttempt(ctx context.Context, attempt Attempt) (Result, error) {
	started := e.now()
	result, err := e.evaluate(ctx, attempt, started)
	metrics.EvaluationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	metrics.EvaluationsTotal.WithLabelValues(result.Outcome).Inc()
	return result, nil
}

func (e *Evaluator) evaluate(ctx context.Context, attempt Attempt, serverTime time.Time) (Result, error) {
	if !detection.IsValidCoordinate(attempt.Latitude, attempt.Longitude) {
		logging.Debug().Int64("member_id", attempt.MemberID).Msg("Unlock attempt with invalid coordinates")
		return Result{Outcome: OutcomeInvalidCoordinate}, nil
	}

	if detection.IsTimeManipulation(serverTime, attempt.ClientTime) {
		logging.Warn().
			Int64("member_id", attempt.MemberID).
			Time("client_time", *attempt.ClientTime).
			Msg("Unlock attempt with manipulated clock")
		return Result{Outcome: OutcomeTimeManipulation}, nil
	}

	allowed, err := e.limiter.Allow(ctx, attempt.MemberID, attempt.RiskLevel)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for member %d: %w", attempt.MemberID, err)
	}
	if !allowed {
		return Result{Outcome: OutcomeRateLimited}, nil
	}

	tier := e.classify(attempt, serverTime)
	result := Result{ConditionMet: true, Tier: tier, Outcome: OutcomeSuccess}
	if tier == detection.TierNormal {
		return result, nil
	}

	result.Outcome = OutcomeAnomaly
	metrics.AnomaliesDetected.WithLabelValues(tier.String()).Inc()

	delta := e.monitoring.ScoreForTier(tier)
	result.ScoreDelta = delta
	if delta == 0 {
		return result, nil
	}

	total, err := e.scores.Add(ctx, attempt.MemberID, delta)
	if err != nil {
		return Result{}, fmt.Errorf("score accumulation for member %d: %w", attempt.MemberID, err)
	}

	switch {
	case total >= e.monitoring.Thresholds.Limit:
		detail := fmt.Sprintf("이상 탐지 점수 %d (한계 %d, 등급 %s)", total, e.monitoring.Thresholds.Limit, tier)
		if err := e.escalator.Escalate(ctx, attempt.MemberID, detail); err != nil {
			// Suspicion state is untouched, so the next anomaly re-crosses
			// the threshold and retries.
			return Result{}, fmt.Errorf("escalation for member %d: %w", attempt.MemberID, err)
		}
		if err := e.scores.Reset(ctx, attempt.MemberID); err != nil {
			logging.Warn().Err(err).Int64("member_id", attempt.MemberID).
				Msg("Failed to reset score after escalation")
		}
	case total >= e.monitoring.Thresholds.Warning:
		metrics.SuspicionWarnings.Inc()
		logging.Warn().
			Int64("member_id", attempt.MemberID).
			Int("score", total).
			Int("warning_threshold", e.monitoring.Thresholds.Warning).
			Str("tier", tier.String()).
			Msg("Member suspicion passed warning threshold")
	}

	return result, nil
}

// classify derives the anomaly tier for the attempt. Without a usable
// previous report inside the log window there is nothing to compare against
// and the attempt is normal.
func (e *Evaluator) classify(attempt Attempt, serverTime time.Time) detection.AnomalyTier {
	prev := attempt.Previous
	if prev == nil {
		return detection.TierNormal
	}
	if window := time.Duration(e.anomaly.LogWindowHours) * time.Hour; serverTime.Sub(prev.ReportedAt) > window {
		return detection.TierNormal
	}

	return detection.Classify(
		prev.Latitude, prev.Longitude,
		*attempt.Latitude, *attempt.Longitude,
		prev.ReportedAt, serverTime,
		e.anomaly.DuplicateThreshold(),
	)
}
