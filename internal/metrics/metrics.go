// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package metrics provides Prometheus metrics for production observability.
// Metrics are exposed at /metrics in Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Unlock evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unlock_evaluations_total",
			Help: "Total number of unlock attempt evaluations",
		},
		[]string{"outcome"}, // "success", "invalid_coordinate", "time_manipulation", "rate_limited", "anomaly"
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unlock_evaluation_duration_seconds",
			Help:    "Duration of unlock attempt evaluations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalous location/time reports by tier",
		},
		[]string{"tier"}, // "watch", "strong", "block"
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of unlock attempts rejected by rate limiting",
		},
		[]string{"risk_level"},
	)

	SuspicionWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "suspicion_warnings_total",
			Help: "Total number of members whose suspicion score crossed the warning threshold",
		},
	)

	// Sanction metrics
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sanction_escalations_total",
			Help: "Total number of automatic temporary suspensions issued",
		},
	)

	EscalationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sanction_escalation_errors_total",
			Help: "Total number of failed escalation attempts",
		},
	)

	// Release sweep metrics
	SweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "release_sweep_runs_total",
			Help: "Total number of sanction release sweep runs",
		},
	)

	SweepRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "release_sweep_restored_total",
			Help: "Total number of members restored by the release sweep",
		},
	)

	SweepSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "release_sweep_skipped_total",
			Help: "Total number of expired sanction records skipped by the release sweep",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "release_sweep_duration_seconds",
			Help:    "Duration of release sweep runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	// Store metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Total number of persistence errors",
		},
		[]string{"store", "operation"},
	)

	// Circuit breaker state: 0=closed, 1=half-open, 2=open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
