// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package sanction

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/metrics"
)

// BreakerStore wraps a Store with a circuit breaker so a misbehaving
// database cannot stall every unlock evaluation. Callers treat
// gobreaker.ErrOpenState like any other store failure; escalation retries
// naturally at the next threshold crossing because suspicion state lives
// elsewhere.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// NewBreakerStore wraps inner with circuit breaker protection.
// Opens after a 60% failure rate over at least 10 requests, waits 30 seconds
// before probing half-open.
func NewBreakerStore(inner Store) *BreakerStore {
	cbName := "sanction-store"
	metrics.BreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] Sanction store state transition")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerStore{inner: inner, cb: cb, name: cbName}
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Create appends a record through the breaker.
func (b *BreakerStore) Create(ctx context.Context, record *Record) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Create(ctx, record)
	})
	return err
}

// ListExpiredUnresolved lists expired suspensions through the breaker.
func (b *BreakerStore) ListExpiredUnresolved(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.ListExpiredUnresolved(ctx, now, limit)
	})
	if err != nil {
		return nil, err
	}
	records, _ := result.([]Record)
	return records, nil
}

// Query lists records through the breaker.
func (b *BreakerStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Query(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	records, _ := result.([]Record)
	return records, nil
}
