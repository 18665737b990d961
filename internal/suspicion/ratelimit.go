// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package suspicion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/metrics"
)

const (
	rateLimitBuckets = 10

	// rateLimitMaxMembers caps in-memory window state. Cooldowns are in
	// Badger and unaffected by eviction.
	rateLimitMaxMembers = 100_000
)

// RateLimiter throttles unlock attempts per member according to the rule for
// the member's risk level. Request counting is an in-memory sliding window;
// the cooldown a member enters after exceeding the window lives in Badger so
// it survives restarts.
type RateLimiter struct {
	db    *badger.DB
	rules map[config.RiskLevel]config.RateLimitRule
	sets  map[config.RiskLevel]*windowSet
	now   func() time.Time
}

// NewRateLimiter creates a rate limiter from the per-level rules. Config
// validation guarantees a rule exists for every risk level.
func NewRateLimiter(db *badger.DB, rules map[string]config.RateLimitRule) *RateLimiter {
	l := &RateLimiter{
		db:    db,
		rules: make(map[config.RiskLevel]config.RateLimitRule, len(rules)),
		sets:  make(map[config.RiskLevel]*windowSet, len(rules)),
		now:   time.Now,
	}
	for name, rule := range rules {
		level := config.RiskLevel(name)
		l.rules[level] = rule
		l.sets[level] = newWindowSet(rule.Window(), rateLimitBuckets, rateLimitMaxMembers)
	}
	return l
}

func cooldownKey(level config.RiskLevel, memberID int64) []byte {
	return []byte("cooldown:" + string(level) + ":" + strconv.FormatInt(memberID, 10))
}

// Allow records one attempt and reports whether it may proceed. An attempt
// that pushes the member past the rule's max starts the cooldown; every
// attempt during the cooldown is rejected without touching the window.
func (l *RateLimiter) Allow(ctx context.Context, memberID int64, level config.RiskLevel) (bool, error) {
	rule, ok := l.rules[level]
	if !ok {
		return false, fmt.Errorf("no rate-limit rule for risk level %q", level)
	}

	cooling, err := l.inCooldown(ctx, level, memberID)
	if err != nil {
		return false, err
	}
	if cooling {
		metrics.RateLimitRejections.WithLabelValues(string(level)).Inc()
		return false, nil
	}

	count := l.sets[level].get(windowKey(level, memberID), l.now()).IncrementAndCount(l.now())
	if count <= int64(rule.MaxRequests) {
		return true, nil
	}

	if err := l.startCooldown(ctx, level, memberID, rule.Cooldown()); err != nil {
		return false, err
	}
	metrics.RateLimitRejections.WithLabelValues(string(level)).Inc()
	return false, nil
}

func windowKey(level config.RiskLevel, memberID int64) string {
	return string(level) + ":" + strconv.FormatInt(memberID, 10)
}

func (l *RateLimiter) inCooldown(ctx context.Context, level config.RiskLevel, memberID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var cooling bool
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(cooldownKey(level, memberID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cooling = true
		return nil
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("ratelimit", "cooldown_check").Inc()
		return false, fmt.Errorf("failed to check cooldown for member %d: %w", memberID, err)
	}
	return cooling, nil
}

func (l *RateLimiter) startCooldown(ctx context.Context, level config.RiskLevel, memberID int64, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(cooldownKey(level, memberID), []byte{1}).WithTTL(ttl))
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("ratelimit", "cooldown_set").Inc()
		return fmt.Errorf("failed to start cooldown for member %d: %w", memberID, err)
	}
	return nil
}
