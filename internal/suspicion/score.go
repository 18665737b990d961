// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package suspicion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/geogate/internal/metrics"
)

const (
	// conflictRetries bounds optimistic transaction retries. Writers to the
	// same member key are serialized by stripe lock, so conflicts only come
	// from unrelated keys sharing a Badger commit window; the loop is a
	// safety net, not the contention mechanism.
	conflictRetries = 10

	// conflictBackoff is the base delay between conflict retries, doubled
	// per attempt with up to one base of jitter.
	conflictBackoff = 2 * time.Millisecond

	// scoreStripes is the stripe-lock count. Concurrent anomalies for one
	// member must not lose deltas, so same-member writes take the same lock.
	scoreStripes = 64
)

// scoreEntry is the stored per-member score state. ExpiresAt pins the fixed
// window so accumulating writes don't extend it.
type scoreEntry struct {
	Score       int       `json:"score"`
	WindowStart time.Time `json:"window_start"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ScoreStore accumulates suspicion scores per member in fixed windows.
type ScoreStore struct {
	db     *badger.DB
	prefix []byte
	ttl    time.Duration
	now    func() time.Time
	locks  [scoreStripes]sync.Mutex
}

// NewScoreStore creates a score store on the shared Badger instance.
// ttl is the fixed-window length; an entry written at the window start
// expires ttl later no matter how many anomalies accumulate into it.
func NewScoreStore(db *badger.DB, ttl time.Duration) *ScoreStore {
	return &ScoreStore{
		db:     db,
		prefix: []byte("suspicion:"),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *ScoreStore) key(memberID int64) []byte {
	return append(append([]byte{}, s.prefix...), []byte(strconv.FormatInt(memberID, 10))...)
}

func (s *ScoreStore) lock(memberID int64) *sync.Mutex {
	return &s.locks[uint64(memberID)%scoreStripes]
}

// Add accumulates delta into the member's current window and returns the new
// total. A zero delta still returns the current total without opening a new
// window.
func (s *ScoreStore) Add(ctx context.Context, memberID int64, delta int) (int, error) {
	if delta == 0 {
		return s.Get(ctx, memberID)
	}

	mu := s.lock(memberID)
	mu.Lock()
	defer mu.Unlock()

	key := s.key(memberID)
	var total int

	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return 0, err
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			now := s.now()
			entry := scoreEntry{WindowStart: now, ExpiresAt: now.Add(s.ttl)}

			item, getErr := txn.Get(key)
			if getErr == nil {
				var existing scoreEntry
				if valErr := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); valErr != nil {
					return valErr
				}
				if now.Before(existing.ExpiresAt) {
					entry = existing
				}
			} else if !errors.Is(getErr, badger.ErrKeyNotFound) {
				return getErr
			}

			entry.Score += delta
			if entry.Score < 0 {
				entry.Score = 0
			}
			total = entry.Score

			data, marshalErr := json.Marshal(&entry)
			if marshalErr != nil {
				return marshalErr
			}
			remaining := entry.ExpiresAt.Sub(now)
			return txn.SetEntry(badger.NewEntry(key, data).WithTTL(remaining))
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}

		delay := conflictBackoff<<attempt + time.Duration(rand.Int64N(int64(conflictBackoff)))
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("suspicion", "add").Inc()
		return 0, fmt.Errorf("failed to accumulate score for member %d: %w", memberID, err)
	}
	return total, nil
}

// Get returns the member's current score, zero when no window is open.
func (s *ScoreStore) Get(ctx context.Context, memberID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var score int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(memberID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var entry scoreEntry
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			if s.now().Before(entry.ExpiresAt) {
				score = entry.Score
			}
			return nil
		})
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("suspicion", "get").Inc()
		return 0, fmt.Errorf("failed to read score for member %d: %w", memberID, err)
	}
	return score, nil
}

// Reset clears the member's window. Called after an escalation so the next
// window starts clean once the suspension lifts.
func (s *ScoreStore) Reset(ctx context.Context, memberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := s.lock(memberID)
	mu.Lock()
	defer mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(memberID))
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("suspicion", "reset").Inc()
		return fmt.Errorf("failed to reset score for member %d: %w", memberID, err)
	}
	return nil
}
