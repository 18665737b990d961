// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package suspicion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// SweepLease is a Badger-backed single-holder lease. The holder id is random
// per process, so two instances sharing the state store never both run the
// release sweep; a crashed holder's lease lapses via entry TTL.
type SweepLease struct {
	db     *badger.DB
	key    []byte
	holder []byte
}

// NewSweepLease creates a lease under the given name.
func NewSweepLease(db *badger.DB, name string) *SweepLease {
	return &SweepLease{
		db:     db,
		key:    []byte("lease:" + name),
		holder: []byte(uuid.NewString()),
	}
}

// TryAcquire takes the lease for ttl. Re-acquiring one's own lease refreshes
// the TTL. Returns false without error when another holder is active.
func (l *SweepLease) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	acquired := false
	err := l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(l.key)
		if err == nil {
			var held bool
			if valErr := item.Value(func(val []byte) error {
				held = string(val) != string(l.holder)
				return nil
			}); valErr != nil {
				return valErr
			}
			if held {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		acquired = true
		return txn.SetEntry(badger.NewEntry(l.key, l.holder).WithTTL(ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		// Someone else raced us to the key; they hold it.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return acquired, nil
}

// Release drops the lease if this process holds it.
func (l *SweepLease) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(l.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		mine := false
		if valErr := item.Value(func(val []byte) error {
			mine = string(val) == string(l.holder)
			return nil
		}); valErr != nil {
			return valErr
		}
		if !mine {
			return nil
		}
		return txn.Delete(l.key)
	})
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
