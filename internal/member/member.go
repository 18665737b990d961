// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package member holds the member model and its DuckDB-backed store.
//
// Member lifecycle is a small state machine: ACTIVE and STOP are reversible
// (manual admin action or the automatic sanction/release cycle); EXIT is
// terminal. Status transitions are guarded at the SQL level so an escalation
// and a concurrent admin action cannot race into an inconsistent state.
package member

import (
	"context"
	"errors"
	"time"
)

// Status is a member's account status.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusStop   Status = "STOP"
	StatusExit   Status = "EXIT"
)

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusStop || s == StatusExit
}

// CanTransitionTo reports whether the state machine permits s -> next.
// EXIT is terminal; no transition leaves it.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusExit {
		return false
	}
	if !next.Valid() || next == s {
		return false
	}
	return true
}

// Member is a platform account as this engine sees it.
type Member struct {
	ID        int64     `json:"id"`
	LoginID   string    `json:"login_id"`
	Nickname  string    `json:"nickname,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound = errors.New("member not found")

	// ErrStatusConflict means a guarded transition found the member in a
	// different status than expected; someone else changed it first.
	ErrStatusConflict = errors.New("member status changed concurrently")
)

// Store is the persistence boundary for members.
type Store interface {
	// GetByID retrieves a member by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*Member, error)

	// GetByLogin retrieves a member by reserved login id. Used at bootstrap
	// to resolve the system-admin sentinel account.
	GetByLogin(ctx context.Context, loginID string) (*Member, error)

	// Create inserts a new member and returns it with the assigned id.
	Create(ctx context.Context, loginID, nickname string, status Status) (*Member, error)

	// TransitionStatus atomically moves a member from one status to another.
	// The WHERE clause re-checks the expected current status inside the same
	// statement as the mutation; ErrStatusConflict is returned when the
	// member was not in the expected status.
	TransitionStatus(ctx context.Context, id int64, from, to Status) error
}
