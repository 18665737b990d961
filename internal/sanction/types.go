// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package sanction records and enforces member sanctions.
//
// Every member status change, manual or automatic, appends a Record; records
// are never mutated or deleted. The Escalator issues automatic temporary
// suspensions when accumulated suspicion crosses the limit threshold, and the
// ReleaseScheduler restores members whose suspension window has elapsed,
// unless a manual action superseded the automatic one.
package sanction

import (
	"context"
	"time"

	"github.com/tomtom215/geogate/internal/member"
)

// Type categorizes a sanction record.
type Type string

const (
	// TypeStop is a manual suspension by an admin.
	TypeStop Type = "STOP"

	// TypeRestore lifts a suspension (manual or scheduled release).
	TypeRestore Type = "RESTORE"

	// TypeExit is a permanent account closure.
	TypeExit Type = "EXIT"

	// TypeAutoTemporarySuspension is issued by the system itself when
	// suspicion crosses the limit threshold. Always carries SanctionUntil.
	TypeAutoTemporarySuspension Type = "AUTO_TEMPORARY_SUSPENSION"
)

// AutoReasonPrefix marks reasons generated by the system rather than typed
// by an admin. Kept in the operators' language so existing admin tooling
// recognizes automatic entries.
const AutoReasonPrefix = "자동 제재: "

// Record is one append-only sanction ledger entry.
type Record struct {
	ID       string `json:"id"`
	MemberID int64  `json:"member_id"`

	// AdminID is the acting admin; automatic actions carry the reserved
	// system-admin account id.
	AdminID int64 `json:"admin_id"`

	Type         Type          `json:"sanction_type"`
	BeforeStatus member.Status `json:"before_status"`
	AfterStatus  member.Status `json:"after_status"`
	Reason       string        `json:"reason"`

	// SanctionUntil is when an automatic suspension expires. Required for
	// TypeAutoTemporarySuspension, nil otherwise.
	SanctionUntil *time.Time `json:"sanction_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Automatic reports whether the record was issued by the system.
func (r *Record) Automatic() bool {
	return r.Type == TypeAutoTemporarySuspension
}

// Filter selects records for listing queries.
type Filter struct {
	MemberID *int64
	Type     *Type
	Limit    int
	Offset   int
}

// Store is the persistence boundary for sanction records.
type Store interface {
	// Create appends a new record. The store assigns ID and CreatedAt when
	// they are zero.
	Create(ctx context.Context, record *Record) error

	// ListExpiredUnresolved returns AUTO_TEMPORARY_SUSPENSION records whose
	// SanctionUntil has passed and which no later record for the same
	// member supersedes.
	ListExpiredUnresolved(ctx context.Context, now time.Time, limit int) ([]Record, error)

	// Query lists records matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Record, error)
}
