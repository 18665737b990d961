// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package sanction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/member"
	"github.com/tomtom215/geogate/internal/metrics"
)

// Escalator issues automatic temporary suspensions. It is safe to call
// concurrently for the same member: the guarded status transition ensures
// only one caller wins, the rest become no-ops.
type Escalator struct {
	members       member.Store
	sanctions     Store
	systemAdminID int64
	suspension    time.Duration
	now           func() time.Time
}

// NewEscalator creates an escalator acting as the given system admin.
// suspension is how long an automatic suspension lasts.
func NewEscalator(members member.Store, sanctions Store, systemAdminID int64, suspension time.Duration) *Escalator {
	return &Escalator{
		members:       members,
		sanctions:     sanctions,
		systemAdminID: systemAdminID,
		suspension:    suspension,
		now:           time.Now,
	}
}

// Escalate suspends the member and appends the matching sanction record.
// detail describes what tripped the threshold and becomes part of the
// recorded reason, behind the automatic-action prefix.
//
// Members already suspended or permanently exited are left untouched and no
// record is written. A lost race against a concurrent status change is also
// a no-op, not an error.
func (e *Escalator) Escalate(ctx context.Context, memberID int64, detail string) error {
	m, err := e.members.GetByID(ctx, memberID)
	if err != nil {
		metrics.EscalationErrors.Inc()
		return fmt.Errorf("failed to load member %d for escalation: %w", memberID, err)
	}

	switch m.Status {
	case member.StatusStop:
		logging.Debug().Int64("member_id", memberID).Msg("Escalation skipped: member already suspended")
		return nil
	case member.StatusExit:
		logging.Debug().Int64("member_id", memberID).Msg("Escalation skipped: member exited")
		return nil
	}

	if err := e.members.TransitionStatus(ctx, memberID, member.StatusActive, member.StatusStop); err != nil {
		if errors.Is(err, member.ErrStatusConflict) {
			logging.Debug().Int64("member_id", memberID).Msg("Escalation skipped: status changed concurrently")
			return nil
		}
		metrics.EscalationErrors.Inc()
		return fmt.Errorf("failed to suspend member %d: %w", memberID, err)
	}

	until := e.now().Add(e.suspension)
	record := &Record{
		MemberID:      memberID,
		AdminID:       e.systemAdminID,
		Type:          TypeAutoTemporarySuspension,
		BeforeStatus:  member.StatusActive,
		AfterStatus:   member.StatusStop,
		Reason:        AutoReasonPrefix + detail,
		SanctionUntil: &until,
	}
	if err := e.sanctions.Create(ctx, record); err != nil {
		metrics.EscalationErrors.Inc()
		// Without a record the release sweep can never find this
		// suspension, so undo the status change and let the next
		// threshold crossing retry the whole escalation.
		if rbErr := e.members.TransitionStatus(ctx, memberID, member.StatusStop, member.StatusActive); rbErr != nil {
			logging.Error().Err(rbErr).Int64("member_id", memberID).
				Msg("Failed to roll back suspension after record write failure")
		}
		return fmt.Errorf("failed to record suspension for member %d: %w", memberID, err)
	}

	metrics.EscalationsTotal.Inc()
	logging.Warn().
		Int64("member_id", memberID).
		Str("login_id", m.LoginID).
		Time("sanction_until", until).
		Str("detail", detail).
		Msg("Member automatically suspended")
	return nil
}
