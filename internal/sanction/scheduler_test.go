// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package sanction

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/member"
)

func newTestScheduler(t *testing.T, members *member.DuckDBStore, sanctions Store, lease Lease) *ReleaseScheduler {
	t.Helper()
	logger := logging.NewTestLogger(io.Discard)
	return NewReleaseScheduler(members, sanctions, lease, testSystemAdminID, &logger, config.SchedulerConfig{
		ReleaseInterval: time.Hour,
		ReleaseOffset:   0,
		ItemTimeout:     5 * time.Second,
	})
}

// suspend escalates the member and backdates the suspension so it is already
// expired when the sweep runs.
func suspendExpired(t *testing.T, members *member.DuckDBStore, sanctions *DuckDBStore, m *member.Member) {
	t.Helper()
	ctx := context.Background()
	esc := NewEscalator(members, sanctions, testSystemAdminID, time.Hour)
	esc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	if err := esc.Escalate(ctx, m.ID, "backdated suspension"); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
}

func TestSweepRestoresExpiredSuspension(t *testing.T) {
	members, sanctions := newTestStores(t)
	ctx := context.Background()
	m := createTestMember(t, members, "alice", member.StatusActive)
	suspendExpired(t, members, sanctions, m)

	s := newTestScheduler(t, members, sanctions, nil)
	s.Sweep(ctx)

	got, err := members.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != member.StatusActive {
		t.Errorf("expected member restored, got %s", got.Status)
	}

	records, err := sanctions.Query(ctx, Filter{MemberID: &m.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected suspension + restore records, got %d", len(records))
	}
	if records[0].Type != TypeRestore {
		t.Errorf("expected newest record RESTORE, got %s", records[0].Type)
	}
	if records[0].AdminID != testSystemAdminID {
		t.Errorf("expected system admin attribution on release, got %d", records[0].AdminID)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	members, sanctions := newTestStores(t)
	ctx := context.Background()
	m := createTestMember(t, members, "bob", member.StatusActive)
	suspendExpired(t, members, sanctions, m)

	s := newTestScheduler(t, members, sanctions, nil)
	s.Sweep(ctx)
	s.Sweep(ctx)

	records, err := sanctions.Query(ctx, Filter{MemberID: &m.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected no duplicate restore records, got %d", len(records))
	}
}

func TestSweepSkipsManuallyTouchedMember(t *testing.T) {
	members, sanctions := newTestStores(t)
	ctx := context.Background()
	m := createTestMember(t, members, "carol", member.StatusActive)
	suspendExpired(t, members, sanctions, m)

	// Admin closes the account after the automatic suspension.
	if err := members.TransitionStatus(ctx, m.ID, member.StatusStop, member.StatusExit); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if err := sanctions.Create(ctx, &Record{
		MemberID:     m.ID,
		AdminID:      9,
		Type:         TypeExit,
		BeforeStatus: member.StatusStop,
		AfterStatus:  member.StatusExit,
		Reason:       "account closure",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s := newTestScheduler(t, members, sanctions, nil)
	s.Sweep(ctx)

	got, _ := members.GetByID(ctx, m.ID)
	if got.Status != member.StatusExit {
		t.Errorf("expected exited member untouched by sweep, got %s", got.Status)
	}
}

func TestSweepSkipsNotYetExpired(t *testing.T) {
	members, sanctions := newTestStores(t)
	ctx := context.Background()
	m := createTestMember(t, members, "dave", member.StatusActive)

	esc := NewEscalator(members, sanctions, testSystemAdminID, 72*time.Hour)
	if err := esc.Escalate(ctx, m.ID, "fresh suspension"); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	s := newTestScheduler(t, members, sanctions, nil)
	s.Sweep(ctx)

	got, _ := members.GetByID(ctx, m.ID)
	if got.Status != member.StatusStop {
		t.Errorf("expected fresh suspension untouched, got %s", got.Status)
	}
}

func TestSweepTolerantOfMissingMember(t *testing.T) {
	members, sanctions := newTestStores(t)
	ctx := context.Background()
	m := createTestMember(t, members, "erin", member.StatusActive)
	other := createTestMember(t, members, "frank", member.StatusActive)
	suspendExpired(t, members, sanctions, m)

	// A record can outlive its member; reference one that never existed.
	until := time.Now().Add(-time.Hour)
	if err := sanctions.Create(ctx, &Record{
		MemberID:      other.ID + 1000,
		AdminID:       testSystemAdminID,
		Type:          TypeAutoTemporarySuspension,
		BeforeStatus:  member.StatusActive,
		AfterStatus:   member.StatusStop,
		Reason:        AutoReasonPrefix + "orphan",
		SanctionUntil: &until,
		CreatedAt:     time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s := newTestScheduler(t, members, sanctions, nil)
	s.Sweep(ctx)

	// The orphan must not stop the real member from being restored.
	got, _ := members.GetByID(ctx, m.ID)
	if got.Status != member.StatusActive {
		t.Errorf("expected member restored despite orphan record, got %s", got.Status)
	}
}

// denyLease refuses acquisition, as if another instance holds the sweep.
type denyLease struct{ tried bool }

func (l *denyLease) TryAcquire(context.Context, time.Duration) (bool, error) {
	l.tried = true
	return false, nil
}
func (l *denyLease) Release(context.Context) error { return nil }

func TestSweepSkipsTickWithoutLease(t *testing.T) {
	members, sanctions := newTestStores(t)
	ctx := context.Background()
	m := createTestMember(t, members, "grace", member.StatusActive)
	suspendExpired(t, members, sanctions, m)

	lease := &denyLease{}
	s := newTestScheduler(t, members, sanctions, lease)
	s.Sweep(ctx)

	if !lease.tried {
		t.Fatal("expected lease acquisition attempt")
	}
	got, _ := members.GetByID(ctx, m.ID)
	if got.Status != member.StatusStop {
		t.Errorf("expected no release without lease, got %s", got.Status)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	members, sanctions := newTestStores(t)
	s := newTestScheduler(t, members, sanctions, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Error("expected scheduler running after Start")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("expected scheduler stopped after Stop")
	}
}
