// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package sanction

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/geogate/internal/member"
)

func newTestStores(t *testing.T) (*member.DuckDBStore, *DuckDBStore) {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open in-memory duckdb: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	members := member.NewDuckDBStore(db)
	if err := members.InitSchema(ctx); err != nil {
		t.Fatalf("failed to init member schema: %v", err)
	}
	sanctions := NewDuckDBStore(db)
	if err := sanctions.InitSchema(ctx); err != nil {
		t.Fatalf("failed to init sanction schema: %v", err)
	}
	return members, sanctions
}

func autoRecord(memberID int64, createdAt, until time.Time) *Record {
	return &Record{
		MemberID:      memberID,
		AdminID:       1,
		Type:          TypeAutoTemporarySuspension,
		BeforeStatus:  member.StatusActive,
		AfterStatus:   member.StatusStop,
		Reason:        AutoReasonPrefix + "test",
		SanctionUntil: &until,
		CreatedAt:     createdAt,
	}
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	rec := &Record{
		MemberID:      7,
		AdminID:       1,
		Type:          TypeAutoTemporarySuspension,
		BeforeStatus:  member.StatusActive,
		AfterStatus:   member.StatusStop,
		Reason:        AutoReasonPrefix + "test",
		SanctionUntil: &until,
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected assigned record id")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected assigned created_at")
	}
}

func TestCreateAutoRequiresSanctionUntil(t *testing.T) {
	_, store := newTestStores(t)

	rec := &Record{
		MemberID:     7,
		AdminID:      1,
		Type:         TypeAutoTemporarySuspension,
		BeforeStatus: member.StatusActive,
		AfterStatus:  member.StatusStop,
		Reason:       AutoReasonPrefix + "test",
	}
	if err := store.Create(context.Background(), rec); err == nil {
		t.Fatal("expected error for automatic record without sanction_until")
	}
}

func TestListExpiredUnresolved(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Expired and untouched since: must be returned.
	if err := store.Create(ctx, autoRecord(1, now.Add(-3*time.Hour), now.Add(-time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Expired but superseded by a later manual restore: must not be returned.
	if err := store.Create(ctx, autoRecord(2, now.Add(-3*time.Hour), now.Add(-time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, &Record{
		MemberID:     2,
		AdminID:      9,
		Type:         TypeRestore,
		BeforeStatus: member.StatusStop,
		AfterStatus:  member.StatusActive,
		Reason:       "manual restore",
		CreatedAt:    now.Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Not yet expired: must not be returned.
	if err := store.Create(ctx, autoRecord(3, now.Add(-time.Hour), now.Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	expired, err := store.ListExpiredUnresolved(ctx, now, 100)
	if err != nil {
		t.Fatalf("ListExpiredUnresolved: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired record, got %d", len(expired))
	}
	if expired[0].MemberID != 1 {
		t.Errorf("expected member 1, got %d", expired[0].MemberID)
	}
	if expired[0].SanctionUntil == nil {
		t.Error("expected sanction_until on returned record")
	}
}

func TestListExpiredUnresolvedRespectsLimit(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := int64(1); i <= 5; i++ {
		if err := store.Create(ctx, autoRecord(i, now.Add(-3*time.Hour), now.Add(-time.Hour))); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	expired, err := store.ListExpiredUnresolved(ctx, now, 3)
	if err != nil {
		t.Fatalf("ListExpiredUnresolved: %v", err)
	}
	if len(expired) != 3 {
		t.Fatalf("expected 3 records with limit 3, got %d", len(expired))
	}
}

func TestQueryFilters(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, autoRecord(1, now.Add(-2*time.Hour), now.Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, &Record{
		MemberID:     1,
		AdminID:      9,
		Type:         TypeRestore,
		BeforeStatus: member.StatusStop,
		AfterStatus:  member.StatusActive,
		Reason:       "manual restore",
		CreatedAt:    now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, &Record{
		MemberID:     2,
		AdminID:      9,
		Type:         TypeExit,
		BeforeStatus: member.StatusActive,
		AfterStatus:  member.StatusExit,
		Reason:       "account closure",
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	memberID := int64(1)
	byMember, err := store.Query(ctx, Filter{MemberID: &memberID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byMember) != 2 {
		t.Fatalf("expected 2 records for member 1, got %d", len(byMember))
	}
	// Newest first.
	if byMember[0].Type != TypeRestore {
		t.Errorf("expected newest record first, got %s", byMember[0].Type)
	}

	typ := TypeExit
	byType, err := store.Query(ctx, Filter{Type: &typ})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byType) != 1 || byType[0].MemberID != 2 {
		t.Fatalf("expected single EXIT record for member 2, got %+v", byType)
	}

	all, err := store.Query(ctx, Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records with limit/offset, got %d", len(all))
	}
}

func TestAutomaticHelper(t *testing.T) {
	rec := Record{Type: TypeAutoTemporarySuspension}
	if !rec.Automatic() {
		t.Error("expected automatic suspension to report Automatic")
	}
	for _, typ := range []Type{TypeStop, TypeRestore, TypeExit} {
		rec := Record{Type: typ}
		if rec.Automatic() {
			t.Errorf("expected %s not to report Automatic", typ)
		}
	}
}

func TestAutoReasonPrefix(t *testing.T) {
	// Admin tooling keys off this prefix to distinguish automatic entries.
	if !strings.HasPrefix(AutoReasonPrefix+"detail", "자동 제재: ") {
		t.Error("automatic reason prefix changed")
	}
}
