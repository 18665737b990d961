// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package sanction

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/geogate/internal/metrics"
)

// DuckDBStore implements Store using DuckDB as the backend storage.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a new DuckDB-backed sanction store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// InitSchema creates the sanction table if it doesn't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS member_sanctions (
			id TEXT PRIMARY KEY,
			member_id BIGINT NOT NULL,
			admin_id BIGINT NOT NULL,
			sanction_type TEXT NOT NULL,
			before_status TEXT NOT NULL,
			after_status TEXT NOT NULL,
			reason TEXT NOT NULL,
			sanction_until TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sanctions_member
			ON member_sanctions(member_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_sanctions_until
			ON member_sanctions(sanction_type, sanction_until)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute sanction schema query: %w", err)
		}
	}
	return nil
}

const sanctionSelectColumns = `id, member_id, admin_id, sanction_type,
	before_status, after_status, reason, sanction_until, created_at`

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var until sql.NullTime
	err := rows.Scan(&r.ID, &r.MemberID, &r.AdminID, &r.Type,
		&r.BeforeStatus, &r.AfterStatus, &r.Reason, &until, &r.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to scan sanction record: %w", err)
	}
	if until.Valid {
		t := until.Time
		r.SanctionUntil = &t
	}
	return r, nil
}

// Create appends a new sanction record. The ledger is append-only; there is
// no update or delete path.
func (s *DuckDBStore) Create(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Type == TypeAutoTemporarySuspension && record.SanctionUntil == nil {
		return fmt.Errorf("automatic suspension record for member %d missing sanction_until", record.MemberID)
	}

	var until any
	if record.SanctionUntil != nil {
		until = record.SanctionUntil.UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO member_sanctions
			(id, member_id, admin_id, sanction_type, before_status, after_status, reason, sanction_until, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.MemberID, record.AdminID, record.Type,
		record.BeforeStatus, record.AfterStatus, record.Reason, until,
		record.CreatedAt.UTC())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("sanction", "create").Inc()
		return fmt.Errorf("failed to create sanction record for member %d: %w", record.MemberID, err)
	}
	return nil
}

// ListExpiredUnresolved returns automatic suspensions whose window has
// passed and which no later record for the same member supersedes. A later
// record of any type means an admin (or the release sweep itself) already
// acted after the suspension, so the sweep must leave the member alone.
func (s *DuckDBStore) ListExpiredUnresolved(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sanctionSelectColumns+`
		 FROM member_sanctions s
		 WHERE s.sanction_type = ?
		   AND s.sanction_until IS NOT NULL
		   AND s.sanction_until <= ?
		   AND NOT EXISTS (
			SELECT 1 FROM member_sanctions later
			WHERE later.member_id = s.member_id
			  AND later.created_at > s.created_at
		   )
		 ORDER BY s.sanction_until
		 LIMIT ?`,
		TypeAutoTemporarySuspension, now.UTC(), limit)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("sanction", "list_expired").Inc()
		return nil, fmt.Errorf("failed to list expired suspensions: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Query lists records matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	query := `SELECT ` + sanctionSelectColumns + ` FROM member_sanctions s WHERE 1=1`
	var args []any

	if filter.MemberID != nil {
		query += ` AND s.member_id = ?`
		args = append(args, *filter.MemberID)
	}
	if filter.Type != nil {
		query += ` AND s.sanction_type = ?`
		args = append(args, *filter.Type)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY s.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("sanction", "query").Inc()
		return nil, fmt.Errorf("failed to query sanction records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sanction records: %w", err)
	}
	return records, nil
}
