// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/geogate/internal/metrics"
)

// DuckDBStore implements Store using DuckDB as the backend storage.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a new DuckDB-backed member store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// InitSchema creates the member table if it doesn't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS member_id_seq`,

		`CREATE TABLE IF NOT EXISTS members (
			id BIGINT PRIMARY KEY DEFAULT nextval('member_id_seq'),
			login_id TEXT NOT NULL UNIQUE,
			nickname TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_members_status ON members(status)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute member schema query: %w", err)
		}
	}
	return nil
}

const memberSelectColumns = `id, login_id, COALESCE(nickname, ''), status, created_at, updated_at`

func scanMember(row *sql.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.LoginID, &m.Nickname, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	return &m, nil
}

// GetByID retrieves a member by id.
func (s *DuckDBStore) GetByID(ctx context.Context, id int64) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberSelectColumns+` FROM members WHERE id = ?`, id)
	return scanMember(row)
}

// GetByLogin retrieves a member by login id.
func (s *DuckDBStore) GetByLogin(ctx context.Context, loginID string) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberSelectColumns+` FROM members WHERE login_id = ?`, loginID)
	return scanMember(row)
}

// Create inserts a new member.
func (s *DuckDBStore) Create(ctx context.Context, loginID, nickname string, status Status) (*Member, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid member status %q", status)
	}

	// RETURNING because DuckDB doesn't support LastInsertId with sequences.
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO members (login_id, nickname, status) VALUES (?, ?, ?)
		 RETURNING `+memberSelectColumns,
		loginID, nickname, status)
	m, err := scanMember(row)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("member", "create").Inc()
		return nil, fmt.Errorf("failed to create member %s: %w", loginID, err)
	}
	return m, nil
}

// TransitionStatus atomically moves a member between statuses. The expected
// current status is part of the UPDATE predicate, so a concurrent change
// surfaces as zero affected rows rather than a silent overwrite.
func (s *DuckDBStore) TransitionStatus(ctx context.Context, id int64, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal member status transition %s -> %s", from, to)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		to, id, from)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("member", "transition").Inc()
		return fmt.Errorf("failed to transition member %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Either the member is missing or its status moved under us.
		if _, err := s.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}
