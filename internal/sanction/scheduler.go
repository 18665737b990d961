// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package sanction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/member"
	"github.com/tomtom215/geogate/internal/metrics"
)

// sweepBatchSize caps how many expired suspensions one sweep pass loads.
// Anything left over is picked up on the next tick.
const sweepBatchSize = 500

// Lease serializes sweep execution across processes. Only the holder runs a
// sweep; everyone else skips the tick and tries again next time.
type Lease interface {
	// TryAcquire attempts to take the lease for ttl. Returns false without
	// error when another holder is active.
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)

	// Release gives the lease up early. Best effort; the TTL reclaims it
	// anyway.
	Release(ctx context.Context) error
}

// ReleaseScheduler periodically restores members whose automatic suspension
// window has elapsed. Members an admin touched after the suspension (manual
// restore, exit, a fresh manual stop) are left alone: a later sanction
// record or a non-STOP status both mean the automatic action was superseded.
type ReleaseScheduler struct {
	members   member.Store
	sanctions Store
	lease     Lease

	systemAdminID int64
	cfg           config.SchedulerConfig
	logger        zerolog.Logger
	now           func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReleaseScheduler creates a release scheduler. lease may be nil when the
// deployment runs a single instance.
func NewReleaseScheduler(
	members member.Store,
	sanctions Store,
	lease Lease,
	systemAdminID int64,
	logger *zerolog.Logger,
	cfg config.SchedulerConfig,
) *ReleaseScheduler {
	if cfg.ReleaseInterval <= 0 {
		cfg.ReleaseInterval = time.Hour
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 10 * time.Second
	}

	return &ReleaseScheduler{
		members:       members,
		sanctions:     sanctions,
		lease:         lease,
		systemAdminID: systemAdminID,
		cfg:           cfg,
		logger:        logger.With().Str("component", "release-scheduler").Logger(),
		now:           time.Now,
	}
}

// Start begins the sweep loop.
func (s *ReleaseScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("release scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.cfg.ReleaseInterval).
		Dur("offset", s.cfg.ReleaseOffset).
		Msg("Starting release scheduler")

	go s.run(ctx)
	return nil
}

// Stop stops the sweep loop and waits for it to complete.
func (s *ReleaseScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Release scheduler stopped")
	return nil
}

// Serve runs the scheduler under a supervisor: start, block until the
// context is cancelled, stop.
func (s *ReleaseScheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *ReleaseScheduler) String() string { return "release-scheduler" }

// run is the main sweep loop.
func (s *ReleaseScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.ReleaseInterval)
	defer ticker.Stop()

	// Run immediately on start so a restart doesn't push releases a full
	// interval into the future.
	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one release pass. Exported so operators can trigger it from the
// ops API without waiting for the next tick.
func (s *ReleaseScheduler) Sweep(ctx context.Context) {
	if s.lease != nil {
		acquired, err := s.lease.TryAcquire(ctx, s.cfg.ReleaseInterval)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to acquire sweep lease")
			return
		}
		if !acquired {
			s.logger.Debug().Msg("Sweep lease held elsewhere, skipping tick")
			return
		}
		defer func() {
			if err := s.lease.Release(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to release sweep lease")
			}
		}()
	}

	started := s.now()
	metrics.SweepRuns.Inc()

	// The offset keeps a suspension that expired a moment ago out of this
	// pass, so a release never lands inside the same evaluation that
	// triggered the suspension.
	cutoff := started.Add(-s.cfg.ReleaseOffset)
	expired, err := s.sanctions.ListExpiredUnresolved(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list expired suspensions")
		return
	}
	if len(expired) == 0 {
		s.logger.Debug().Msg("No expired suspensions to release")
		return
	}

	var restored, skipped, failed int
	for i := range expired {
		switch err := s.releaseOne(ctx, &expired[i]); {
		case err == nil:
			restored++
		case errors.Is(err, errReleaseSkipped):
			skipped++
		default:
			failed++
			s.logger.Error().Err(err).
				Int64("member_id", expired[i].MemberID).
				Str("record_id", expired[i].ID).
				Msg("Failed to release member")
		}

		select {
		case <-ctx.Done():
			s.logger.Warn().Msg("Sweep interrupted by shutdown")
			return
		default:
		}
	}

	metrics.SweepRestored.Add(float64(restored))
	metrics.SweepSkipped.Add(float64(skipped))
	metrics.SweepDuration.Observe(time.Since(started).Seconds())

	s.logger.Info().
		Int("expired", len(expired)).
		Int("restored", restored).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("duration", time.Since(started)).
		Msg("Release sweep completed")
}

// errReleaseSkipped marks members the sweep deliberately left untouched.
var errReleaseSkipped = errors.New("release skipped")

// releaseOne restores a single member from an expired suspension.
func (s *ReleaseScheduler) releaseOne(ctx context.Context, rec *Record) error {
	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	m, err := s.members.GetByID(itemCtx, rec.MemberID)
	if errors.Is(err, member.ErrNotFound) {
		s.logger.Warn().Int64("member_id", rec.MemberID).
			Msg("Suspended member no longer exists, skipping release")
		return errReleaseSkipped
	}
	if err != nil {
		return fmt.Errorf("failed to load member %d: %w", rec.MemberID, err)
	}

	if m.Status != member.StatusStop {
		// An admin action always leaves its own record, which would have
		// kept this suspension out of the expired list. Being listed while
		// already ACTIVE means a previous sweep restored the member but
		// lost the ledger write; backfill it so the record stops surfacing.
		if m.Status == member.StatusActive {
			restore := &Record{
				MemberID:     rec.MemberID,
				AdminID:      s.systemAdminID,
				Type:         TypeRestore,
				BeforeStatus: member.StatusStop,
				AfterStatus:  member.StatusActive,
				Reason:       AutoReasonPrefix + "정지 기간 만료 자동 해제",
			}
			if err := s.sanctions.Create(itemCtx, restore); err != nil {
				return fmt.Errorf("failed to backfill release record for member %d: %w", rec.MemberID, err)
			}
		}
		s.logger.Debug().Int64("member_id", rec.MemberID).
			Str("status", string(m.Status)).
			Msg("Member not suspended anymore, skipping release")
		return errReleaseSkipped
	}

	if err := s.members.TransitionStatus(itemCtx, rec.MemberID, member.StatusStop, member.StatusActive); err != nil {
		if errors.Is(err, member.ErrStatusConflict) {
			return errReleaseSkipped
		}
		return fmt.Errorf("failed to restore member %d: %w", rec.MemberID, err)
	}

	restore := &Record{
		MemberID:     rec.MemberID,
		AdminID:      s.systemAdminID,
		Type:         TypeRestore,
		BeforeStatus: member.StatusStop,
		AfterStatus:  member.StatusActive,
		Reason:       AutoReasonPrefix + "정지 기간 만료 자동 해제",
	}
	if err := s.sanctions.Create(itemCtx, restore); err != nil {
		// The member is already ACTIVE, which is the state that matters.
		// The missing ledger entry keeps the suspension in the expired
		// list, so the next sweep backfills it.
		return fmt.Errorf("failed to record release for member %d: %w", rec.MemberID, err)
	}

	s.logger.Info().
		Int64("member_id", rec.MemberID).
		Str("login_id", m.LoginID).
		Str("suspension_record", rec.ID).
		Msg("Member restored after suspension expiry")
	return nil
}

// IsRunning returns whether the scheduler loop is active.
func (s *ReleaseScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
