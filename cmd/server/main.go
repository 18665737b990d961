// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package main is the entry point for the Geogate server.
//
// Geogate watches time/location-gated content unlocks for abuse: it
// classifies each attempt against the member's previous location report,
// accumulates suspicion, suspends members who cross the limit threshold,
// and releases expired suspensions on a schedule.
//
// Startup order:
//
//  1. Configuration: koanf layering (defaults -> YAML file -> GEOGATE_* env)
//  2. Logging: global zerolog per the configured level/format
//  3. DuckDB: member and sanction stores, schema init
//  4. Badger: suspicion scores, rate-limit cooldowns, sweep lease
//  5. System-admin bootstrap check (fatal if the reserved account is absent)
//  6. Supervisor tree: release scheduler + ops HTTP server
//
// Shutdown is graceful on SIGINT/SIGTERM: the supervisor stops its services,
// then the stores are closed.
package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/geogate/internal/api"
	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/member"
	"github.com/tomtom215/geogate/internal/sanction"
	"github.com/tomtom215/geogate/internal/supervisor"
	"github.com/tomtom215/geogate/internal/suspicion"
	"github.com/tomtom215/geogate/internal/unlock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Msg("Starting Geogate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DuckDB holds members and the sanction ledger.
	db, err := sql.Open("duckdb", cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	members := member.NewDuckDBStore(db)
	if err := members.InitSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize member schema")
	}
	sanctions := sanction.NewDuckDBStore(db)
	if err := sanctions.InitSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize sanction schema")
	}

	// Badger holds suspicion scores, cooldowns and the sweep lease.
	stateOpts := badger.DefaultOptions(cfg.State.Path).WithLogger(nil)
	if cfg.State.InMemory {
		stateOpts = stateOpts.WithInMemory(true)
	}
	state, err := badger.Open(stateOpts)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.State.Path).Msg("Failed to open state store")
	}
	defer func() {
		if err := state.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close state store")
		}
	}()

	// Automated actions are attributed to the reserved system-admin account.
	// Its absence is a deployment error, not something to limp along with.
	sysAdmin, err := members.GetByLogin(ctx, cfg.Monitoring.SystemAdminLogin)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			logging.Fatal().
				Str("login_id", cfg.Monitoring.SystemAdminLogin).
				Msg("System admin account does not exist; create it before starting")
		}
		logging.Fatal().Err(err).Msg("Failed to resolve system admin account")
	}
	logging.Info().Int64("admin_id", sysAdmin.ID).Msg("System admin resolved")

	guarded := sanction.NewBreakerStore(sanctions)
	escalator := sanction.NewEscalator(members, guarded, sysAdmin.ID, cfg.Monitoring.SuspensionDuration)
	scores := suspicion.NewScoreStore(state, cfg.Monitoring.SuspicionTTL)
	limiter := suspicion.NewRateLimiter(state, cfg.RateLimit)
	evaluator := unlock.NewEvaluator(scores, limiter, escalator, cfg.Monitoring, cfg.AnomalyDetection)

	logger := logging.Logger()
	scheduler := sanction.NewReleaseScheduler(
		members,
		sanctions,
		suspicion.NewSweepLease(state, "release-sweep"),
		sysAdmin.ID,
		&logger,
		cfg.Scheduler,
	)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddJobService(scheduler)
	tree.AddAPIService(api.NewServer(cfg.Server, guarded, evaluator))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Geogate stopped gracefully")
}
