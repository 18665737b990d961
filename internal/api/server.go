// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package api serves Geogate's HTTP surface: the evaluation endpoint the
// platform's unlock handlers call, plus health, metrics, and a read-only
// sanction listing for operators. End-user unlock traffic never terminates
// here; the platform forwards only the evaluation question.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/sanction"
	"github.com/tomtom215/geogate/internal/unlock"
)

// UnlockEvaluator is the evaluation pipeline behind POST /api/v1/evaluate.
type UnlockEvaluator interface {
	EvaluateUnlockAttempt(ctx context.Context, attempt unlock.Attempt) (unlock.Result, error)
}

// Server is the HTTP server.
type Server struct {
	cfg       config.ServerConfig
	sanctions sanction.Store
	evaluator UnlockEvaluator
	srv       *http.Server
}

// NewServer creates the server.
func NewServer(cfg config.ServerConfig, sanctions sanction.Store, evaluator UnlockEvaluator) *Server {
	s := &Server{cfg: cfg, sanctions: sanctions, evaluator: evaluator}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/sanctions", s.handleListSanctions)
	})

	return r
}

// Serve runs the server under a supervisor: listen, block until the context
// is cancelled, then shut down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return ctx.Err()
}

func (s *Server) String() string { return "http-server" }
