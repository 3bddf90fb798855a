// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package api exposes the admin HTTP surface: connection listing, manual
// poll triggering, outcome and escalation inspection, health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/logging"
)

// Server wraps the HTTP server as a supervised service.
type Server struct {
	cfg    config.ServerConfig
	router *Router
}

// NewServer creates the admin API server.
func NewServer(cfg config.ServerConfig, router *Router) *Server {
	return &Server{cfg: cfg, router: router}
}

// String implements fmt.Stringer for suture logging.
func (s *Server) String() string {
	return "admin-api"
}

// Serve implements suture.Service: run the HTTP server until the context
// is canceled, then shut it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("Admin API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("Admin API shutdown was not graceful")
		}
		return ctx.Err()
	}
}
