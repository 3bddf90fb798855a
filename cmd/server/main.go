// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Command server runs the synchronization service: the scheduler polling
// all configured connections and the admin API on one supervision tree.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/JanDamek/jervis-sub013/internal/api"
	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/database"
	"github.com/JanDamek/jervis-sub013/internal/logging"
	"github.com/JanDamek/jervis-sub013/internal/provider"
	"github.com/JanDamek/jervis-sub013/internal/publisher"
	"github.com/JanDamek/jervis-sub013/internal/scheduler"
	"github.com/JanDamek/jervis-sub013/internal/store"
	"github.com/JanDamek/jervis-sub013/internal/supervisor"
	"github.com/JanDamek/jervis-sub013/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Msg("Starting Jervis sync service")

	// Metadata store: connections, scopes, cursors, escalations.
	kv, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Warn().Err(err).Msg("Metadata store close failed")
		}
	}()

	cursors := store.NewCursorStore(kv)
	connections := store.NewConnectionStore(kv, cursors)
	scopes := store.NewScopeStore(kv)
	escalations := store.NewEscalationStore(kv)

	// Item store: discovered provider documents.
	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Item store close failed")
		}
	}()

	natsPub, err := publisher.New(cfg.NATS)
	if err != nil {
		return err
	}
	defer natsPub.Close()

	var events syncer.EventPublisher
	if natsPub != nil {
		events = natsPub
	}

	// Provider integrations register here as they ship. An empty registry
	// is valid: connections without an integration are skipped with a
	// warning.
	registry := provider.NewRegistry()

	engine := syncer.NewEngine(cursors, db, events)
	handlers := syncer.NewHandlerSet(syncer.DefaultHandlers()...)
	resolver := syncer.NewResolver(scopes)

	sched := scheduler.New(
		cfg.Scheduler,
		cfg.Provider,
		connections,
		escalations,
		scopes,
		resolver,
		engine,
		handlers,
		registry,
	)

	router := api.NewRouter(connections, sched, sched.State(), escalations, db, cfg.Server.RateLimitReqs)
	server := api.NewServer(cfg.Server, router)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(sched)
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within shutdown timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
