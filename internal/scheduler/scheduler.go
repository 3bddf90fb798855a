// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package scheduler drives the periodic sync cycle: a fixed tick fans out
// one goroutine per eligible connection, each poll running the capability
// handlers through the sync engine. Connections whose previous poll is
// still in flight are skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/logging"
	"github.com/JanDamek/jervis-sub013/internal/metrics"
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/provider"
	"github.com/JanDamek/jervis-sub013/internal/syncer"
)

// ErrPollInFlight is returned by TriggerConnection when the connection is
// already being polled.
var ErrPollInFlight = errors.New("poll already in flight for connection")

// ErrConnectionUnknown is returned by TriggerConnection for an id that does
// not exist.
var ErrConnectionUnknown = errors.New("connection not found")

// ConnectionSource is the slice of the connection store the scheduler uses.
type ConnectionSource interface {
	ListValid(ctx context.Context) ([]*models.Connection, error)
	Get(ctx context.Context, id string) (*models.Connection, error)
	SetState(ctx context.Context, id string, state models.HealthState) (models.HealthState, error)
}

// EscalationSink records escalations for connections gone invalid.
type EscalationSink interface {
	Create(ctx context.Context, clientID, connectionID, reason string) (*models.Escalation, error)
}

// ClientLookup resolves which client scopes an escalation is addressed to.
type ClientLookup interface {
	ClientsForConnection(ctx context.Context, connectionID string) ([]*models.ClientScope, error)
}

// Scheduler owns the poll loop. It implements suture.Service.
type Scheduler struct {
	cfg         config.SchedulerConfig
	providerCfg config.ProviderConfig

	connections ConnectionSource
	escalations EscalationSink
	clients     ClientLookup
	resolver    *syncer.Resolver
	engine      *syncer.Engine
	handlers    *syncer.HandlerSet
	registry    *provider.Registry

	state *State
	now   func() time.Time
}

// New creates the scheduler.
func New(
	cfg config.SchedulerConfig,
	providerCfg config.ProviderConfig,
	connections ConnectionSource,
	escalations EscalationSink,
	clients ClientLookup,
	resolver *syncer.Resolver,
	engine *syncer.Engine,
	handlers *syncer.HandlerSet,
	registry *provider.Registry,
) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		providerCfg: providerCfg,
		connections: connections,
		escalations: escalations,
		clients:     clients,
		resolver:    resolver,
		engine:      engine,
		handlers:    handlers,
		registry:    registry,
		state:       NewState(),
		now:         time.Now,
	}
}

// State exposes the scheduler's poll state for the admin API.
func (s *Scheduler) State() *State {
	return s.state
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string {
	return "sync-scheduler"
}

// Serve implements suture.Service: wait out the startup delay, then run one
// cycle per tick until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("tick", s.cfg.Tick).
		Dur("startup_delay", s.cfg.StartupDelay).
		Dur("default_interval", s.cfg.DefaultInterval).
		Msg("Scheduler starting")

	select {
	case <-time.After(s.cfg.StartupDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunCycle executes one scheduling pass: select eligible connections, fan
// out their polls and wait for all of them. A panic in any poll goroutine
// is recovered and logged; the cycle itself never dies.
func (s *Scheduler) RunCycle(ctx context.Context) {
	start := s.now()

	conns, err := s.connections.ListValid(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list connections, cycle skipped")
		return
	}

	var wg sync.WaitGroup
	launched := 0

	for _, conn := range conns {
		due := s.dueCapabilities(conn, start)
		if len(due) == 0 {
			continue
		}

		if !s.state.TryAcquire(conn.ID) {
			metrics.LockSkips.Inc()
			logging.Debug().
				Str("connection_id", conn.ID).
				Msg("Previous poll still in flight, skipping")
			continue
		}

		launched++
		wg.Add(1)
		go func(conn *models.Connection, due []models.Capability) {
			defer wg.Done()
			defer s.state.Release(conn.ID)
			defer func() {
				if r := recover(); r != nil {
					logging.Error().
						Str("connection_id", conn.ID).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("Poll goroutine panicked")
				}
			}()
			s.pollConnection(ctx, conn, due)
		}(conn, due)
	}

	wg.Wait()

	elapsed := s.now().Sub(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	if launched > 0 {
		logging.Info().
			Int("connections_polled", launched).
			Dur("duration", elapsed).
			Msg("Scheduler cycle completed")
	}
}

// TriggerConnection polls one connection immediately, bypassing interval
// gating. Used by the admin API. Returns ErrPollInFlight when the
// scheduler already holds the connection.
func (s *Scheduler) TriggerConnection(ctx context.Context, connectionID string) (*models.PollOutcome, error) {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionUnknown, connectionID)
	}

	if !s.state.TryAcquire(conn.ID) {
		return nil, ErrPollInFlight
	}
	defer s.state.Release(conn.ID)

	caps := conn.PollableCapabilities()
	if len(caps) == 0 {
		return &models.PollOutcome{ConnectionID: conn.ID, StartedAt: s.now()}, nil
	}
	return s.pollConnection(ctx, conn, caps), nil
}

// dueCapabilities returns the pollable capabilities of the connection whose
// interval has elapsed. Each capability is gated on its own interval, with
// the configured default as fallback.
func (s *Scheduler) dueCapabilities(conn *models.Connection, now time.Time) []models.Capability {
	var due []models.Capability
	for _, capability := range conn.PollableCapabilities() {
		interval := s.cfg.IntervalFor(string(capability))
		if s.state.Due(conn.ID, capability, interval, now) {
			due = append(due, capability)
		}
	}
	return due
}

// pollConnection runs every due capability's handlers against the
// connection and handles auth failures: one refresh-and-retry when the
// credentials are refreshable, escalation when the connection stays
// rejected.
func (s *Scheduler) pollConnection(ctx context.Context, conn *models.Connection, caps []models.Capability) *models.PollOutcome {
	started := s.now()
	outcome := s.pollOnce(ctx, conn, caps)

	if outcome.AuthFailure && conn.AuthType.Refreshable() {
		if refreshed := s.refreshToken(ctx, conn); refreshed != nil {
			logging.Info().
				Str("connection_id", conn.ID).
				Msg("Token refreshed, retrying poll")
			retry := s.pollOnce(ctx, refreshed, caps)
			retry.StartedAt = started
			outcome = retry
		}
	}

	outcome.StartedAt = started
	outcome.Duration = s.now().Sub(started)
	metrics.ObservePoll(outcome.Duration, outcome.Failed(), outcome.AuthFailure)
	s.state.RecordOutcome(outcome)

	if outcome.AuthFailure {
		s.escalate(ctx, conn)
	}

	logging.Info().
		Str("connection_id", conn.ID).
		Int("discovered", outcome.Discovered).
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("skipped", outcome.Skipped).
		Int("errors", outcome.Errors).
		Bool("auth_failure", outcome.AuthFailure).
		Dur("duration", outcome.Duration).
		Msg("Poll finished")

	return outcome
}

// pollOnce executes one pass over the capabilities without refresh or
// escalation handling.
func (s *Scheduler) pollOnce(ctx context.Context, conn *models.Connection, caps []models.Capability) *models.PollOutcome {
	outcome := &models.PollOutcome{ConnectionID: conn.ID}
	now := s.now()

	client, registered, err := s.registry.ClientFor(conn)
	if !registered {
		// A missing provider integration is a deployment gap, not a
		// connection health problem.
		logging.Warn().
			Str("connection_id", conn.ID).
			Str("provider", conn.Provider).
			Msg("No provider client registered, connection skipped")
		for _, capability := range caps {
			s.state.MarkPolled(conn.ID, capability, now)
		}
		return outcome
	}
	if err != nil {
		logging.Error().Err(err).
			Str("connection_id", conn.ID).
			Str("provider", conn.Provider).
			Msg("Provider client construction failed")
		outcome.Errors++
		return outcome
	}

	client = s.wrapClient(conn.ID, client)

	for _, capability := range caps {
		s.state.MarkPolled(conn.ID, capability, now)

		filter, err := s.resolver.ResolveConnection(ctx, conn.ID, capability)
		if err != nil {
			logging.Error().Err(err).
				Str("connection_id", conn.ID).
				Str("capability", string(capability)).
				Msg("Scope resolution failed")
			outcome.Errors++
			continue
		}
		if filter.Mode == models.FilterDisabled || filter.Empty() {
			continue
		}

		for _, h := range s.handlers.ForCapability(capability) {
			outcome.Merge(s.engine.RunHandler(ctx, conn, h, filter, client))
		}
	}
	return outcome
}

func (s *Scheduler) wrapClient(connectionID string, client provider.Client) provider.Client {
	if s.providerCfg.BreakerEnabled {
		client = provider.NewBreakerClient(connectionID, client)
	}
	return provider.NewRateLimitedClient(client, s.providerCfg.RatePerSecond, s.providerCfg.RateBurst)
}

// refreshToken attempts a credential refresh and, on success, re-reads the
// connection so the retry uses the renewed token. Returns nil when no
// refresh happened.
func (s *Scheduler) refreshToken(ctx context.Context, conn *models.Connection) *models.Connection {
	client, registered, err := s.registry.ClientFor(conn)
	if !registered || err != nil {
		return nil
	}
	refresher, ok := client.(provider.TokenRefresher)
	if !ok {
		return nil
	}

	if err := refresher.RefreshToken(ctx, conn); err != nil {
		logging.Warn().Err(err).
			Str("connection_id", conn.ID).
			Msg("Token refresh failed")
		return nil
	}

	refreshed, err := s.connections.Get(ctx, conn.ID)
	if err != nil {
		logging.Error().Err(err).
			Str("connection_id", conn.ID).
			Msg("Failed to re-read connection after refresh")
		return nil
	}
	return refreshed
}

// escalate flips the connection to INVALID and creates one escalation per
// affected client. The previous-state check makes the escalation fire
// exactly once per VALID to INVALID transition; repeated auth failures on
// an already invalid connection are silent.
func (s *Scheduler) escalate(ctx context.Context, conn *models.Connection) {
	previous, err := s.connections.SetState(ctx, conn.ID, models.HealthInvalid)
	if err != nil {
		logging.Error().Err(err).
			Str("connection_id", conn.ID).
			Msg("Failed to mark connection invalid")
		return
	}
	if previous == models.HealthInvalid {
		return
	}

	metrics.ConnectionsInvalid.Inc()
	logging.Warn().
		Str("connection_id", conn.ID).
		Msg("Connection marked INVALID after authentication failure")

	clients, err := s.clients.ClientsForConnection(ctx, conn.ID)
	if err != nil {
		logging.Error().Err(err).
			Str("connection_id", conn.ID).
			Msg("Failed to resolve clients for escalation")
		return
	}

	if len(clients) == 0 {
		logging.Warn().
			Str("connection_id", conn.ID).
			Msg("No client scope uses this connection, escalation skipped")
		return
	}

	reason := fmt.Sprintf("authentication failed for connection %s (%s)", conn.Name, conn.Provider)
	if conn.Name == "" {
		reason = fmt.Sprintf("authentication failed for connection %s", conn.ID)
	}

	for _, client := range clients {
		if _, err := s.escalations.Create(ctx, client.ID, conn.ID, reason); err != nil {
			logging.Error().Err(err).
				Str("connection_id", conn.ID).
				Str("client_id", client.ID).
				Msg("Failed to create escalation")
			continue
		}
		metrics.Escalations.Inc()
	}
}
