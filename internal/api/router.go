// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// ConnectionLister reads connection records for the listing endpoint.
type ConnectionLister interface {
	List(ctx context.Context) ([]*models.Connection, error)
}

// PollTrigger starts an immediate poll of one connection.
type PollTrigger interface {
	TriggerConnection(ctx context.Context, connectionID string) (*models.PollOutcome, error)
}

// OutcomeSource snapshots the latest poll outcomes.
type OutcomeSource interface {
	Outcomes() []*models.PollOutcome
}

// EscalationLister reads escalation records.
type EscalationLister interface {
	List(ctx context.Context) ([]*models.Escalation, error)
}

// Pinger checks item store connectivity for the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router wires the admin endpoints.
type Router struct {
	connections   ConnectionLister
	trigger       PollTrigger
	outcomes      OutcomeSource
	escalations   EscalationLister
	db            Pinger
	rateLimitReqs int
}

// NewRouter creates the router. rateLimitReqs is the per-IP request budget
// per minute.
func NewRouter(connections ConnectionLister, trigger PollTrigger, outcomes OutcomeSource, escalations EscalationLister, db Pinger, rateLimitReqs int) *Router {
	if rateLimitReqs <= 0 {
		rateLimitReqs = 120
	}
	return &Router{
		connections:   connections,
		trigger:       trigger,
		outcomes:      outcomes,
		escalations:   escalations,
		db:            db,
		rateLimitReqs: rateLimitReqs,
	}
}

// Handler builds the chi handler tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", rt.handleHealth)
	r.Get("/readyz", rt.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.rateLimitReqs, time.Minute))

		r.Get("/connections", rt.handleListConnections)
		r.Post("/connections/{id}/poll", rt.handleTriggerPoll)
		r.Get("/outcomes", rt.handleOutcomes)
		r.Get("/escalations", rt.handleEscalations)
	})

	return r
}
