// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/JanDamek/jervis-sub013/internal/logging"
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/scheduler"
)

// connectionView is the redacted wire form of a connection; credentials
// never leave the process.
type connectionView struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Provider     string              `json:"provider"`
	Capabilities []models.Capability `json:"capabilities"`
	AuthType     models.AuthType     `json:"auth_type"`
	BaseURL      string              `json:"base_url"`
	State        models.HealthState  `json:"state"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := rt.db.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "item store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := rt.connections.List(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list connections")
		writeError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}

	views := make([]connectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, connectionView{
			ID:           c.ID,
			Name:         c.Name,
			Provider:     c.Provider,
			Capabilities: c.Capabilities,
			AuthType:     c.AuthType,
			BaseURL:      c.BaseURL,
			State:        c.State,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (rt *Router) handleTriggerPoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	outcome, err := rt.trigger.TriggerConnection(r.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrConnectionUnknown):
		writeError(w, http.StatusNotFound, "connection not found")
	case errors.Is(err, scheduler.ErrPollInFlight):
		writeError(w, http.StatusConflict, "poll already in flight")
	case err != nil:
		logging.Error().Err(err).Str("connection_id", id).Msg("Manual poll failed")
		writeError(w, http.StatusInternalServerError, "poll failed")
	default:
		writeJSON(w, http.StatusOK, outcome)
	}
}

func (rt *Router) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.outcomes.Outcomes())
}

func (rt *Router) handleEscalations(w http.ResponseWriter, r *http.Request) {
	escalations, err := rt.escalations.List(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list escalations")
		writeError(w, http.StatusInternalServerError, "failed to list escalations")
		return
	}
	if escalations == nil {
		escalations = []*models.Escalation{}
	}
	writeJSON(w, http.StatusOK, escalations)
}
