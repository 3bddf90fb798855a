// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package syncer implements the incremental change-detection core: the
// per-capability sync handlers, the tenant resource-scope resolver and the
// fetch/dedup/advance engine the scheduler drives each cycle.
package syncer

import (
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/provider"
)

// CursorKind selects which cursor field a handler advances.
type CursorKind int

const (
	// CursorTimestamp orders items by their updated-at instant.
	CursorTimestamp CursorKind = iota
	// CursorNumericID orders items by a provider-assigned numeric id.
	CursorNumericID
	// CursorSequence orders items by a change-feed sequence number.
	CursorSequence
)

// Handler describes one item family of a capability: which cursor kind it
// resumes from and how a stored cursor translates into a provider query.
// Handlers are stateless; all position is in the cursor store.
type Handler interface {
	// ID is the stable handler identity used in cursor keys. Renaming an
	// ID orphans its cursors and forces a full re-poll.
	ID() string

	// Capability is the provider family the handler polls.
	Capability() models.Capability

	// CursorKind is the ordering dimension the handler advances on.
	CursorKind() CursorKind

	// BuildQuery converts the resolved resource filter and the stored
	// cursor (nil on first poll) into a provider query.
	BuildQuery(filter models.ResourceFilter, cursor *models.Cursor) provider.Query
}

// HandlerSet indexes handlers by capability.
type HandlerSet struct {
	byCapability map[models.Capability][]Handler
}

// NewHandlerSet builds a set from the given handlers. Send-only
// capabilities are rejected at construction so they can never be polled.
func NewHandlerSet(handlers ...Handler) *HandlerSet {
	set := &HandlerSet{byCapability: make(map[models.Capability][]Handler)}
	for _, h := range handlers {
		if !h.Capability().Pollable() {
			continue
		}
		set.byCapability[h.Capability()] = append(set.byCapability[h.Capability()], h)
	}
	return set
}

// ForCapability returns the handlers registered for a capability, nil when
// there are none.
func (s *HandlerSet) ForCapability(c models.Capability) []Handler {
	return s.byCapability[c]
}

// DefaultHandlers returns the standard handler per pollable capability.
func DefaultHandlers() []Handler {
	return []Handler{
		IssueHandler{},
		WikiPageHandler{},
		RepoFileHandler{},
		MailMessageHandler{},
	}
}
