// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/database"
	"github.com/JanDamek/jervis-sub013/internal/logging"
	"github.com/JanDamek/jervis-sub013/internal/metrics"
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/provider"
	"github.com/JanDamek/jervis-sub013/internal/store"
)

// CursorOps is the slice of the cursor store the engine needs.
type CursorOps interface {
	Get(ctx context.Context, connectionID, handlerID string) (*models.Cursor, error)
	AdvanceTimestamp(ctx context.Context, connectionID, handlerID string, ts time.Time) error
	AdvanceNumericID(ctx context.Context, connectionID, handlerID string, id int64) error
	AdvanceSequence(ctx context.Context, connectionID, handlerID string, seq int64) error
}

// ItemSink stores discovered items with dedup semantics.
type ItemSink interface {
	UpsertItem(ctx context.Context, connectionID string, item models.Item) (database.UpsertResult, error)
}

// EventPublisher announces stored item changes to downstream consumers.
// Implementations must be safe to skip; a nil publisher disables publishing.
type EventPublisher interface {
	PublishItem(ctx context.Context, connectionID string, item models.Item, created bool) error
}

// Engine runs the shared incremental algorithm: load cursor, fetch changes,
// dedup-upsert each item, advance the cursor to the highest ordinal seen.
//
// Cursor semantics are at-least-once: the cursor advances past items whose
// upsert failed, because the next content change re-surfaces them. A failed
// fetch leaves the cursor untouched and the whole window is retried.
type Engine struct {
	cursors   CursorOps
	items     ItemSink
	publisher EventPublisher
}

// NewEngine creates the sync engine. publisher may be nil.
func NewEngine(cursors CursorOps, items ItemSink, publisher EventPublisher) *Engine {
	return &Engine{cursors: cursors, items: items, publisher: publisher}
}

// RunHandler executes one handler against one connection and returns the
// per-handler outcome. A fetch error aborts the handler; per-item upsert
// failures are counted and processing continues.
func (e *Engine) RunHandler(ctx context.Context, conn *models.Connection, h Handler, filter models.ResourceFilter, client provider.Client) *models.PollOutcome {
	outcome := &models.PollOutcome{ConnectionID: conn.ID}
	capability := string(h.Capability())

	cursor, err := e.cursors.Get(ctx, conn.ID, h.ID())
	if err != nil && !errors.Is(err, store.ErrCursorNotFound) {
		logging.Error().Err(err).
			Str("connection_id", conn.ID).
			Str("handler", h.ID()).
			Msg("Failed to load cursor")
		outcome.Errors++
		return outcome
	}

	items, err := client.FetchChangedItems(ctx, h.Capability(), h.BuildQuery(filter, cursor))
	if err != nil {
		if provider.IsAuthError(err) {
			outcome.AuthFailure = true
		}
		outcome.Errors++
		logging.Warn().Err(err).
			Str("connection_id", conn.ID).
			Str("handler", h.ID()).
			Bool("auth_failure", outcome.AuthFailure).
			Msg("Fetch failed, cursor left untouched")
		return outcome
	}

	outcome.Discovered = len(items)
	metrics.ItemsDiscovered.WithLabelValues(capability).Add(float64(len(items)))

	// The highest ordinal observed, including items whose upsert failed:
	// re-delivery of those is the provider's job on their next change, not
	// the cursor's.
	var maxOrdinal int64
	var sawItem bool

	for _, item := range items {
		if item.Ordinal() > maxOrdinal || !sawItem {
			maxOrdinal = item.Ordinal()
			sawItem = true
		}

		result, err := e.items.UpsertItem(ctx, conn.ID, item)
		if err != nil {
			outcome.Errors++
			metrics.ItemErrors.WithLabelValues(capability).Inc()
			logging.Error().Err(err).
				Str("connection_id", conn.ID).
				Str("handler", h.ID()).
				Str("external_key", item.ExternalKey()).
				Msg("Item upsert failed")
			continue
		}

		switch result {
		case database.ResultCreated:
			outcome.Created++
			metrics.ItemsCreated.WithLabelValues(capability).Inc()
		case database.ResultUpdated:
			outcome.Updated++
			metrics.ItemsUpdated.WithLabelValues(capability).Inc()
		case database.ResultUnchanged:
			outcome.Skipped++
			metrics.ItemsSkipped.WithLabelValues(capability).Inc()
			continue
		}

		if e.publisher != nil {
			if err := e.publisher.PublishItem(ctx, conn.ID, item, result == database.ResultCreated); err != nil {
				logging.Warn().Err(err).
					Str("connection_id", conn.ID).
					Str("external_key", item.ExternalKey()).
					Msg("Item event publish failed")
			}
		}
	}

	// An empty window leaves the cursor where it was.
	if sawItem {
		if err := e.advanceCursor(ctx, conn.ID, h, maxOrdinal); err != nil {
			outcome.Errors++
			logging.Error().Err(err).
				Str("connection_id", conn.ID).
				Str("handler", h.ID()).
				Msg("Cursor advance failed")
		} else {
			metrics.CursorAdvances.WithLabelValues(h.ID()).Inc()
		}
	}

	return outcome
}

func (e *Engine) advanceCursor(ctx context.Context, connectionID string, h Handler, maxOrdinal int64) error {
	switch h.CursorKind() {
	case CursorTimestamp:
		return e.cursors.AdvanceTimestamp(ctx, connectionID, h.ID(), time.UnixMilli(maxOrdinal).UTC())
	case CursorNumericID:
		return e.cursors.AdvanceNumericID(ctx, connectionID, h.ID(), maxOrdinal)
	case CursorSequence:
		return e.cursors.AdvanceSequence(ctx, connectionID, h.ID(), maxOrdinal)
	default:
		return nil
	}
}
