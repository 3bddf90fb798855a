// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package models defines the domain types shared across the sync service:
// connections and their health state, tenant scopes (clients and projects),
// resumable cursors, resource filters, discovered item variants, poll
// outcomes and escalations.
//
// The types here are plain data carriers. All behavior that mutates durable
// state lives in the store, database and scheduler packages; the only logic
// in this package is small, pure helpers (filter matching, capability
// classification) that are trivially unit-testable.
package models
