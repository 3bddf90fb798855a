// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

import "time"

// Cursor is the resumable position of one (connection, handler) pair.
// Exactly one of the three value fields is populated, matching the handler's
// cursor kind. Values only ever move forward; the store enforces the
// monotonic guarantee on every advance.
type Cursor struct {
	ConnectionID string `json:"connection_id"`
	HandlerID    string `json:"handler_id"`

	// LastTimestamp is the newest updated-at instant observed (bugtracker,
	// wiki handlers).
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`

	// LastNumericID is the highest numeric item id observed (mailbox UIDs).
	LastNumericID *int64 `json:"last_numeric_id,omitempty"`

	// LastSequence is the highest sequence number observed (repository
	// change feeds).
	LastSequence *int64 `json:"last_sequence,omitempty"`

	// UpdatedAt is the audit timestamp of the last store write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Ordinal returns the cursor position as a comparable int64: milliseconds
// for timestamp cursors, the raw value otherwise. Returns 0 when the
// cursor carries no value yet.
func (c *Cursor) Ordinal() int64 {
	switch {
	case c == nil:
		return 0
	case c.LastTimestamp != nil:
		return c.LastTimestamp.UnixMilli()
	case c.LastNumericID != nil:
		return *c.LastNumericID
	case c.LastSequence != nil:
		return *c.LastSequence
	default:
		return 0
	}
}
