// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

import "time"

// Escalation is the durable, human-facing record created when a connection
// requires manual intervention (today: rejected credentials). Exactly one
// escalation is created per VALID→INVALID transition.
type Escalation struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	ConnectionID string    `json:"connection_id"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}
