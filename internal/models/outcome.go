// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

import "time"

// PollOutcome is the ephemeral per-cycle aggregate result of polling one
// connection. It is never persisted; the scheduler consumes it immediately
// for logging, metrics and escalation decisions.
type PollOutcome struct {
	ConnectionID string        `json:"connection_id"`
	Discovered   int           `json:"discovered"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	AuthFailure  bool          `json:"auth_failure"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// Merge folds another outcome (e.g. one handler's result) into o.
func (o *PollOutcome) Merge(other *PollOutcome) {
	if other == nil {
		return
	}
	o.Discovered += other.Discovered
	o.Created += other.Created
	o.Updated += other.Updated
	o.Skipped += other.Skipped
	o.Errors += other.Errors
	o.AuthFailure = o.AuthFailure || other.AuthFailure
}

// Failed reports whether the poll recorded any error.
func (o *PollOutcome) Failed() bool {
	return o.Errors > 0
}
