// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

import "time"

// HealthState is the validity state of a connection.
type HealthState string

const (
	// HealthValid marks a connection as usable; only VALID connections are
	// considered by the scheduler.
	HealthValid HealthState = "VALID"

	// HealthInvalid marks a connection whose credentials were rejected.
	// INVALID connections are skipped until manually repaired.
	HealthInvalid HealthState = "INVALID"
)

// AuthType describes how a connection authenticates against its provider.
type AuthType string

const (
	// AuthAPIToken is a static API token; no refresh is ever attempted.
	AuthAPIToken AuthType = "API_TOKEN"

	// AuthBasic is username/password basic auth; no refresh is ever attempted.
	AuthBasic AuthType = "BASIC"

	// AuthOAuthToken is a refreshable OAuth access token. Connections with
	// this auth type go through the token-refresh hook before each poll.
	AuthOAuthToken AuthType = "OAUTH_TOKEN"
)

// Refreshable reports whether the auth type carries a token that an
// external refresh service may renew.
func (a AuthType) Refreshable() bool {
	return a == AuthOAuthToken
}

// Connection is one configured external system endpoint.
//
// The sync core mutates only the State field (health transitions); token
// contents are updated by the external token-refresh collaborator, which is
// why the scheduler re-reads a connection from the store after a successful
// refresh. Connections are never deleted by the core.
type Connection struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Provider     string       `json:"provider"`
	Capabilities []Capability `json:"capabilities"`
	AuthType     AuthType     `json:"auth_type"`
	Token        string       `json:"token,omitempty"`
	Username     string       `json:"username,omitempty"`
	BaseURL      string       `json:"base_url"`
	State        HealthState  `json:"state"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasCapability reports whether the connection declares the capability.
func (c *Connection) HasCapability(capability Capability) bool {
	for _, declared := range c.Capabilities {
		if declared == capability {
			return true
		}
	}
	return false
}

// PollableCapabilities returns the declared capabilities that participate
// in the poll cycle, preserving declaration order.
func (c *Connection) PollableCapabilities() []Capability {
	out := make([]Capability, 0, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		if capability.Pollable() {
			out = append(out, capability)
		}
	}
	return out
}
