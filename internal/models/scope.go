// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

// CapabilityBinding is one tenant scope's declaration that it uses a
// capability of a specific connection. Resources lists the provider-side
// resource identifiers (project keys, space keys, repository slugs,
// mailbox folders) the scope claims; an empty list at the project level
// means "defer to the client configuration", while an empty list at the
// client level means "index everything the provider exposes".
type CapabilityBinding struct {
	ConnectionID string   `json:"connection_id"`
	Disabled     bool     `json:"disabled"`
	Resources    []string `json:"resources,omitempty"`
}

// ClientScope is the parent tenant level (an organization/client).
// Bindings are keyed by capability.
type ClientScope struct {
	ID       string                           `json:"id"`
	Name     string                           `json:"name"`
	Bindings map[Capability]CapabilityBinding `json:"bindings,omitempty"`
}

// ProjectScope is the child tenant level. A project belongs to exactly one
// client and may claim specific resources of a connection capability; a
// claimed resource is owned by the project and excluded from the client
// level poll for the same connection and capability.
type ProjectScope struct {
	ID       string                           `json:"id"`
	ClientID string                           `json:"client_id"`
	Name     string                           `json:"name"`
	Bindings map[Capability]CapabilityBinding `json:"bindings,omitempty"`
}

// Binding returns the scope's binding for (capability, connection), if any.
func (c *ClientScope) Binding(capability Capability, connectionID string) (CapabilityBinding, bool) {
	b, ok := c.Bindings[capability]
	if !ok || b.ConnectionID != connectionID {
		return CapabilityBinding{}, false
	}
	return b, true
}

// Binding returns the project's binding for (capability, connection), if any.
func (p *ProjectScope) Binding(capability Capability, connectionID string) (CapabilityBinding, bool) {
	b, ok := p.Bindings[capability]
	if !ok || b.ConnectionID != connectionID {
		return CapabilityBinding{}, false
	}
	return b, true
}

// UsesConnection reports whether any binding of the scope references the
// connection. Used for escalation addressing.
func (c *ClientScope) UsesConnection(connectionID string) bool {
	for _, b := range c.Bindings {
		if b.ConnectionID == connectionID {
			return true
		}
	}
	return false
}

// UsesConnection reports whether any binding of the project references the
// connection.
func (p *ProjectScope) UsesConnection(connectionID string) bool {
	for _, b := range p.Bindings {
		if b.ConnectionID == connectionID {
			return true
		}
	}
	return false
}
