// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

// Capability is a category of synchronizable content a connection can
// provide. A connection declares one or more capabilities; the scheduler
// gates each capability on its own poll interval.
type Capability string

const (
	// CapabilityBugtracker covers issue-tracker providers (tickets, bugs).
	CapabilityBugtracker Capability = "BUGTRACKER"

	// CapabilityWiki covers wiki/documentation page providers.
	CapabilityWiki Capability = "WIKI"

	// CapabilityRepository covers source repository file providers.
	CapabilityRepository Capability = "REPOSITORY"

	// CapabilityEmail covers mailbox (inbound message) providers.
	CapabilityEmail Capability = "EMAIL"

	// CapabilityEmailSending is an outbound-only capability. It exists so
	// connections can declare it, but it is never eligible for polling.
	CapabilityEmailSending Capability = "EMAIL_SENDING"
)

// AllCapabilities lists every known capability, pollable or not.
var AllCapabilities = []Capability{
	CapabilityBugtracker,
	CapabilityWiki,
	CapabilityRepository,
	CapabilityEmail,
	CapabilityEmailSending,
}

// Pollable reports whether the capability participates in the poll cycle.
// Send-only capabilities are excluded from scheduling entirely.
func (c Capability) Pollable() bool {
	switch c {
	case CapabilityBugtracker, CapabilityWiki, CapabilityRepository, CapabilityEmail:
		return true
	default:
		return false
	}
}

// Valid reports whether the capability is one of the known values.
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}
