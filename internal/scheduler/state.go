// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// State tracks in-flight polls, per-capability poll times and the latest
// outcome per connection. One mutex guards all three maps; every operation
// is a short critical section.
//
// The in-flight set gives each connection try-lock semantics: a tick that
// finds a poll still running skips the connection instead of queueing
// behind it.
type State struct {
	mu       sync.Mutex
	inFlight map[string]bool
	lastPoll map[string]time.Time
	outcomes map[string]*models.PollOutcome
}

// NewState creates empty scheduler state.
func NewState() *State {
	return &State{
		inFlight: make(map[string]bool),
		lastPoll: make(map[string]time.Time),
		outcomes: make(map[string]*models.PollOutcome),
	}
}

func pollKey(connectionID string, capability models.Capability) string {
	return connectionID + ":" + string(capability)
}

// TryAcquire claims the connection for polling. Returns false when a poll
// is already in flight.
func (s *State) TryAcquire(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[connectionID] {
		return false
	}
	s.inFlight[connectionID] = true
	return true
}

// Release frees the connection after its poll finished.
func (s *State) Release(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, connectionID)
}

// InFlight reports whether a poll is currently running for the connection.
func (s *State) InFlight(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[connectionID]
}

// Due reports whether the capability's interval has elapsed since its last
// poll on this connection. A capability never polled is always due.
func (s *State) Due(connectionID string, capability models.Capability, interval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastPoll[pollKey(connectionID, capability)]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// MarkPolled records that the capability was polled (or deliberately
// skipped) at the given instant.
func (s *State) MarkPolled(connectionID string, capability models.Capability, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPoll[pollKey(connectionID, capability)] = now
}

// RecordOutcome stores the latest outcome for the connection.
func (s *State) RecordOutcome(o *models.PollOutcome) {
	if o == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.ConnectionID] = o
}

// Outcome returns the last recorded outcome for a connection, nil if none.
func (s *State) Outcome(connectionID string) *models.PollOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[connectionID]
	if !ok {
		return nil
	}
	copied := *o
	return &copied
}

// Outcomes returns a snapshot of the latest outcomes, sorted by connection.
func (s *State) Outcomes() []*models.PollOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PollOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		copied := *o
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}
