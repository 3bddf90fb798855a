// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// EscalationStore persists the durable human-facing records created when a
// connection flips to INVALID.
type EscalationStore struct {
	db *badger.DB
}

// NewEscalationStore creates an escalation store on the shared database.
func NewEscalationStore(db *badger.DB) *EscalationStore {
	return &EscalationStore{db: db}
}

// Create stores a new escalation, assigning its id and timestamp.
func (s *EscalationStore) Create(ctx context.Context, clientID, connectionID, reason string) (*models.Escalation, error) {
	esc := &models.Escalation{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		ConnectionID: connectionID,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(esc)
	if err != nil {
		return nil, fmt.Errorf("encode escalation: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(escalationKeyPrefix+esc.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return esc, nil
}

// List returns all escalations, newest first.
func (s *EscalationStore) List(ctx context.Context) ([]*models.Escalation, error) {
	var out []*models.Escalation

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(escalationKeyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var esc models.Escalation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &esc)
			}); err != nil {
				return fmt.Errorf("decode escalation: %w", err)
			}
			out = append(out, &esc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CountForConnection returns how many escalations exist for a connection.
func (s *EscalationStore) CountForConnection(ctx context.Context, connectionID string) (int, error) {
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, esc := range all {
		if esc.ConnectionID == connectionID {
			count++
		}
	}
	return count, nil
}
