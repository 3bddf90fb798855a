// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// ScopeStore persists the two-level tenant hierarchy: client scopes and
// their project scopes.
type ScopeStore struct {
	db *badger.DB
}

// NewScopeStore creates a scope store on the shared Badger database.
func NewScopeStore(db *badger.DB) *ScopeStore {
	return &ScopeStore{db: db}
}

// PutClient stores or replaces a client scope.
func (s *ScopeStore) PutClient(ctx context.Context, client *models.ClientScope) error {
	if client.ID == "" {
		return fmt.Errorf("client id must not be empty")
	}
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("encode client scope: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(clientKeyPrefix+client.ID), data)
	})
}

// PutProject stores or replaces a project scope.
func (s *ScopeStore) PutProject(ctx context.Context, project *models.ProjectScope) error {
	if project.ID == "" {
		return fmt.Errorf("project id must not be empty")
	}
	if project.ClientID == "" {
		return fmt.Errorf("project %s has no client id", project.ID)
	}
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encode project scope: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(projectKeyPrefix+project.ID), data)
	})
}

// GetClient returns one client scope, or ErrScopeNotFound.
func (s *ScopeStore) GetClient(ctx context.Context, id string) (*models.ClientScope, error) {
	var client models.ClientScope

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(clientKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrScopeNotFound
		}
		if err != nil {
			return fmt.Errorf("get client scope: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &client)
		})
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients returns all client scopes sorted by id.
func (s *ScopeStore) ListClients(ctx context.Context) ([]*models.ClientScope, error) {
	var out []*models.ClientScope

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(clientKeyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var client models.ClientScope
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &client)
			}); err != nil {
				return fmt.Errorf("decode client scope: %w", err)
			}
			out = append(out, &client)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListProjects returns all project scopes sorted by id.
func (s *ScopeStore) ListProjects(ctx context.Context) ([]*models.ProjectScope, error) {
	var out []*models.ProjectScope

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(projectKeyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var project models.ProjectScope
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &project)
			}); err != nil {
				return fmt.Errorf("decode project scope: %w", err)
			}
			out = append(out, &project)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListProjectsByClient returns the projects under one client, sorted by id.
func (s *ScopeStore) ListProjectsByClient(ctx context.Context, clientID string) ([]*models.ProjectScope, error) {
	all, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, project := range all {
		if project.ClientID == clientID {
			filtered = append(filtered, project)
		}
	}
	return filtered, nil
}

// ClientsForConnection resolves the client scopes that use a connection,
// directly or through one of their projects. Used to address escalations.
// Directly-associated clients are listed first.
func (s *ScopeStore) ClientsForConnection(ctx context.Context, connectionID string) ([]*models.ClientScope, error) {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var direct, indirect []*models.ClientScope

	for _, client := range clients {
		if client.UsesConnection(connectionID) {
			direct = append(direct, client)
			seen[client.ID] = true
		}
	}
	for _, project := range projects {
		if !project.UsesConnection(connectionID) || seen[project.ClientID] {
			continue
		}
		for _, client := range clients {
			if client.ID == project.ClientID {
				indirect = append(indirect, client)
				seen[client.ID] = true
				break
			}
		}
	}
	return append(direct, indirect...), nil
}
