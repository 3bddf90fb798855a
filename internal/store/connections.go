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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// ConnectionStore persists connection records. The sync core only flips
// health state; creation, credential updates and deletion are driven from
// outside (admin tooling, token refresh).
type ConnectionStore struct {
	db      *badger.DB
	cursors *CursorStore
}

// NewConnectionStore creates a connection store. The cursor store is needed
// so deleting a connection also purges its cursors.
func NewConnectionStore(db *badger.DB, cursors *CursorStore) *ConnectionStore {
	return &ConnectionStore{db: db, cursors: cursors}
}

func connectionKey(id string) []byte {
	return []byte(connectionKeyPrefix + id)
}

// Put stores or replaces a connection record.
func (s *ConnectionStore) Put(ctx context.Context, conn *models.Connection) error {
	if conn.ID == "" {
		return fmt.Errorf("connection id must not be empty")
	}
	if conn.State == "" {
		conn.State = models.HealthValid
	}
	conn.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(connectionKey(conn.ID), data)
	})
}

// Get returns the connection by id, or ErrConnectionNotFound.
func (s *ConnectionStore) Get(ctx context.Context, id string) (*models.Connection, error) {
	var conn models.Connection

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(connectionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrConnectionNotFound
		}
		if err != nil {
			return fmt.Errorf("get connection: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &conn)
		})
	})
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// List returns all connections sorted by id.
func (s *ConnectionStore) List(ctx context.Context) ([]*models.Connection, error) {
	var out []*models.Connection

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(connectionKeyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var conn models.Connection
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &conn)
			}); err != nil {
				return fmt.Errorf("decode connection: %w", err)
			}
			out = append(out, &conn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListValid returns the connections in VALID state, sorted by id. Only
// these are ever considered by the scheduler.
func (s *ConnectionStore) ListValid(ctx context.Context) ([]*models.Connection, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	valid := all[:0]
	for _, conn := range all {
		if conn.State == models.HealthValid {
			valid = append(valid, conn)
		}
	}
	return valid, nil
}

// SetState transitions the connection's health state and returns the state
// it held before. The previous state lets the caller detect the exact
// VALID→INVALID edge so escalation fires once per transition.
func (s *ConnectionStore) SetState(ctx context.Context, id string, state models.HealthState) (models.HealthState, error) {
	var previous models.HealthState

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(connectionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrConnectionNotFound
		}
		if err != nil {
			return fmt.Errorf("get connection: %w", err)
		}

		var conn models.Connection
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &conn)
		}); err != nil {
			return fmt.Errorf("decode connection: %w", err)
		}

		previous = conn.State
		if previous == state {
			return nil
		}
		conn.State = state
		conn.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&conn)
		if err != nil {
			return fmt.Errorf("encode connection: %w", err)
		}
		return txn.Set(connectionKey(id), data)
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Delete removes the connection and purges all of its cursors.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(connectionKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.cursors.DeleteForConnection(ctx, id)
}
