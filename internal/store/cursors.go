// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// CursorStore persists one resumable position per (connection, handler)
// pair. Every advance operation creates the record if absent and enforces
// monotonic movement: a value that does not move the position forward is a
// no-op write-wise.
//
// No cross-process read-modify-write guard is needed for a single key:
// the scheduler's per-connection poll lock already guarantees at most one
// in-flight poll per connection, and two different handlers never share a
// key.
type CursorStore struct {
	db *badger.DB
}

// NewCursorStore creates a cursor store on the shared Badger database.
func NewCursorStore(db *badger.DB) *CursorStore {
	return &CursorStore{db: db}
}

func cursorKey(connectionID, handlerID string) []byte {
	return []byte(cursorKeyPrefix + connectionID + ":" + handlerID)
}

// Get returns the cursor for (connection, handler), or ErrCursorNotFound
// when no poll has completed yet.
func (s *CursorStore) Get(ctx context.Context, connectionID, handlerID string) (*models.Cursor, error) {
	var cursor models.Cursor

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey(connectionID, handlerID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCursorNotFound
		}
		if err != nil {
			return fmt.Errorf("get cursor: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cursor)
		})
	})
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// AdvanceTimestamp moves the timestamp cursor forward to ts. Regressions
// are ignored so the stored position is non-decreasing by construction.
func (s *CursorStore) AdvanceTimestamp(ctx context.Context, connectionID, handlerID string, ts time.Time) error {
	return s.advance(connectionID, handlerID, func(c *models.Cursor) bool {
		if c.LastTimestamp != nil && !ts.After(*c.LastTimestamp) {
			return false
		}
		c.LastTimestamp = &ts
		return true
	})
}

// AdvanceNumericID moves the numeric-id cursor forward to id.
func (s *CursorStore) AdvanceNumericID(ctx context.Context, connectionID, handlerID string, id int64) error {
	return s.advance(connectionID, handlerID, func(c *models.Cursor) bool {
		if c.LastNumericID != nil && id <= *c.LastNumericID {
			return false
		}
		c.LastNumericID = &id
		return true
	})
}

// AdvanceSequence moves the sequence-number cursor forward to seq.
func (s *CursorStore) AdvanceSequence(ctx context.Context, connectionID, handlerID string, seq int64) error {
	return s.advance(connectionID, handlerID, func(c *models.Cursor) bool {
		if c.LastSequence != nil && seq <= *c.LastSequence {
			return false
		}
		c.LastSequence = &seq
		return true
	})
}

// advance runs the read-modify-write inside one Badger transaction. The
// apply func mutates the cursor and reports whether the position moved.
func (s *CursorStore) advance(connectionID, handlerID string, apply func(*models.Cursor) bool) error {
	key := cursorKey(connectionID, handlerID)

	return s.db.Update(func(txn *badger.Txn) error {
		cursor := models.Cursor{
			ConnectionID: connectionID,
			HandlerID:    handlerID,
		}

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// First successful poll creates the record.
		case err != nil:
			return fmt.Errorf("read cursor: %w", err)
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &cursor)
			}); err != nil {
				return fmt.Errorf("decode cursor: %w", err)
			}
		}

		if !apply(&cursor) {
			return nil
		}
		cursor.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&cursor)
		if err != nil {
			return fmt.Errorf("encode cursor: %w", err)
		}
		return txn.Set(key, data)
	})
}

// DeleteForConnection removes every cursor belonging to the connection.
// Called only when the connection itself is deleted.
func (s *CursorStore) DeleteForConnection(ctx context.Context, connectionID string) error {
	prefix := []byte(cursorKeyPrefix + connectionID + ":")

	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete cursor %s: %w", key, err)
			}
		}
		return nil
	})
}
