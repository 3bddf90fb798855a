// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// UpsertResult classifies what an upsert did to the stored row.
type UpsertResult int

const (
	// ResultCreated means the item was seen for the first time.
	ResultCreated UpsertResult = iota
	// ResultUpdated means the item existed but its content changed.
	ResultUpdated
	// ResultUnchanged means the stored content hash already matched.
	ResultUnchanged
)

// StoredItem is a row of the discovered_items table.
type StoredItem struct {
	ConnectionID    string
	ExternalKey     string
	Capability      models.Capability
	Payload         []byte
	ContentHash     string
	Ordinal         int64
	NeedsProcessing bool
	FirstSeen       time.Time
	LastUpdated     time.Time
}

// UpsertItem stores a discovered item, deduplicating on the stable external
// key. Content comparison uses a hash of the serialized item, so an item
// re-reported with identical content is a no-op and keeps its processing
// flag, while changed content flips needs_processing back on.
func (db *DB) UpsertItem(ctx context.Context, connectionID string, item models.Item) (UpsertResult, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return ResultUnchanged, fmt.Errorf("encode item %s: %w", item.ExternalKey(), err)
	}
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	var existingHash string
	err = db.conn.QueryRowContext(ctx,
		`SELECT content_hash FROM discovered_items WHERE connection_id = ? AND external_key = ?`,
		connectionID, item.ExternalKey(),
	).Scan(&existingHash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO discovered_items
				(connection_id, external_key, capability, payload, content_hash, ordinal)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			connectionID, item.ExternalKey(), string(item.Capability()), string(payload), hash, item.Ordinal(),
		)
		if err != nil {
			return ResultUnchanged, fmt.Errorf("insert item %s: %w", item.ExternalKey(), err)
		}
		return ResultCreated, nil

	case err != nil:
		return ResultUnchanged, fmt.Errorf("lookup item %s: %w", item.ExternalKey(), err)

	case existingHash == hash:
		return ResultUnchanged, nil

	default:
		_, err = db.conn.ExecContext(ctx,
			`UPDATE discovered_items
			 SET payload = ?, content_hash = ?, ordinal = ?, needs_processing = TRUE,
			     last_updated = CURRENT_TIMESTAMP
			 WHERE connection_id = ? AND external_key = ?`,
			string(payload), hash, item.Ordinal(), connectionID, item.ExternalKey(),
		)
		if err != nil {
			return ResultUnchanged, fmt.Errorf("update item %s: %w", item.ExternalKey(), err)
		}
		return ResultUpdated, nil
	}
}

// MarkProcessed clears the processing flag after downstream consumers have
// handled the item.
func (db *DB) MarkProcessed(ctx context.Context, connectionID, externalKey string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE discovered_items SET needs_processing = FALSE
		 WHERE connection_id = ? AND external_key = ?`,
		connectionID, externalKey,
	)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", externalKey, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s/%s not found", connectionID, externalKey)
	}
	return nil
}

// ListUnprocessed returns up to limit items awaiting processing for one
// connection, oldest change first.
func (db *DB) ListUnprocessed(ctx context.Context, connectionID string, limit int) ([]*StoredItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT connection_id, external_key, capability, payload, content_hash,
		        ordinal, needs_processing, first_seen, last_updated
		 FROM discovered_items
		 WHERE connection_id = ? AND needs_processing = TRUE
		 ORDER BY ordinal ASC
		 LIMIT ?`,
		connectionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*StoredItem
	for rows.Next() {
		var it StoredItem
		var capability, payload string
		if err := rows.Scan(&it.ConnectionID, &it.ExternalKey, &capability, &payload,
			&it.ContentHash, &it.Ordinal, &it.NeedsProcessing, &it.FirstSeen, &it.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Capability = models.Capability(capability)
		it.Payload = []byte(payload)
		out = append(out, &it)
	}
	return out, rows.Err()
}

// CountItems returns how many items are stored for a connection.
func (db *DB) CountItems(ctx context.Context, connectionID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discovered_items WHERE connection_id = ?`, connectionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// DeleteForConnection removes every item belonging to a connection. Called
// when the connection itself is deleted.
func (db *DB) DeleteForConnection(ctx context.Context, connectionID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM discovered_items WHERE connection_id = ?`, connectionID,
	)
	if err != nil {
		return fmt.Errorf("delete items for %s: %w", connectionID, err)
	}
	return nil
}
