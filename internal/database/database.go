// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package database provides the DuckDB-backed store for discovered items.
// Connection metadata, tenant scopes and cursors live in the Badger store;
// the items themselves land here so downstream processing can query them
// with SQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/logging"
)

// DB wraps the DuckDB connection used for discovered items.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens the database and initializes the schema. An empty Path opens an
// in-memory database, which the tests rely on.
func New(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	} else {
		// 0750 per gosec G301
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable auto-install/auto-load to prevent hangs in restricted network
	// environments. No extensions are needed for the item schema.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.createTables(); err != nil {
		if cerr := conn.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close database after init error")
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Conn returns the underlying SQL connection for packages that need direct
// access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close flushes the WAL with a CHECKPOINT and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	return db.conn.Close()
}

func (db *DB) createTables() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS discovered_items (
			connection_id    VARCHAR NOT NULL,
			external_key     VARCHAR NOT NULL,
			capability       VARCHAR NOT NULL,
			payload          VARCHAR NOT NULL,
			content_hash     VARCHAR NOT NULL,
			ordinal          BIGINT NOT NULL,
			needs_processing BOOLEAN NOT NULL DEFAULT TRUE,
			first_seen       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_updated     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (connection_id, external_key)
		)
	`)
	if err != nil {
		return fmt.Errorf("create discovered_items: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_items_needs_processing
		ON discovered_items (needs_processing, connection_id)
	`)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}
