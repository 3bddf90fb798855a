// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package store persists sync metadata in BadgerDB: connection records,
// tenant scopes, resumable cursors and escalations. Values are JSON-encoded;
// keys are namespaced by record type so the stores share one database.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/logging"
)

// Key prefixes for the shared Badger database.
const (
	connectionKeyPrefix = "connection:"
	clientKeyPrefix     = "client:"
	projectKeyPrefix    = "project:"
	cursorKeyPrefix     = "cursor:"
	escalationKeyPrefix = "escalation:"
)

// Sentinel errors returned by the stores.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrCursorNotFound     = errors.New("cursor not found")
	ErrScopeNotFound      = errors.New("scope not found")
)

// Open opens the Badger database per configuration. The caller owns the
// returned handle and must Close it on shutdown.
func Open(cfg config.StoreConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's own logger is too chatty at INFO; route through zerolog at
	// warning level only.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return db, nil
}

// badgerLogger adapts badger's logger interface onto the global logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{})  {}
func (badgerLogger) Debugf(format string, args ...interface{}) {}
