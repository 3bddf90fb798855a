// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package provider defines the uniform client surface the sync core talks
// to. Concrete provider integrations (Jira, Confluence, GitHub, IMAP, ...)
// implement Client; the core never sees provider-specific request shapes.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// Query describes one incremental fetch. Exactly one of the cursor fields
// is set, matching the handler's cursor kind; a first poll leaves all of
// them zero and means "everything".
type Query struct {
	// SinceTimestamp restricts to items updated at or after this instant.
	SinceTimestamp *time.Time

	// AfterNumericID restricts to items with a numeric id greater than this.
	AfterNumericID *int64

	// AfterSequence restricts to items past this change-feed position.
	AfterSequence *int64

	// Filter narrows the query to the resources the tenant scopes allow.
	Filter models.ResourceFilter
}

// Client fetches changed items from one external system. Implementations
// return fully detailed items so no follow-up fetch is needed, and must
// wrap authentication rejections in AuthError.
type Client interface {
	FetchChangedItems(ctx context.Context, capability models.Capability, q Query) ([]models.Item, error)
}

// TokenRefresher is implemented by clients whose credentials can be renewed
// without operator intervention. A successful refresh persists the new
// token through the connection store before returning.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, conn *models.Connection) error
}

// AuthError marks a provider rejection of the connection's credentials.
// The sync core treats it as a connection health event rather than a
// transient fetch failure.
type AuthError struct {
	ConnectionID string
	Err          error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for connection %s: %v", e.ConnectionID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is, or wraps, an authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Factory builds a client for one connection. Registered per provider name.
type Factory func(conn *models.Connection) (Client, error)

// Registry maps provider names to client factories. A connection whose
// provider has no registered factory is skipped with a warning, not failed.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs the factory for a provider name, replacing any previous
// registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// ClientFor builds a client for the connection, or returns (nil, false)
// when no factory is registered for its provider.
func (r *Registry) ClientFor(conn *models.Connection) (Client, bool, error) {
	f, ok := r.factories[conn.Provider]
	if !ok {
		return nil, false, nil
	}
	client, err := f(conn)
	if err != nil {
		return nil, true, err
	}
	return client, true, nil
}
