// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

func TestScopePutValidation(t *testing.T) {
	ctx := context.Background()
	scopes := NewScopeStore(openTestDB(t))

	if err := scopes.PutClient(ctx, &models.ClientScope{}); err == nil {
		t.Error("expected error for empty client id")
	}
	if err := scopes.PutProject(ctx, &models.ProjectScope{ID: "p1"}); err == nil {
		t.Error("expected error for project without client id")
	}
}

func TestScopeGetAbsent(t *testing.T) {
	scopes := NewScopeStore(openTestDB(t))
	if _, err := scopes.GetClient(context.Background(), "missing"); !errors.Is(err, ErrScopeNotFound) {
		t.Errorf("expected ErrScopeNotFound, got %v", err)
	}
}

func TestListProjectsByClient(t *testing.T) {
	ctx := context.Background()
	scopes := NewScopeStore(openTestDB(t))

	_ = scopes.PutClient(ctx, &models.ClientScope{ID: "acme"})
	_ = scopes.PutProject(ctx, &models.ProjectScope{ID: "p2", ClientID: "acme"})
	_ = scopes.PutProject(ctx, &models.ProjectScope{ID: "p1", ClientID: "acme"})
	_ = scopes.PutProject(ctx, &models.ProjectScope{ID: "p3", ClientID: "other"})

	projects, err := scopes.ListProjectsByClient(ctx, "acme")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if projects[0].ID != "p1" || projects[1].ID != "p2" {
		t.Errorf("unexpected order: %s, %s", projects[0].ID, projects[1].ID)
	}
}

func TestClientsForConnection(t *testing.T) {
	ctx := context.Background()
	scopes := NewScopeStore(openTestDB(t))

	// acme uses conn-1 directly; beta reaches it only through a project;
	// gamma never touches it.
	_ = scopes.PutClient(ctx, &models.ClientScope{
		ID: "acme",
		Bindings: map[models.Capability]models.CapabilityBinding{
			models.CapabilityBugtracker: {ConnectionID: "conn-1"},
		},
	})
	_ = scopes.PutClient(ctx, &models.ClientScope{ID: "beta"})
	_ = scopes.PutClient(ctx, &models.ClientScope{ID: "gamma"})
	_ = scopes.PutProject(ctx, &models.ProjectScope{
		ID:       "beta-proj",
		ClientID: "beta",
		Bindings: map[models.Capability]models.CapabilityBinding{
			models.CapabilityWiki: {ConnectionID: "conn-1"},
		},
	})

	clients, err := scopes.ClientsForConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if clients[0].ID != "acme" {
		t.Errorf("direct user should come first, got %s", clients[0].ID)
	}
	if clients[1].ID != "beta" {
		t.Errorf("expected beta via project, got %s", clients[1].ID)
	}
}

func TestClientsForConnectionDedup(t *testing.T) {
	ctx := context.Background()
	scopes := NewScopeStore(openTestDB(t))

	// Client uses the connection directly and through a project; it must
	// still appear once.
	_ = scopes.PutClient(ctx, &models.ClientScope{
		ID: "acme",
		Bindings: map[models.Capability]models.CapabilityBinding{
			models.CapabilityBugtracker: {ConnectionID: "conn-1"},
		},
	})
	_ = scopes.PutProject(ctx, &models.ProjectScope{
		ID:       "acme-proj",
		ClientID: "acme",
		Bindings: map[models.Capability]models.CapabilityBinding{
			models.CapabilityWiki: {ConnectionID: "conn-1"},
		},
	})

	clients, err := scopes.ClientsForConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
}
