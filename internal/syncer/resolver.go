// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package syncer

import (
	"context"
	"fmt"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// ScopeSource is the slice of the metadata store the resolver needs.
type ScopeSource interface {
	ListClients(ctx context.Context) ([]*models.ClientScope, error)
	ListProjectsByClient(ctx context.Context, clientID string) ([]*models.ProjectScope, error)
}

// Resolver turns the two-level tenant hierarchy into per-tenant resource
// filters and one merged filter per (connection, capability) poll.
//
// Resolution rules:
//   - a project that claims specific resources owns them; they are excluded
//     from the parent client's poll of the same connection and capability
//   - a project binding with no resource list defers to its client
//   - a disabled binding, or no binding at all, polls nothing for that scope
type Resolver struct {
	scopes ScopeSource
}

// NewResolver creates a resolver over the scope store.
func NewResolver(scopes ScopeSource) *Resolver {
	return &Resolver{scopes: scopes}
}

// TenantFilter is the resolved polling decision for one tenant scope.
type TenantFilter struct {
	ClientID  string
	ProjectID string // empty for client-level scope
	Filter    models.ResourceFilter
}

// ResolveTenants computes the per-tenant filters for one connection and
// capability. Scopes whose resolution comes out disabled or empty are
// omitted.
func (r *Resolver) ResolveTenants(ctx context.Context, connectionID string, capability models.Capability) ([]TenantFilter, error) {
	clients, err := r.scopes.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	var out []TenantFilter
	for _, client := range clients {
		projects, err := r.scopes.ListProjectsByClient(ctx, client.ID)
		if err != nil {
			return nil, fmt.Errorf("list projects for %s: %w", client.ID, err)
		}

		// Resources claimed by this client's projects are owned by those
		// projects and removed from the client-level poll.
		var claimed []string
		for _, project := range projects {
			b, ok := project.Binding(capability, connectionID)
			if !ok || b.Disabled {
				continue
			}
			if len(b.Resources) > 0 {
				claimed = append(claimed, b.Resources...)
				out = append(out, TenantFilter{
					ClientID:  client.ID,
					ProjectID: project.ID,
					Filter:    models.IndexSelectedFilter(b.Resources),
				})
			}
			// An empty resource list defers to the client configuration.
		}

		b, ok := client.Binding(capability, connectionID)
		if !ok || b.Disabled {
			continue
		}

		var filter models.ResourceFilter
		if len(b.Resources) == 0 {
			filter = models.IndexAllFilter(claimed)
		} else {
			remaining := subtract(b.Resources, claimed)
			if len(remaining) == 0 {
				continue
			}
			filter = models.IndexSelectedFilter(remaining)
		}
		out = append(out, TenantFilter{ClientID: client.ID, Filter: filter})
	}
	return out, nil
}

// ResolveConnection merges the tenant filters for one (connection,
// capability) pair into the single filter the poll query uses. With no
// interested tenant the result is a disabled filter and the poll is
// skipped.
func (r *Resolver) ResolveConnection(ctx context.Context, connectionID string, capability models.Capability) (models.ResourceFilter, error) {
	tenants, err := r.ResolveTenants(ctx, connectionID, capability)
	if err != nil {
		return models.DisabledFilter(), err
	}
	return MergeFilters(tenants), nil
}

// MergeFilters unions tenant filters into one poll-wide filter. Any
// index-all tenant widens the poll to everything except resources that no
// tenant wants; otherwise the poll is the union of the selected resources.
func MergeFilters(tenants []TenantFilter) models.ResourceFilter {
	if len(tenants) == 0 {
		return models.DisabledFilter()
	}

	selected := make(map[string]struct{})
	var indexAll bool
	var excluded map[string]struct{}

	for _, t := range tenants {
		switch t.Filter.Mode {
		case models.FilterIndexAll:
			if !indexAll {
				indexAll = true
				excluded = cloneSet(t.Filter.Exclude)
			} else {
				// A resource stays excluded only if every index-all
				// tenant excludes it.
				excluded = intersectSets(excluded, t.Filter.Exclude)
			}
		case models.FilterIndexSelected:
			for res := range t.Filter.Include {
				selected[res] = struct{}{}
			}
		}
	}

	if indexAll {
		// Resources some selected tenant polls are not excluded overall.
		for res := range selected {
			delete(excluded, res)
		}
		return models.ResourceFilter{Mode: models.FilterIndexAll, Exclude: excluded}
	}
	if len(selected) == 0 {
		return models.DisabledFilter()
	}
	return models.ResourceFilter{Mode: models.FilterIndexSelected, Include: selected}
}

func subtract(values, remove []string) []string {
	removeSet := make(map[string]struct{}, len(remove))
	for _, v := range remove {
		removeSet[v] = struct{}{}
	}
	var out []string
	for _, v := range values {
		if _, gone := removeSet[v]; !gone {
			out = append(out, v)
		}
	}
	return out
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func intersectSets(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}
