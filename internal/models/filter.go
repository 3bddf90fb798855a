// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

// FilterMode is the per-tenant polling decision for one capability.
type FilterMode string

const (
	// FilterIndexAll polls every resource the provider exposes, minus any
	// resources excluded because a child scope claimed them.
	FilterIndexAll FilterMode = "INDEX_ALL"

	// FilterIndexSelected polls only the listed resources.
	FilterIndexSelected FilterMode = "INDEX_SELECTED"

	// FilterDisabled polls nothing for this tenant and capability.
	FilterDisabled FilterMode = "DISABLED"
)

// ResourceFilter is the outcome of resource-scope resolution for one
// (tenant, capability) pair. Include is consulted only in
// FilterIndexSelected mode; Exclude applies in both polling modes and
// carries resources claimed by more specific scopes.
type ResourceFilter struct {
	Mode    FilterMode          `json:"mode"`
	Include map[string]struct{} `json:"include,omitempty"`
	Exclude map[string]struct{} `json:"exclude,omitempty"`
}

// DisabledFilter returns a filter that polls nothing.
func DisabledFilter() ResourceFilter {
	return ResourceFilter{Mode: FilterDisabled}
}

// IndexAllFilter returns a filter that polls everything except the given
// excluded resources.
func IndexAllFilter(exclude []string) ResourceFilter {
	return ResourceFilter{Mode: FilterIndexAll, Exclude: toSet(exclude)}
}

// IndexSelectedFilter returns a filter restricted to the given resources.
func IndexSelectedFilter(include []string) ResourceFilter {
	return ResourceFilter{Mode: FilterIndexSelected, Include: toSet(include)}
}

// Allows reports whether the filter permits polling the named resource.
func (f ResourceFilter) Allows(resource string) bool {
	switch f.Mode {
	case FilterDisabled:
		return false
	case FilterIndexSelected:
		if _, ok := f.Include[resource]; !ok {
			return false
		}
	}
	_, excluded := f.Exclude[resource]
	return !excluded
}

// Empty reports whether a selected-mode filter has nothing left to poll.
func (f ResourceFilter) Empty() bool {
	if f.Mode == FilterDisabled {
		return true
	}
	if f.Mode == FilterIndexSelected {
		for r := range f.Include {
			if f.Allows(r) {
				return false
			}
		}
		return true
	}
	return false
}

// Resources returns the included resources in selected mode, nil otherwise.
func (f ResourceFilter) Resources() []string {
	if f.Mode != FilterIndexSelected {
		return nil
	}
	out := make([]string, 0, len(f.Include))
	for r := range f.Include {
		if f.Allows(r) {
			out = append(out, r)
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
