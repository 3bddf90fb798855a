// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/JanDamek/jervis-sub013/internal/models"
)

// RateLimitedClient throttles outbound fetches so concurrent polls against
// the same external system stay inside its API quota.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a token-bucket limiter.
func NewRateLimitedClient(inner Client, perSecond float64, burst int) *RateLimitedClient {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// FetchChangedItems blocks until the limiter grants a token, then delegates.
func (r *RateLimitedClient) FetchChangedItems(ctx context.Context, capability models.Capability, q Query) ([]models.Item, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.inner.FetchChangedItems(ctx, capability, q)
}

// RefreshToken passes through to the wrapped client when it supports
// refresh. Refresh calls are rare and not rate limited.
func (r *RateLimitedClient) RefreshToken(ctx context.Context, conn *models.Connection) error {
	refresher, ok := r.inner.(TokenRefresher)
	if !ok {
		return nil
	}
	return refresher.RefreshToken(ctx, conn)
}
