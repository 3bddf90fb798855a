// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package provider

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/JanDamek/jervis-sub013/internal/logging"
	"github.com/JanDamek/jervis-sub013/internal/metrics"
	"github.com/JanDamek/jervis-sub013/internal/models"
)

// BreakerClient wraps a provider client with a circuit breaker so a
// misbehaving external system cannot soak every poll cycle in timeouts.
//
// The breaker uses real time for its interval and timeout calculations;
// tests exercise the wrapped client directly.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[[]models.Item]
	name  string
}

// NewBreakerClient wraps inner with a breaker named after the connection.
// Opens after a 60% failure rate with at least 10 requests in the window,
// allows 3 probe requests in half-open state.
func NewBreakerClient(connectionID string, inner Client) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(connectionID).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]models.Item](gobreaker.Settings{
		Name:        connectionID,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("connection_id", connectionID).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("connection_id", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},

		// Credential rejections must not trip the breaker; they are a
		// health-state event handled by the caller, not an availability
		// signal.
		IsSuccessful: func(err error) bool {
			return err == nil || IsAuthError(err)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, name: connectionID}
}

// FetchChangedItems delegates to the wrapped client under breaker
// protection.
func (b *BreakerClient) FetchChangedItems(ctx context.Context, capability models.Capability, q Query) ([]models.Item, error) {
	items, err := b.cb.Execute(func() ([]models.Item, error) {
		return b.inner.FetchChangedItems(ctx, capability, q)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRejections.WithLabelValues(b.name).Inc()
			logging.Warn().Str("connection_id", b.name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		}
		return nil, err
	}
	return items, nil
}

// RefreshToken passes through to the wrapped client when it supports
// refresh.
func (b *BreakerClient) RefreshToken(ctx context.Context, conn *models.Connection) error {
	refresher, ok := b.inner.(TokenRefresher)
	if !ok {
		return nil
	}
	return refresher.RefreshToken(ctx, conn)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
