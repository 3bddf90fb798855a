// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package metrics provides Prometheus instrumentation for the sync
// scheduler: poll cycle throughput, per-capability item counters, cursor
// advancement, lock contention and circuit breaker state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll cycle metrics

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_polls_total",
			Help: "Total number of per-connection polls by result",
		},
		[]string{"result"}, // "ok", "error", "auth_failure"
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_poll_duration_seconds",
			Help:    "Duration of one connection poll in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Duration of one full scheduler cycle in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	LockSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_lock_skips_total",
			Help: "Polls skipped because a previous poll was still in flight",
		},
	)

	// Item metrics

	ItemsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_discovered_total",
			Help: "Items returned by providers, by capability",
		},
		[]string{"capability"},
	)

	ItemsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_created_total",
			Help: "Newly stored items, by capability",
		},
		[]string{"capability"},
	)

	ItemsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_updated_total",
			Help: "Changed items overwritten in the store, by capability",
		},
		[]string{"capability"},
	)

	ItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_skipped_total",
			Help: "Unchanged items skipped, by capability",
		},
		[]string{"capability"},
	)

	ItemErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_item_errors_total",
			Help: "Per-item upsert failures, by capability",
		},
		[]string{"capability"},
	)

	// Cursor metrics

	CursorAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_cursor_advances_total",
			Help: "Cursor writes that moved a position forward, by handler",
		},
		[]string{"handler"},
	)

	// Health metrics

	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_escalations_total",
			Help: "Escalation records created for invalid connections",
		},
	)

	ConnectionsInvalid = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_connections_invalid",
			Help: "Connections currently in INVALID state",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_circuit_breaker_state",
			Help: "Circuit breaker state per connection (0=closed, 1=half-open, 2=open)",
		},
		[]string{"connection"},
	)

	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_circuit_breaker_rejections_total",
			Help: "Provider calls rejected by an open circuit breaker",
		},
		[]string{"connection"},
	)

	// Event publishing metrics

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_published_total",
			Help: "Discovered-item events published to NATS, by result",
		},
		[]string{"result"}, // "ok", "error"
	)
)

// ObservePoll records one poll's outcome counters.
func ObservePoll(duration time.Duration, errored, authFailure bool) {
	PollDuration.Observe(duration.Seconds())
	switch {
	case authFailure:
		PollsTotal.WithLabelValues("auth_failure").Inc()
	case errored:
		PollsTotal.WithLabelValues("error").Inc()
	default:
		PollsTotal.WithLabelValues("ok").Inc()
	}
}
