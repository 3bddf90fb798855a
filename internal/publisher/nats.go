// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package publisher announces stored item changes on NATS so downstream
// processing pipelines can react without polling the item store.
package publisher

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/JanDamek/jervis-sub013/internal/config"
	"github.com/JanDamek/jervis-sub013/internal/logging"
	"github.com/JanDamek/jervis-sub013/internal/metrics"
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/goccy/go-json"
)

// ItemEvent is the wire payload published per created or updated item.
type ItemEvent struct {
	ConnectionID string            `json:"connection_id"`
	Capability   models.Capability `json:"capability"`
	ExternalKey  string            `json:"external_key"`
	Ordinal      int64             `json:"ordinal"`
	Created      bool              `json:"created"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// NATSPublisher publishes item events. Publishing is best effort: a failed
// publish is logged and counted but never fails the poll, the item store
// remains the source of truth.
type NATSPublisher struct {
	nc            *natsgo.Conn
	subjectPrefix string
}

// New connects to NATS and returns a publisher. Returns (nil, nil) when
// publishing is disabled in the configuration; callers treat a nil
// publisher as a no-op.
func New(cfg config.NATSConfig) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	nc, err := natsgo.Connect(cfg.URL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(10),
		natsgo.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logging.Info().Str("url", cfg.URL).Str("subject_prefix", cfg.SubjectPrefix).Msg("NATS item publisher connected")
	return &NATSPublisher{nc: nc, subjectPrefix: cfg.SubjectPrefix}, nil
}

// PublishItem emits one item event on <prefix>.<capability>.<connection>.
func (p *NATSPublisher) PublishItem(ctx context.Context, connectionID string, item models.Item, created bool) error {
	event := ItemEvent{
		ConnectionID: connectionID,
		Capability:   item.Capability(),
		ExternalKey:  item.ExternalKey(),
		Ordinal:      item.Ordinal(),
		Created:      created,
		OccurredAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("encode item event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, item.Capability(), connectionID)
	if err := p.nc.Publish(subject, data); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Close drains the connection so queued events flush before shutdown.
func (p *NATSPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		logging.Warn().Err(err).Msg("NATS drain failed")
		p.nc.Close()
	}
}
