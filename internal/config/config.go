// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

// Package config loads service configuration with Koanf v2 using layered
// sources: built-in defaults, then an optional YAML file, then environment
// variables. Precedence is ENV > file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the sync service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Store     StoreConfig     `koanf:"store"`
	Database  DatabaseConfig  `koanf:"database"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	NATS      NATSConfig      `koanf:"nats"`
	Provider  ProviderConfig  `koanf:"provider"`
}

// ServerConfig configures the admin/observability HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
	// RateLimitReqs is the per-IP request budget per minute for the API.
	RateLimitReqs int `koanf:"rate_limit_reqs" validate:"min=1"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig configures the BadgerDB metadata store (connections, tenant
// scopes, cursors, escalations).
type StoreConfig struct {
	Dir string `koanf:"dir" validate:"required"`
	// InMemory runs Badger without disk persistence. Tests only.
	InMemory bool `koanf:"in_memory"`
}

// DatabaseConfig configures the DuckDB discovered-item store.
type DatabaseConfig struct {
	// Path is the database file. An empty path opens an in-memory database.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads limits DuckDB worker threads; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`
}

// SchedulerConfig configures the poll cycle.
type SchedulerConfig struct {
	// Tick is how often the scheduler wakes to check eligibility.
	Tick time.Duration `koanf:"tick" validate:"required"`

	// StartupDelay postpones the first cycle after process start.
	StartupDelay time.Duration `koanf:"startup_delay"`

	// DefaultInterval gates capabilities with no configured interval.
	DefaultInterval time.Duration `koanf:"default_interval" validate:"required"`

	// Intervals maps a capability name (lowercase) to its poll interval,
	// e.g. bugtracker: 10m. Unlisted capabilities use DefaultInterval.
	Intervals map[string]time.Duration `koanf:"intervals"`
}

// IntervalFor returns the configured poll interval for a capability name,
// falling back to DefaultInterval. Capability constants are uppercase while
// the Intervals map is keyed lowercase, so the lookup normalizes.
func (s SchedulerConfig) IntervalFor(capability string) time.Duration {
	if d, ok := s.Intervals[strings.ToLower(capability)]; ok && d > 0 {
		return d
	}
	return s.DefaultInterval
}

// NATSConfig configures the optional discovered-item event publisher.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"required_if=Enabled true"`
	// SubjectPrefix prefixes published subjects, e.g. jervis.items.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ProviderConfig tunes the resilience wrappers around provider clients.
type ProviderConfig struct {
	// RatePerSecond caps provider requests per connection; 0 disables the
	// limiter.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"min=0"`
	RateBurst     int     `koanf:"rate_burst" validate:"min=0"`

	// BreakerEnabled wraps each provider client in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive")
	}
	if c.Scheduler.DefaultInterval <= 0 {
		return fmt.Errorf("scheduler.default_interval must be positive")
	}
	for name, d := range c.Scheduler.Intervals {
		if d <= 0 {
			return fmt.Errorf("scheduler.intervals.%s must be positive", name)
		}
	}
	return nil
}
