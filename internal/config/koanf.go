// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/jervis/config.yaml",
	"/etc/jervis/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "JERVIS_CONFIG"

// envPrefix namespaces all environment overrides, e.g.
// JERVIS_SCHEDULER_TICK=30s -> scheduler.tick.
const envPrefix = "JERVIS_"

// defaultConfig returns the built-in defaults, applied before file and env
// layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8184,
			Timeout:       30 * time.Second,
			RateLimitReqs: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Dir:      "/data/jervis/store",
			InMemory: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/jervis/items.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Scheduler: SchedulerConfig{
			Tick:            30 * time.Second,
			StartupDelay:    time.Minute,
			DefaultInterval: 30 * time.Minute,
			Intervals: map[string]time.Duration{
				"bugtracker": 10 * time.Minute,
				"wiki":       30 * time.Minute,
				"repository": 30 * time.Minute,
				"email":      5 * time.Minute,
			},
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "jervis.items",
		},
		Provider: ProviderConfig{
			RatePerSecond:  5,
			RateBurst:      10,
			BreakerEnabled: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// JERVIS_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", transformEnvKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKeyMappings resolves environment names whose config paths contain
// underscores, where the generic underscore-to-dot transform is ambiguous.
var envKeyMappings = map[string]string{
	"server_rate_limit_reqs":     "server.rate_limit_reqs",
	"database_max_memory":        "database.max_memory",
	"scheduler_startup_delay":    "scheduler.startup_delay",
	"scheduler_default_interval": "scheduler.default_interval",
	"nats_subject_prefix":        "nats.subject_prefix",
	"provider_rate_per_second":   "provider.rate_per_second",
	"provider_rate_burst":        "provider.rate_burst",
	"provider_breaker_enabled":   "provider.breaker_enabled",
	"store_in_memory":            "store.in_memory",
}

// transformEnvKey maps JERVIS_SECTION_KEY to section.key, consulting the
// explicit mapping table first for multi-word keys.
func transformEnvKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if mapped, ok := envKeyMappings[key]; ok {
		return mapped
	}
	return strings.ReplaceAll(key, "_", ".")
}

// findConfigFile returns the first existing config file path, honoring the
// JERVIS_CONFIG override, or an empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
