// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package config loads and validates Accessd configuration using koanf.
//
// Configuration layers, later layers override earlier ones:
//
//  1. Built-in defaults (structs provider)
//  2. YAML config file (file provider), first match of DefaultConfigPaths
//     or the path in ACCESSD_CONFIG
//  3. Environment variables (env provider, ACCESSD_ prefix, "__" as the
//     section separator: ACCESSD_SERVER__PORT=9000 sets server.port)
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

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/accessd/config.yaml",
	"/etc/accessd/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "ACCESSD_CONFIG"

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "ACCESSD_"

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	NATS         NATSConfig         `koanf:"nats"`
	Database     DatabaseConfig     `koanf:"database"`
	Registry     RegistryConfig     `koanf:"registry"`
	Access       AccessConfig       `koanf:"access"`
	RelayGateway RelayGatewayConfig `koanf:"relay_gateway"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               int           `koanf:"port"`
	ReadTimeout        time.Duration `koanf:"read_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig configures the broker connection of the Ingestion Gateway.
//
// MaxReconnects bounds the client's reconnect attempts per disconnect.
// Exhausting the bound closes the connection; the gateway logs it and the
// supervisor restarts the gateway service, which starts a fresh retry
// cycle, so the bound is never fatal to the process.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	EmbeddedHost   string        `koanf:"embedded_host"`
	EmbeddedPort   int           `koanf:"embedded_port"`
	TapSubject     string        `koanf:"tap_subject"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// DatabaseConfig selects and configures the persistence store.
type DatabaseConfig struct {
	// Driver is "duckdb" or "memory". Memory is for dev and tests only.
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
	// SeedDemo populates an empty store with demo rows at startup.
	SeedDemo bool `koanf:"seed_demo"`
}

// RegistryConfig configures the Arrival & Session Registry.
type RegistryConfig struct {
	// TapTTL is how long an unclaimed tap stays claimable.
	TapTTL time.Duration `koanf:"tap_ttl"`
	// DefaultWaitTimeout applies when a wait request omits timeout_ms.
	DefaultWaitTimeout time.Duration `koanf:"default_wait_timeout"`
	// MaxWaitTimeout clamps client-supplied timeouts.
	MaxWaitTimeout time.Duration `koanf:"max_wait_timeout"`
	// SweepInterval is the janitor period for expired taps.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// AccessConfig configures the Access Decision Engine.
type AccessConfig struct {
	// ToggleWindow is the maximum age of an "entrada" record for the next
	// tap to be classified as "saida".
	ToggleWindow time.Duration `koanf:"toggle_window"`
	// AllowWithoutReservation skips the reservation check entirely.
	// Test environments only; must stay false in any deployment.
	AllowWithoutReservation bool `koanf:"allow_without_reservation"`
}

// RelayGatewayConfig configures the hardware relay gateway client.
type RelayGatewayConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// RatePerSecond paces commands toward the gateway; Burst allows a
	// short initial burst for multi-relay activations.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
	// Circuit breaker settings.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
	// TelemetrySettleDelay is the wait before synthesizing a telemetry
	// sample after a successful command.
	TelemetrySettleDelay time.Duration `koanf:"telemetry_settle_delay"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       150 * time.Second, // must exceed max_wait_timeout
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 300,
			CORSAllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			TapSubject:     "totem.rfid.*",
			MaxReconnects:  60,
			ReconnectWait:  2 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "duckdb",
			Path:     "/data/accessd.duckdb",
			SeedDemo: false,
		},
		Registry: RegistryConfig{
			TapTTL:             60 * time.Second,
			DefaultWaitTimeout: 30 * time.Second,
			MaxWaitTimeout:     120 * time.Second,
			SweepInterval:      30 * time.Second,
		},
		Access: AccessConfig{
			ToggleWindow:            4 * time.Hour,
			AllowWithoutReservation: false,
		},
		RelayGateway: RelayGatewayConfig{
			BaseURL:                 "http://127.0.0.1:8090",
			Timeout:                 5 * time.Second,
			RatePerSecond:           10,
			Burst:                   8,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
			TelemetrySettleDelay:    1500 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, an optional config file and
// environment overrides, then validates it.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// ACCESSD_SERVER__PORT -> server.port
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the ACCESSD_CONFIG path or the first existing
// default path, or "" when none exists.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 1 {
		return fmt.Errorf("server.rate_limit_per_minute must be positive")
	}
	switch c.Database.Driver {
	case "duckdb", "memory":
	default:
		return fmt.Errorf("database.driver %q unsupported (duckdb, memory)", c.Database.Driver)
	}
	if c.Database.Driver == "duckdb" && c.Database.Path == "" {
		return fmt.Errorf("database.path required for duckdb driver")
	}
	if c.NATS.TapSubject == "" {
		return fmt.Errorf("nats.tap_subject must not be empty")
	}
	if c.Registry.TapTTL <= 0 {
		return fmt.Errorf("registry.tap_ttl must be positive")
	}
	if c.Registry.DefaultWaitTimeout <= 0 || c.Registry.MaxWaitTimeout <= 0 {
		return fmt.Errorf("registry wait timeouts must be positive")
	}
	if c.Registry.DefaultWaitTimeout > c.Registry.MaxWaitTimeout {
		return fmt.Errorf("registry.default_wait_timeout exceeds max_wait_timeout")
	}
	if c.Access.ToggleWindow <= 0 {
		return fmt.Errorf("access.toggle_window must be positive")
	}
	if c.RelayGateway.BaseURL == "" {
		return fmt.Errorf("relay_gateway.base_url must not be empty")
	}
	if c.RelayGateway.Timeout <= 0 {
		return fmt.Errorf("relay_gateway.timeout must be positive")
	}
	if c.RelayGateway.RatePerSecond <= 0 || c.RelayGateway.Burst < 1 {
		return fmt.Errorf("relay_gateway rate limiting must be positive")
	}
	if c.Server.WriteTimeout <= c.Registry.MaxWaitTimeout {
		return fmt.Errorf("server.write_timeout must exceed registry.max_wait_timeout")
	}
	return nil
}
