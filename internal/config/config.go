// Package config loads the gateway's startup configuration: a YAML file
// overlaid by environment variables, mirroring the teacher's cmd/main.go
// getEnv/getEnvInt helpers (env always wins over file, file wins over
// built-in defaults) and internal/cache.go's boolean "Enabled" gate for an
// optional subsystem — here applied to whether the NATS transport is
// configured at all (SPEC_FULL.md AMBIENT STACK, "Configuration").
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/fieldmesh/iiotgw/internal/transport"
)

// Config is the gateway process's complete startup configuration.
type Config struct {
	// PluginDir names the directory for dynamic plugin libraries, mirroring
	// the teacher's PLUGIN_DIR env var. cmd/gatewayd only logs it at
	// startup; it does not scan it or load libraries from it.
	PluginDir string `yaml:"plugin_dir"`

	// TemplateDir, if set, is scanned for *.yaml template definitions loaded
	// via LoadTemplateFile at startup (SPEC_FULL.md §4.3 supplemental).
	TemplateDir string `yaml:"template_dir"`

	// NATS configures the transport binding. Leaving URL empty runs the
	// gateway with transport disabled (degrades gracefully rather than
	// failing startup), matching internal/transport/nats.go's fallback.
	NATS transport.NATSConfig `yaml:"nats"`

	// LogLevel is parsed by the caller into a zerolog.Level.
	LogLevel string `yaml:"log_level"`

	// ShutdownTimeoutSeconds bounds graceful shutdown, mirroring the
	// teacher's SHUTDOWN_TIMEOUT env var / 30s default.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// Default returns the built-in configuration baseline, overridden first by
// an optional YAML file and then by environment variables.
func Default() Config {
	return Config{
		PluginDir:              "./plugins",
		TemplateDir:            "",
		NATS:                   transport.NATSConfig{},
		LogLevel:               "info",
		ShutdownTimeoutSeconds: 30,
	}
}

// Load builds a Config starting from Default(), applying path (if
// non-empty and readable) as a YAML overlay, then applying environment
// variable overrides on top. A missing path is not an error — the gateway
// runs on defaults/env alone, the same tolerance the teacher's cache config
// gives an absent Redis host.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.PluginDir = getEnv("GATEWAY_PLUGIN_DIR", cfg.PluginDir)
	cfg.TemplateDir = getEnv("GATEWAY_TEMPLATE_DIR", cfg.TemplateDir)
	cfg.NATS.URL = getEnv("GATEWAY_NATS_URL", cfg.NATS.URL)
	cfg.NATS.User = getEnv("GATEWAY_NATS_USER", cfg.NATS.User)
	cfg.NATS.Password = getEnv("GATEWAY_NATS_PASSWORD", cfg.NATS.Password)
	cfg.LogLevel = getEnv("GATEWAY_LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeoutSeconds = getEnvInt("GATEWAY_SHUTDOWN_TIMEOUT_SECONDS", cfg.ShutdownTimeoutSeconds)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
