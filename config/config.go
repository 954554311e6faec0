package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication and token configuration
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
type AppConfig struct {
	// Mode selects the runtime environment. The dev-bypass token is only
	// honored when Mode is not RuntimeModeProduction.
	Mode RuntimeMode `env:"RUNTIME_MODE" envDefault:"production"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Auth.Sanitize()

	// NODE_ENV is honored as a fallback because the frontend tooling and the
	// previous deployment of this system keyed off it.
	c.detectNodeEnv()
}

// detectNodeEnv downgrades the runtime mode when NODE_ENV indicates a
// non-production deployment and RUNTIME_MODE was left at its default.
func (c *AppConfig) detectNodeEnv() {
	if c.Mode != RuntimeModeProduction {
		return
	}
	switch strings.ToLower(os.Getenv("NODE_ENV")) {
	case "development", "dev":
		c.Mode = RuntimeModeDevelopment
	case "test":
		c.Mode = RuntimeModeTest
	}
}

// IsProduction returns true when the service runs in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.Mode == RuntimeModeProduction
}
