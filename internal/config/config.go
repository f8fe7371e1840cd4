// Package config loads process configuration from environment variables.
//
// PostgreSQL connection settings follow the standard libpq variables:
//   - DATABASE_URL: Full connection string (overrides all other variables)
//   - PGHOST: Database host (default: localhost)
//   - PGPORT: Database port (default: 5432)
//   - PGUSER: Database user (default: postgres)
//   - PGPASSWORD: Database password (default: postgres)
//   - PGDATABASE: Database name (default: postgres)
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting read by the numalloc binaries and test helpers.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      string `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"postgres"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"postgres"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"postgres"`

	// HTTPAddr is the listen address of the request gateway.
	HTTPAddr string `env:"NUMALLOC_HTTP_ADDR" envDefault:":8080"`

	// RedisAddr enables the consultant directory and claim idempotency keys.
	// Both are disabled when it is empty.
	RedisAddr     string `env:"NUMALLOC_REDIS_ADDR"`
	RedisPassword string `env:"NUMALLOC_REDIS_PASSWORD"`
	RedisDB       int    `env:"NUMALLOC_REDIS_DB" envDefault:"0"`

	MaxClaimCount    int32         `env:"NUMALLOC_MAX_CLAIM" envDefault:"100"`
	OperationTimeout time.Duration `env:"NUMALLOC_OP_TIMEOUT" envDefault:"5s"`
	LockTimeout      time.Duration `env:"NUMALLOC_LOCK_TIMEOUT" envDefault:"2s"`
	AllowReset       bool          `env:"NUMALLOC_ALLOW_RESET" envDefault:"false"`

	OTelEndpoint string `env:"NUMALLOC_OTEL_ENDPOINT"`
	TraceStdout  bool   `env:"NUMALLOC_TRACE_STDOUT" envDefault:"false"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// ConnString returns the PostgreSQL connection string described by c.
func (c Config) ConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     c.PGHost + ":" + c.PGPort,
		Path:     "/" + c.PGDatabase,
		RawQuery: "sslmode=disable",
	}
	if c.PGPassword != "" {
		u.User = url.UserPassword(c.PGUser, c.PGPassword)
	} else {
		u.User = url.User(c.PGUser)
	}
	return u.String()
}
