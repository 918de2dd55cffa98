// Package config loads gateway configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the gateway process. Values are read once at
// startup and treated as immutable afterwards.
type Config struct {
	Addr string `env:"CLEARGATE_ADDR" envDefault:":8080"`

	// AuthSecret signs access and refresh tokens. It is the sole root of
	// trust for the token layer and must never leave this process.
	AuthSecret string `env:"CLEARGATE_AUTH_SECRET"`

	// ServiceSecret authenticates backend workers on the internal API.
	ServiceSecret string `env:"CLEARGATE_SERVICE_SECRET"`

	PostgresDSN string `env:"CLEARGATE_PG_DSN"`

	// RoutesPath points at the JSON route table mapping slugs to backends.
	RoutesPath string `env:"CLEARGATE_ROUTES" envDefault:"routes.json"`

	// SecureCookies should only be disabled for local development.
	SecureCookies bool `env:"CLEARGATE_SECURE_COOKIES" envDefault:"true"`

	AccessTTL  time.Duration `env:"CLEARGATE_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"CLEARGATE_REFRESH_TTL" envDefault:"168h"`

	LoginRateBurst  int `env:"CLEARGATE_LOGIN_RATE_BURST" envDefault:"10"`
	LoginRatePerSec int `env:"CLEARGATE_LOGIN_RATE_PER_SEC" envDefault:"2"`
}

// Load parses and validates configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants the rest of the gateway assumes.
func (c Config) Validate() error {
	if c.AuthSecret == "" {
		return errors.New("config: CLEARGATE_AUTH_SECRET is required")
	}
	if c.ServiceSecret == "" {
		return errors.New("config: CLEARGATE_SERVICE_SECRET is required")
	}
	if c.AuthSecret == c.ServiceSecret {
		return errors.New("config: auth and service secrets must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	return nil
}
