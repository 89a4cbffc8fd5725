package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/ksred/daigou-api/internal/pricing"
	"github.com/shopspring/decimal"
)

// Config holds the process settings. Every field can be overridden through the environment.
type Config struct {
	Port  string `env:"PORT" envDefault:"8080"`
	Env   string `env:"ENV" envDefault:"development"`
	Debug bool   `env:"DEBUG" envDefault:"false"`

	// The default DSN is a shared in-memory database, nothing survives a restart
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file::memory:?cache=shared"`

	ExportDir    string `env:"EXPORT_DIR" envDefault:"assets"`
	ExportPrefix string `env:"EXPORT_PREFIX" envDefault:"Daigou"`

	DefaultRate string `env:"DEFAULT_RATE" envDefault:"0.28"`
	MinRate     string `env:"MIN_RATE" envDefault:"0.26"`
	MaxRate     string `env:"MAX_RATE" envDefault:"0.30"`

	FreeShippingThreshold int64 `env:"FREE_SHIPPING_THRESHOLD" envDefault:"3500"`

	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// RateBand is the parsed exchange-rate policy
type RateBand struct {
	Min     decimal.Decimal
	Max     decimal.Decimal
	Default decimal.Decimal
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if _, err := cfg.Rates(); err != nil {
		return nil, err
	}
	if cfg.FreeShippingThreshold < 0 {
		return nil, fmt.Errorf("free shipping threshold must not be negative, got %d", cfg.FreeShippingThreshold)
	}
	return cfg, nil
}

// Production reports whether the process runs in production mode
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Rates parses and checks the configured rate band
func (c *Config) Rates() (RateBand, error) {
	var band RateBand
	var err error

	if band.Min, err = decimal.NewFromString(c.MinRate); err != nil {
		return RateBand{}, fmt.Errorf("invalid MIN_RATE %q: %w", c.MinRate, err)
	}
	if band.Max, err = decimal.NewFromString(c.MaxRate); err != nil {
		return RateBand{}, fmt.Errorf("invalid MAX_RATE %q: %w", c.MaxRate, err)
	}
	if band.Default, err = decimal.NewFromString(c.DefaultRate); err != nil {
		return RateBand{}, fmt.Errorf("invalid DEFAULT_RATE %q: %w", c.DefaultRate, err)
	}

	if err := pricing.CheckRateBand(band.Min, band.Max, band.Default); err != nil {
		return RateBand{}, err
	}
	return band, nil
}
