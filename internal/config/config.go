// Package config loads the service settings from the environment and the
// company profile from YAML.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"jobassign/internal/opt"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMigrate   bool   `env:"DB_MIGRATE" envDefault:"true"`
	RedisURL    string `env:"REDIS_URL"`
	// CompanyProfile is a YAML file with the default company constants.
	CompanyProfile string `env:"COMPANY_PROFILE"`
	// CORSOrigins lists browser origins allowed to call the API; empty allows any.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	Rate struct {
		RPS   float64 `env:"RPS" envDefault:"20"`
		Burst int     `env:"BURST" envDefault:"40"`
	} `envPrefix:"RATE_"`

	MaxConcurrentRuns int64 `env:"MAX_CONCURRENT_RUNS" envDefault:"4"`

	Opt struct {
		MaxIterations int     `env:"MAX_ITERATIONS" envDefault:"100000"`
		Schedule      string  `env:"SCHEDULE" envDefault:"rising"`
		InitialTemp   float64 `env:"INITIAL_TEMP" envDefault:"1000"`
	} `envPrefix:"OPT_"`

	Webhook struct {
		URL         string `env:"URL"`
		Secret      string `env:"SECRET"`
		MaxAttempts uint64 `env:"MAX_ATTEMPTS" envDefault:"5"`
	} `envPrefix:"WEBHOOK_"`

	Auth struct {
		Mode        string `env:"MODE" envDefault:"header"`
		HMACSecret  string `env:"HMAC_SECRET"`
		TenantClaim string `env:"TENANT_CLAIM" envDefault:"tenant"`
	} `envPrefix:"AUTH_"`

	Log struct {
		Level  string `env:"LEVEL" envDefault:"INFO"`
		Format string `env:"FORMAT" envDefault:"text"`
	} `envPrefix:"LOG_"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			// The first error is enough to fix the environment.
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := opt.ParseSchedule(c.Opt.Schedule); err != nil {
		return err
	}
	if c.Opt.MaxIterations <= 0 {
		return fmt.Errorf("OPT_MAX_ITERATIONS must be > 0 (got %d)", c.Opt.MaxIterations)
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be > 0 (got %d)", c.MaxConcurrentRuns)
	}
	if c.Rate.RPS <= 0 || c.Rate.Burst <= 0 {
		return errors.New("RATE_RPS and RATE_BURST must be > 0")
	}
	return nil
}

// RunOptions returns the optimizer defaults this service applies to requests
// that leave them unset.
func (c *Config) RunOptions() opt.Options {
	o := opt.DefaultOptions()
	o.MaxIterations = c.Opt.MaxIterations
	o.Schedule, _ = opt.ParseSchedule(c.Opt.Schedule)
	o.InitialTemp = c.Opt.InitialTemp
	return o
}
