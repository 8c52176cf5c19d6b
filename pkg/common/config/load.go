package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads a YAML config, expands ${VAR} references from the environment,
// fills unset fields from Defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// apply defaults
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if _, ok := cfg.Rebate.Markets[cfg.Rebate.DefaultMarket]; !ok {
		return fmt.Errorf("default market %q has no pool rate", cfg.Rebate.DefaultMarket)
	}
	if cfg.Control.SnapLow >= cfg.Control.SnapHigh {
		return fmt.Errorf("control snap_low %.2f must be below snap_high %.2f",
			cfg.Control.SnapLow, cfg.Control.SnapHigh)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("engine timezone: %w", err)
	}
	switch cfg.Storage.Type {
	case "postgres":
		if cfg.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required")
		}
	case "badger":
		if cfg.Storage.Badger.Directory == "" && !cfg.Storage.Badger.InMemory {
			return fmt.Errorf("storage.badger.directory is required unless in_memory")
		}
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.Redis.URL == "" {
		return fmt.Errorf("cache.redis.url is required")
	}
	return nil
}
