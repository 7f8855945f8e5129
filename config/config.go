// Package config loads articlectl settings.
//
// Sources, highest priority first:
//  1. explicit --config path;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment only (cleanenv).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig points at the platform API.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"     env:"API_BASE_URL"     env-default:"http://localhost:3000/api/v1/"`
	RefreshPath string        `yaml:"refresh_path" env:"API_REFRESH_PATH" env-default:"auths/refresh-token"`
	UserAgent   string        `yaml:"user_agent"   env:"API_USER_AGENT"   env-default:"articlectl/1.0"`
	Timeout     time.Duration `yaml:"timeout"      env:"API_TIMEOUT"      env-default:"10s"`
}

// AuthConfig seeds the session when the store holds no credentials.
type AuthConfig struct {
	AccessToken  string `yaml:"access_token"  env:"AUTH_ACCESS_TOKEN"`
	RefreshToken string `yaml:"refresh_token" env:"AUTH_REFRESH_TOKEN"`
}

// StoreConfig selects where the credential pair is persisted.
type StoreConfig struct {
	Driver   string `yaml:"driver"    env:"STORE_DRIVER"    env-default:"memory"`
	RedisURL string `yaml:"redis_url" env:"STORE_REDIS_URL" env-default:"redis://localhost:6379/0"`
	Key      string `yaml:"key"       env:"STORE_KEY"       env-default:"articleapi:session"`
}

type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"     env:"CACHE_TTL"     env-default:"5m"`
	Cleanup time.Duration `yaml:"cleanup" env:"CACHE_CLEANUP" env-default:"10m"`
}

// MetricsConfig enables a Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// Validate rejects settings the client cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	return nil
}

// MustLoad panics on any load or validation error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	read := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return validated(&cfg)
	}

	if path != "" {
		return read(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return read(envPath)
	}
	if _, err := os.Stat("local.yaml"); err == nil {
		return read("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return validated(&cfg)
}

func validated(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
