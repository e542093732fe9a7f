// Package config loads the server configuration from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration. Treat it as read-only once loaded.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	TLSCertFile   string `yaml:"tls_cert"`
	TLSKeyFile    string `yaml:"tls_key"`
	LogLevel      string `yaml:"log_level"`
	ShortIDLength int    `yaml:"short_id_length"`
	PasswordCost  int    `yaml:"password_cost"`

	Store    StoreConfig    `yaml:"store"`
	Sharing  SharingConfig  `yaml:"sharing"`
	Expiry   ExpiryConfig   `yaml:"expiry"`
	Requests RequestsConfig `yaml:"requests"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

type StoreConfig struct {
	Type          string      `yaml:"type"` // memory, postgres or redis
	DBUrl         string      `yaml:"db_url"`
	MigrationsDir string      `yaml:"migrations_dir"`
	Redis         RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SharingConfig sets the threshold scheme: Shares produced, Threshold needed to rebuild.
type SharingConfig struct {
	Shares    int `yaml:"shares"`
	Threshold int `yaml:"threshold"`
}

// ExpiryConfig holds the per-unit ceilings for secret lifetimes.
type ExpiryConfig struct {
	MaxMinutes int `yaml:"max_minutes"`
	MaxHours   int `yaml:"max_hours"`
	MaxDays    int `yaml:"max_days"`
}

type RequestsConfig struct {
	MaxPeriod int `yaml:"max_period"` // minutes
}

type SweepConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Requests   bool          `yaml:"requests"`
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		LogLevel:      "info",
		ShortIDLength: 8,
		PasswordCost:  10,
		Store: StoreConfig{
			Type:          "memory",
			MigrationsDir: "migrations",
			Redis:         RedisConfig{Addr: "localhost:6379"},
		},
		Sharing:  SharingConfig{Shares: 5, Threshold: 5},
		Expiry:   ExpiryConfig{MaxMinutes: 60, MaxHours: 24, MaxDays: 7},
		Requests: RequestsConfig{MaxPeriod: 24 * 60},
		Sweep:    SweepConfig{Interval: time.Minute},
	}
}

// Load reads path over the defaults (a missing file is not an error) and applies
// environment overrides. The returned bool reports whether the file was found.
func Load(path string) (Config, bool, error) {
	cfg := Default()
	found := false
	if data, err := os.ReadFile(path); err == nil {
		found = true
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, found, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, false, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, found, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, found, err
	}
	return cfg, found, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SECRETSHARE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SECRETSHARE_STORE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("SECRETSHARE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DBUrl = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("SECRETSHARE_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SECRETSHARE_SWEEP_INTERVAL: %w", err)
		}
		c.Sweep.Interval = d
	}
	if v := os.Getenv("SECRETSHARE_SHARES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SECRETSHARE_SHARES: %w", err)
		}
		c.Sharing.Shares = n
	}
	if v := os.Getenv("SECRETSHARE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SECRETSHARE_THRESHOLD: %w", err)
		}
		c.Sharing.Threshold = n
	}
	return nil
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	switch c.Store.Type {
	case "memory", "redis":
	case "postgres":
		if c.Store.DBUrl == "" {
			return errors.New("store.db_url must be configured (or DATABASE_URL env var) for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Sharing.Threshold < 2 || c.Sharing.Threshold > c.Sharing.Shares || c.Sharing.Shares > 255 {
		return fmt.Errorf("sharing: need 2 <= threshold (%d) <= shares (%d) <= 255", c.Sharing.Threshold, c.Sharing.Shares)
	}
	if c.ShortIDLength < 4 {
		return errors.New("short_id_length must be at least 4")
	}
	if c.Expiry.MaxMinutes < 1 || c.Expiry.MaxHours < 1 || c.Expiry.MaxDays < 1 {
		return errors.New("expiry ceilings must be positive")
	}
	if c.Requests.MaxPeriod < 1 {
		return errors.New("requests.max_period must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("sweep.interval must be positive")
	}
	return nil
}
