// Package config provides configuration loading and validation for apiguard.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kabhishek18/apiguard/internal/observability"
)

// Config is the top-level apiguard configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Admin     AdminConfig             `yaml:"admin"`
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisConfig             `yaml:"redis"`
	Auth      AuthConfig              `yaml:"auth"`
	RateLimit RateLimitConfig         `yaml:"rateLimit"`
	Audit     AuditConfig             `yaml:"audit"`
	Logging   observability.LogConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// EnforceHTTPS rejects requests that did not arrive over TLS
	// (directly or via an X-Forwarded-Proto: https proxy header).
	EnforceHTTPS bool `yaml:"enforceHTTPS"`
}

// AdminConfig configures the administrative API.
type AdminConfig struct {
	// Token is the bearer token required on /admin routes. An empty
	// token disables the admin API entirely.
	Token string `yaml:"token"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

// RedisConfig configures the distributed rate-limit counter store.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PoolSize     int           `yaml:"poolSize"`
}

// AuthConfig configures credential issuance and verification.
type AuthConfig struct {
	// HashAlgorithm is the algorithm used to hash secret keys.
	// Supported: sha256, sha512, bcrypt.
	HashAlgorithm string `yaml:"hashAlgorithm"`

	// DefaultKeyTTL is the default credential lifetime applied at
	// issuance when the request does not specify one.
	DefaultKeyTTL time.Duration `yaml:"defaultKeyTTL"`

	// EnforceIPAllowlist enables per-client IP allowlist checks.
	EnforceIPAllowlist bool `yaml:"enforceIPAllowlist"`

	// SweepInterval is the interval for the expired-credential
	// housekeeping sweep. Zero disables the sweep; expiry is always
	// also evaluated lazily at authentication time.
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// RateLimitConfig configures default per-client quotas.
type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
	DefaultPerHour   int `yaml:"defaultPerHour"`
}

// AuditConfig configures the usage logger.
type AuditConfig struct {
	// QueueSize is the capacity of the in-flight usage record queue.
	QueueSize int `yaml:"queueSize"`

	// FlushTimeout bounds the drain of pending records at shutdown.
	FlushTimeout time.Duration `yaml:"flushTimeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite3",
			DSN:          "apiguard.db",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			Prefix:       "apiguard:",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
		Auth: AuthConfig{
			HashAlgorithm: "sha256",
			DefaultKeyTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute: 60,
			DefaultPerHour:   1000,
		},
		Audit: AuditConfig{
			QueueSize:    1024,
			FlushTimeout: 5 * time.Second,
		},
		Logging: observability.DefaultLogConfig(),
	}
}

// Load reads configuration from the given YAML file, applies defaults
// and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies APIGUARD_* environment variable overrides
// for values that commonly differ per deployment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APIGUARD_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("APIGUARD_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("APIGUARD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("APIGUARD_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("APIGUARD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("APIGUARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APIGUARD_ENFORCE_HTTPS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.EnforceHTTPS = b
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}

	switch c.Database.Driver {
	case "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	switch c.Auth.HashAlgorithm {
	case "sha256", "sha512", "bcrypt":
	default:
		return fmt.Errorf("invalid hash algorithm: %s", c.Auth.HashAlgorithm)
	}
	if c.Auth.DefaultKeyTTL <= 0 {
		return errors.New("auth.defaultKeyTTL must be positive")
	}

	if c.RateLimit.DefaultPerMinute <= 0 {
		return errors.New("rateLimit.defaultPerMinute must be positive")
	}
	if c.RateLimit.DefaultPerHour <= 0 {
		return errors.New("rateLimit.defaultPerHour must be positive")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}

	if c.Audit.QueueSize <= 0 {
		return errors.New("audit.queueSize must be positive")
	}

	return nil
}
