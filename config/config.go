/*
Package config loads server configuration.

PURPOSE:
  Defaults, then an optional TOML file, then environment variables.
  Environment always wins so deployments can override a checked-in
  file without editing it.

ENVIRONMENT VARIABLES:
  LOYALTY_PORT, LOYALTY_DB_PATH, LOYALTY_STORE_URL,
  LOYALTY_SETTLEMENT_INTERVAL, LOYALTY_SETTLEMENT_ENABLED,
  LOYALTY_REDIS_ADDR, LOYALTY_REDIS_PASSWORD, LOYALTY_REDIS_DB,
  LOYALTY_CACHE_TTL, LOYALTY_DEBUG
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML duration strings like "5m" or "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for toml.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Settlement SettlementConfig `toml:"settlement"`
	Redis      RedisConfig      `toml:"redis"`
	Debug      bool             `toml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `toml:"port"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SettlementConfig holds the external store client and scheduler
// settings.
type SettlementConfig struct {
	StoreURL string        `toml:"store_url"`
	Interval Duration      `toml:"interval"`
	Enabled  bool          `toml:"enabled"`
}

// RedisConfig holds the cache backend settings. An empty Addr selects
// the in-memory cache.
type RedisConfig struct {
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	TTL      Duration      `toml:"ttl"`
}

// Load builds the configuration. path may be empty; a missing file at
// an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "./data/loyalty.db"},
		Settlement: SettlementConfig{
			StoreURL: "http://localhost:9000",
			Interval: Duration(5 * time.Minute),
			Enabled:  true,
		},
		Redis: RedisConfig{TTL: Duration(time.Minute)},
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("LOYALTY_PORT", cfg.Server.Port)
	cfg.Database.Path = getEnv("LOYALTY_DB_PATH", cfg.Database.Path)
	cfg.Settlement.StoreURL = getEnv("LOYALTY_STORE_URL", cfg.Settlement.StoreURL)
	cfg.Settlement.Interval = getEnvDuration("LOYALTY_SETTLEMENT_INTERVAL", cfg.Settlement.Interval)
	cfg.Settlement.Enabled = getEnvBool("LOYALTY_SETTLEMENT_ENABLED", cfg.Settlement.Enabled)
	cfg.Redis.Addr = getEnv("LOYALTY_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("LOYALTY_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("LOYALTY_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TTL = getEnvDuration("LOYALTY_CACHE_TTL", cfg.Redis.TTL)
	cfg.Debug = getEnvBool("LOYALTY_DEBUG", cfg.Debug)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
