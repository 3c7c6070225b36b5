package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration, matching config/config.yaml.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Postgres  PostgresConfig            `mapstructure:"postgres"`
	Catalog   CatalogConfig             `mapstructure:"catalog"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug/release/test
}

// PostgresConfig is the record store connection configuration.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CatalogConfig bounds the query and dedup paths.
type CatalogConfig struct {
	// ScanCeiling caps the working set of the tag/name full-scan path and of
	// facet rebuilds, keeping latency independent of store size.
	ScanCeiling int `mapstructure:"scan_ceiling"`
	// ScanChunkSize is the chunk between cooperative cancellation checks.
	ScanChunkSize int `mapstructure:"scan_chunk_size"`
	// MaxPageSize is the hard pagination ceiling.
	MaxPageSize int `mapstructure:"max_page_size"`
	// DuplicateRadiusM is the coordinate distance under which two records
	// with similar names from different providers raise a duplicate advisory.
	DuplicateRadiusM float64 `mapstructure:"duplicate_radius_m"`
}

// ProviderConfig is one provider's fetch configuration.
type ProviderConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Timeout       int    `mapstructure:"timeout"` // seconds
	RetryCount    int    `mapstructure:"retry_count"`
	BackoffBaseMS int    `mapstructure:"backoff_base_ms"`
	AuthToken     string `mapstructure:"auth_token"`
	Proxy         string `mapstructure:"proxy"`
}

// LoadConfig reads config/config.yaml; secrets are overridden from the
// environment (.env is loaded when present, never committed).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("catalog.scan_ceiling", 15000)
	viper.SetDefault("catalog.scan_chunk_size", 500)
	viper.SetDefault("catalog.max_page_size", 100)
	viper.SetDefault("catalog.duplicate_radius_m", 50)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// overrideFromEnv applies env overrides for secrets (priority env > yaml).
func overrideFromEnv(cfg *Config) {
	if p, ok := cfg.Providers["geoscout"]; ok {
		if v := os.Getenv("GEOSCOUT_AUTH_TOKEN"); v != "" {
			p.AuthToken = v
		}
		if v := os.Getenv("GEOSCOUT_PROXY"); v != "" {
			p.Proxy = v
		}
		cfg.Providers["geoscout"] = p
	}
	if p, ok := cfg.Providers["cityindex"]; ok {
		if v := os.Getenv("CITYINDEX_AUTH_TOKEN"); v != "" {
			p.AuthToken = v
		}
		if v := os.Getenv("CITYINDEX_PROXY"); v != "" {
			p.Proxy = v
		}
		cfg.Providers["cityindex"] = p
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}
