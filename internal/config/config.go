package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config carries the process configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Fees     FeesConfig     `mapstructure:"fees"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig configures the ops HTTP server (health + metrics)
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig configures the Postgres connection pool
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// FeesConfig identifies the system account whose wallets collect protocol fees.
// Injected here so the engines never look it up by a well-known handle at runtime.
type FeesConfig struct {
	AccountID string `mapstructure:"account_id"`
}

// FeeAccountID parses the configured fee-sink account id
func (f FeesConfig) FeeAccountID() (uuid.UUID, error) {
	id, err := uuid.Parse(f.AccountID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid fees.account_id %q: %w", f.AccountID, err)
	}
	return id, nil
}

// LoadConfig reads config.yaml (working dir, ./configs, /etc/peerex) merged with
// PEEREX_-prefixed environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/peerex")

	v.SetEnvPrefix("PEEREX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("fees.account_id", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if cfg.Fees.AccountID == "" {
		return nil, fmt.Errorf("fees.account_id is required")
	}
	if _, err := cfg.Fees.FeeAccountID(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
