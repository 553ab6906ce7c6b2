package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds connection settings for the dispatch API.
type ServerConfig struct {
	// BaseURL is the root URL of the dispatch server.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec is the per-request timeout in seconds.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SyncConfig holds background synchronization settings.
type SyncConfig struct {
	// IntervalMin is how often (in minutes) the background job runs a
	// replay-then-refresh cycle while online.
	IntervalMin int `mapstructure:"interval_min" yaml:"interval_min"`

	// ProbeIntervalSec is how often (in seconds) connectivity is probed.
	ProbeIntervalSec int `mapstructure:"probe_interval_sec" yaml:"probe_interval_sec"`

	// PageSize is the listing page size used during a full refresh.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// MaxCycleAttempts caps the per-cycle retry count before the cycle
	// reports permanent failure and waits for the next trigger.
	MaxCycleAttempts int `mapstructure:"max_cycle_attempts" yaml:"max_cycle_attempts"`
}

// LogConfig holds daemon log file settings (rotation via lumberjack).
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`

	// DBPath is the location of the local cache database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/fieldworker/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "fieldworker", "config.yaml")
}

// DefaultDBPath returns the default location of the local cache database.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "fieldworker.db")
	}
	return filepath.Join(home, ".local", "share", "fieldworker", "fieldworker.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8000",
			TimeoutSec: 30,
		},
		Sync: SyncConfig{
			IntervalMin:      15,
			ProbeIntervalSec: 30,
			PageSize:         100,
			MaxCycleAttempts: 3,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		DBPath: DefaultDBPath(),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.timeout_sec", 30)
	v.SetDefault("sync.interval_min", 15)
	v.SetDefault("sync.probe_interval_sec", 30)
	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.max_cycle_attempts", 3)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("db_path", DefaultDBPath())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveConfig writes the configuration back to the given path as YAML,
// creating parent directories as needed.
func SaveConfig(cfg *AppConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", map[string]interface{}{
		"base_url":    cfg.Server.BaseURL,
		"timeout_sec": cfg.Server.TimeoutSec,
	})
	v.Set("sync", map[string]interface{}{
		"interval_min":       cfg.Sync.IntervalMin,
		"probe_interval_sec": cfg.Sync.ProbeIntervalSec,
		"page_size":          cfg.Sync.PageSize,
		"max_cycle_attempts": cfg.Sync.MaxCycleAttempts,
	})
	v.Set("log", map[string]interface{}{
		"file":         cfg.Log.File,
		"max_size_mb":  cfg.Log.MaxSizeMB,
		"max_backups":  cfg.Log.MaxBackups,
		"max_age_days": cfg.Log.MaxAgeDays,
	})
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}

	return nil
}
