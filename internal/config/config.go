//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for retail-dw.
// Configuration is loaded from a YAML config file, overridden by environment
// variables, and finally by CLI flags. CLI flags take the highest precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for retail-dw.
type Config struct {
	// Environment names the deployment environment (development, staging, production).
	Environment string `mapstructure:"environment"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat selects the log output format: console or json.
	LogFormat string `mapstructure:"log_format"`

	// Database holds warehouse connection settings.
	Database DatabaseConfig `mapstructure:"database"`

	// ETL holds pipeline settings.
	ETL ETLConfig `mapstructure:"etl"`

	// Cache holds dimension-cache and Redis query-cache settings.
	Cache CacheConfig `mapstructure:"cache"`

	// Scheduler holds scheduled-job settings.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is a full connection string. When set it takes precedence over the
	// individual host/port/name/user/password fields.
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// Schema is the warehouse schema within the database.
	Schema string `mapstructure:"schema"`

	// PoolSize is the maximum number of pooled connections.
	PoolSize int `mapstructure:"pool_size"`
}

// ETLConfig holds pipeline settings.
type ETLConfig struct {
	// BatchSize is the number of records handed to the loader at a time.
	BatchSize int `mapstructure:"batch_size"`

	// ChunkSize is the CSV read block size.
	ChunkSize int `mapstructure:"chunk_size"`

	// MaxRetries is the retry count at I/O boundaries.
	MaxRetries int `mapstructure:"max_retries"`

	// RetryDelay is the backoff base in seconds; actual delay is
	// delay * 2^attempt, capped at 30 seconds.
	RetryDelay int `mapstructure:"retry_delay"`

	// QualityThreshold is the overall quality score (percent) below which a
	// run logs a warning.
	QualityThreshold float64 `mapstructure:"quality_threshold"`

	// SampleSize is the maximum number of loaded records sampled for the
	// post-run quality evaluation.
	SampleSize int `mapstructure:"sample_size"`

	// CheckpointInterval is how many extracted records pass between
	// checkpoint snapshots.
	CheckpointInterval int `mapstructure:"checkpoint_interval"`

	// ReportInterval is how often the pipeline logs progress, in seconds.
	ReportInterval int `mapstructure:"report_interval"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// DimensionSize is the per-namespace bound of the in-process dimension cache.
	DimensionSize int `mapstructure:"dimension_size"`

	// RedisHost and RedisPort locate the optional Redis query cache.
	RedisHost string `mapstructure:"redis_host"`
	RedisPort int    `mapstructure:"redis_port"`
	RedisDB   int    `mapstructure:"redis_db"`

	// TTLSeconds is the query-cache entry lifetime.
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// SchedulerConfig holds scheduled-job settings.
type SchedulerConfig struct {
	// StorePath is the JSON file holding scheduled job definitions.
	StorePath string `mapstructure:"store_path"`

	// PollInterval is how often the scheduler checks for due jobs, in seconds.
	PollInterval int `mapstructure:"poll_interval"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		LogFormat:   "console",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "retail_dw",
			User:     "postgres",
			Schema:   "retail_dw",
			PoolSize: 20,
		},
		ETL: ETLConfig{
			BatchSize:          1000,
			ChunkSize:          1000,
			MaxRetries:         3,
			RetryDelay:         1,
			QualityThreshold:   95.0,
			SampleSize:         1000,
			CheckpointInterval: 5000,
			ReportInterval:     30,
		},
		Cache: CacheConfig{
			DimensionSize: 10000,
			RedisHost:     "localhost",
			RedisPort:     6379,
			TTLSeconds:    1800,
		},
		Scheduler: SchedulerConfig{
			StorePath:    "schedules.json",
			PollInterval: 30,
		},
	}
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"environment":       "ENVIRONMENT",
	"log_level":         "LOG_LEVEL",
	"log_format":        "LOG_FORMAT",
	"database.url":      "DATABASE_URL",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"cache.redis_host":  "REDIS_HOST",
	"cache.redis_port":  "REDIS_PORT",
}

// Load reads configuration from config files and the environment.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./retail-dw.yaml
// 3. ~/.config/retail-dw/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("retail-dw")
	v.SetConfigType("yaml")

	// Add config paths
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "retail-dw"))
	}

	// Use specific config file if provided
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Environment variables override file values
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal config file and environment values
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			d.User, d.Password, d.Host, d.Port, d.Name)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s",
		d.User, d.Host, d.Port, d.Name)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Database.ConnString() == "" {
		return fmt.Errorf("database connection is required")
	}
	if c.Database.Schema == "" {
		return fmt.Errorf("database schema is required")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'console' or 'json'")
	}
	return nil
}

// ValidateETL checks configuration required for pipeline runs.
func (c *Config) ValidateETL() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ETL.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.ETL.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1")
	}
	if c.ETL.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.ETL.SampleSize < 0 {
		return fmt.Errorf("sample_size must be non-negative")
	}
	if c.ETL.CheckpointInterval < 1 {
		return fmt.Errorf("checkpoint_interval must be at least 1")
	}
	return nil
}

// ValidateScheduler checks configuration required for the scheduler.
func (c *Config) ValidateScheduler() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Scheduler.StorePath == "" {
		return fmt.Errorf("scheduler store_path is required")
	}
	if c.Scheduler.PollInterval < 1 {
		return fmt.Errorf("scheduler poll_interval must be at least 1 second")
	}
	return nil
}
