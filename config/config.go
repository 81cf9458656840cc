// Package config loads the YAML configuration file shared by the server and
// the training CLI. Store credentials come from the environment and override
// file values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Http     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Model    ModelConfig    `yaml:"model"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DatasetConfig struct {
	Driver         string `yaml:"driver"`
	Endpoint       string `yaml:"endpoint"`
	ServiceKey     string `yaml:"service_key"`
	DSN            string `yaml:"dsn"`
	Table          string `yaml:"table"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageSize       int    `yaml:"page_size"`
	MaxRetries     int    `yaml:"max_retries"`
}

type ModelConfig struct {
	Path      string `yaml:"path"`
	Trees     int    `yaml:"trees"`
	Seed      int64  `yaml:"seed"`
	MaxDepth  int    `yaml:"max_depth"`
	CacheSize int    `yaml:"cache_size"`
}

// Load reads the config file, fills defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = 8080
	}
	if c.Http.TimeoutSeconds <= 0 {
		c.Http.TimeoutSeconds = 120
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Dataset.Driver == "" {
		c.Dataset.Driver = "postgrest"
	}
	if c.Dataset.Table == "" {
		c.Dataset.Table = "scrap_prices"
	}
	if c.Dataset.TimeoutSeconds <= 0 {
		c.Dataset.TimeoutSeconds = 30
	}
	if c.Dataset.PageSize <= 0 {
		c.Dataset.PageSize = 1000
	}
	if c.Dataset.MaxRetries <= 0 {
		c.Dataset.MaxRetries = 5
	}
	if c.Model.Path == "" {
		c.Model.Path = "models/scrap_price_model.json"
	}
	if c.Model.Trees <= 0 {
		c.Model.Trees = 300
	}
	if c.Model.Seed == 0 {
		c.Model.Seed = 42
	}
	if c.Model.CacheSize <= 0 {
		c.Model.CacheSize = 1024
	}
}

// applyEnv pulls store credentials from the environment. A set variable wins
// over the file so secrets never have to live in config.yaml.
func (c *Config) applyEnv() {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Dataset.Endpoint = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		c.Dataset.ServiceKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Dataset.DSN = v
	}
}

func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DatasetConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
