// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins; a missing
// file yields defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	Ads     AdsConfig     `yaml:"ads"`
	Trends  TrendsConfig  `yaml:"trends"`
	Queue   QueueConfig   `yaml:"queue"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Workers int    `yaml:"workers"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// CacheConfig controls the keyword cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	FilePath   string        `yaml:"file_path"`
}

// RedisConfig controls the Redis backend.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// AdsConfig carries the ad-platform credentials.
type AdsConfig struct {
	DeveloperToken string `yaml:"developer_token"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RefreshToken   string `yaml:"refresh_token"`
	CustomerID     string `yaml:"customer_id"`
}

// TrendsConfig controls the trends adapter.
type TrendsConfig struct {
	HourlyLimit  int    `yaml:"hourly_limit"`
	ProgressFile string `yaml:"progress_file"`
}

// QueueConfig controls the async job queue.
type QueueConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	BatchDelay    time.Duration `yaml:"batch_delay"`
}

// UnmarshalYAML parses duration fields from strings like "1h30m",
// leaving omitted fields at their defaults.
func (c *CacheConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		TTL        string `yaml:"ttl"`
		MaxEntries *int   `yaml:"max_entries"`
		FilePath   string `yaml:"file_path"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.TTL != "" {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("invalid cache ttl %q: %w", raw.TTL, err)
		}
		c.TTL = ttl
	}
	if raw.MaxEntries != nil {
		c.MaxEntries = *raw.MaxEntries
	}
	if raw.FilePath != "" {
		c.FilePath = raw.FilePath
	}
	return nil
}

// UnmarshalYAML parses duration fields from strings like "5s", leaving
// omitted fields at their defaults.
func (c *QueueConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxConcurrent *int   `yaml:"max_concurrent"`
		BatchDelay    string `yaml:"batch_delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxConcurrent != nil {
		c.MaxConcurrent = *raw.MaxConcurrent
	}
	if raw.BatchDelay != "" {
		delay, err := time.ParseDuration(raw.BatchDelay)
		if err != nil {
			return fmt.Errorf("invalid queue batch delay %q: %w", raw.BatchDelay, err)
		}
		c.BatchDelay = delay
	}
	return nil
}

// Load reads configuration from path (optional; empty path or a missing
// file is not an error), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	config := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8000,
			Workers: 1,
		},
		Logging: LoggingConfig{
			Dir:   "./logs",
			Level: "INFO",
		},
		Cache: CacheConfig{
			TTL:        24 * time.Hour,
			MaxEntries: 3000,
			FilePath:   "cache.gob",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Trends: TrendsConfig{
			HourlyLimit:  50,
			ProgressFile: "trends_progress.json",
		},
		Queue: QueueConfig{
			MaxConcurrent: 20,
			BatchDelay:    5 * time.Second,
		},
	}
}

func applyEnvironment(config *Config) {
	setString(&config.Server.Host, "API_HOST")
	setInt(&config.Server.Port, "API_PORT")
	setInt(&config.Server.Workers, "API_WORKERS")

	setString(&config.Logging.Dir, "LOG_DIR")
	setString(&config.Logging.Level, "LOG_LEVEL")

	setSeconds(&config.Cache.TTL, "CACHE_TTL")
	setInt(&config.Cache.MaxEntries, "CACHE_MAX_ENTRIES")
	setString(&config.Cache.FilePath, "CACHE_FILE")

	setString(&config.Redis.Host, "REDIS_HOST")
	setInt(&config.Redis.Port, "REDIS_PORT")
	setInt(&config.Redis.DB, "REDIS_DB")
	setString(&config.Redis.Password, "REDIS_PASSWORD")

	setString(&config.Ads.DeveloperToken, "GOOGLE_ADS_DEVELOPER_TOKEN")
	setString(&config.Ads.ClientID, "GOOGLE_ADS_CLIENT_ID")
	setString(&config.Ads.ClientSecret, "GOOGLE_ADS_CLIENT_SECRET")
	setString(&config.Ads.RefreshToken, "GOOGLE_ADS_REFRESH_TOKEN")
	setString(&config.Ads.CustomerID, "GOOGLE_ADS_CUSTOMER_ID")

	setInt(&config.Trends.HourlyLimit, "TRENDS_HOURLY_LIMIT")
	setString(&config.Trends.ProgressFile, "TRENDS_PROGRESS_FILE")

	setInt(&config.Queue.MaxConcurrent, "QUEUE_MAX_CONCURRENT")
	setSeconds(&config.Queue.BatchDelay, "QUEUE_BATCH_DELAY")
}

// Validate checks bounds the rest of the service relies on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Trends.HourlyLimit <= 0 {
		return fmt.Errorf("trends hourly limit must be positive, got %d", c.Trends.HourlyLimit)
	}
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue max concurrent must be positive, got %d", c.Queue.MaxConcurrent)
	}
	return nil
}

// NormalizedCustomerID returns the ads customer id with dashes stripped.
func (a AdsConfig) NormalizedCustomerID() string {
	return strings.ReplaceAll(a.CustomerID, "-", "")
}

// HasCredentials reports whether all required ads credentials are set.
func (a AdsConfig) HasCredentials() bool {
	return a.DeveloperToken != "" && a.ClientID != "" && a.ClientSecret != "" &&
		a.RefreshToken != "" && a.CustomerID != ""
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setSeconds(dst *time.Duration, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(parsed) * time.Second
		}
	}
}
