package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Paging  PagingConfig  `mapstructure:"paging"`
	Outbox  OutboxConfig  `mapstructure:"outbox"`
	Ads     AdsConfig     `mapstructure:"ads"`
	Client  ClientConfig  `mapstructure:"client"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig holds backend configuration
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds local store configuration
type CacheConfig struct {
	Dir string `mapstructure:"dir"` // Empty = OS default
}

// PagingConfig holds listing pagination settings
type PagingConfig struct {
	PageSize int    `mapstructure:"page_size"`
	SortKey  string `mapstructure:"sort_key"` // e.g. "rank" or "-players"
}

// OutboxConfig holds mutation flush settings
type OutboxConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// AdsConfig holds ephemeral ad cache settings
type AdsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Slots         []string      `mapstructure:"slots"`
	Capacity      int           `mapstructure:"capacity"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ClientConfig holds the game client used to join servers
type ClientConfig struct {
	Command string   `mapstructure:"command"` // Empty = system URL handler
	Args    []string `mapstructure:"args"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			URL:     "https://api.wipewatch.app/v1",
			Timeout: 30 * time.Second,
		},
		Paging: PagingConfig{
			PageSize: 20,
			SortKey:  "rank",
		},
		Outbox: OutboxConfig{
			FlushInterval: 30 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
		},
		Ads: AdsConfig{
			Enabled:       true,
			Slots:         []string{"banner1"},
			Capacity:      3,
			TTL:           time.Hour,
			SweepInterval: time.Hour,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "wipewatch", "wipewatch.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "wipewatch", "wipewatch.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "wipewatch")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "wipewatch")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "wipewatch", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "wipewatch", "cache")
	}
}

// LoadConfig loads configuration from file and environment.
// An empty path searches the default config directory and the working directory.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper builds a viper instance seeded with defaults so that
// environment overrides (WIPEWATCH_API_TOKEN, ...) apply to every key.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WIPEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.url", cfg.API.URL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("paging.page_size", cfg.Paging.PageSize)
	v.SetDefault("paging.sort_key", cfg.Paging.SortKey)
	v.SetDefault("outbox.flush_interval", cfg.Outbox.FlushInterval)
	v.SetDefault("outbox.rate_per_second", cfg.Outbox.RatePerSecond)
	v.SetDefault("outbox.burst", cfg.Outbox.Burst)
	v.SetDefault("ads.enabled", cfg.Ads.Enabled)
	v.SetDefault("ads.slots", cfg.Ads.Slots)
	v.SetDefault("ads.capacity", cfg.Ads.Capacity)
	v.SetDefault("ads.ttl", cfg.Ads.TTL)
	v.SetDefault("ads.sweep_interval", cfg.Ads.SweepInterval)
	v.SetDefault("client.command", cfg.Client.Command)
	v.SetDefault("client.args", cfg.Client.Args)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	return v
}

// Validate rejects settings the data layer cannot run with
func (c *Config) Validate() error {
	if c.Paging.PageSize <= 0 {
		return fmt.Errorf("paging.page_size must be positive, got %d", c.Paging.PageSize)
	}
	if c.Ads.Capacity <= 0 {
		return fmt.Errorf("ads.capacity must be positive, got %d", c.Ads.Capacity)
	}
	if c.Ads.TTL <= 0 {
		return fmt.Errorf("ads.ttl must be positive")
	}
	if c.Outbox.FlushInterval <= 0 {
		return fmt.Errorf("outbox.flush_interval must be positive")
	}
	if c.Outbox.RatePerSecond <= 0 {
		return fmt.Errorf("outbox.rate_per_second must be positive, got %v", c.Outbox.RatePerSecond)
	}
	if c.Outbox.Burst <= 0 {
		return fmt.Errorf("outbox.burst must be positive, got %d", c.Outbox.Burst)
	}
	return nil
}

// SaveConfig writes the configuration to path (default config file if empty)
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		configDir := defaultConfigPath()
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(configDir, "config.yaml")
	}

	v := viper.New()
	v.Set("api.url", cfg.API.URL)
	v.Set("api.token", cfg.API.Token)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("cache.dir", cfg.Cache.Dir)
	v.Set("paging.page_size", cfg.Paging.PageSize)
	v.Set("paging.sort_key", cfg.Paging.SortKey)
	v.Set("outbox.flush_interval", cfg.Outbox.FlushInterval.String())
	v.Set("outbox.rate_per_second", cfg.Outbox.RatePerSecond)
	v.Set("outbox.burst", cfg.Outbox.Burst)
	v.Set("ads.enabled", cfg.Ads.Enabled)
	v.Set("ads.slots", cfg.Ads.Slots)
	v.Set("ads.capacity", cfg.Ads.Capacity)
	v.Set("ads.ttl", cfg.Ads.TTL.String())
	v.Set("ads.sweep_interval", cfg.Ads.SweepInterval.String())
	v.Set("client.command", cfg.Client.Command)
	v.Set("client.args", cfg.Client.Args)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// IsConfigured returns true if the backend URL and token are set
func (c *Config) IsConfigured() bool {
	return c.API.URL != "" && c.API.Token != ""
}

// CachePath returns the cache directory (configured or OS default)
func (c *Config) CachePath() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return defaultCachePath()
}

// ClearCache removes all cached data
func (c *Config) ClearCache() error {
	if err := os.RemoveAll(c.CachePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
