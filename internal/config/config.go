// Package config loads plexdate settings from a YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Sternrassler/plex-added-date/pkg/client"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned by RequireServer when the base URL or
// token is unset.
var ErrMissingCredentials = errors.New("plex base url and token are required (set PLEX_BASE_URL and PLEX_TOKEN or use --base-url/--token)")

// Config holds all application configuration
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Retry    RetryConfig   `mapstructure:"retry"`
	Logging  LoggingConfig `mapstructure:"logging"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Timezone string        `mapstructure:"timezone"` // IANA name, "" or "Local" for the host zone
}

// ServerConfig holds Plex server configuration
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"` // per request
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	SelectionTTL time.Duration `mapstructure:"selection_ttl"`
}

// CacheConfig holds page cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RetryConfig holds transport retry configuration
type RetryConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxTotalWait     time.Duration `mapstructure:"max_total_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig holds the optional metrics listener
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps global flag names to config keys.
var flagKeys = map[string]string{
	"base-url":     "server.url",
	"token":        "server.token",
	"redis-addr":   "redis.addr",
	"log-level":    "logging.level",
	"log-pretty":   "logging.pretty",
	"metrics-addr": "metrics.addr",
	"timezone":     "timezone",
}

func setDefaults(v *viper.Viper) {
	retry := client.DefaultRetryPolicy()

	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.selection_ttl", 7*24*time.Hour)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("retry.max_attempts", retry.Server.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.Server.InitialBackoff)
	v.SetDefault("retry.rate_limit_backoff", retry.RateLimit.InitialBackoff)
	v.SetDefault("retry.max_backoff", retry.Server.MaxBackoff)
	v.SetDefault("retry.max_total_wait", retry.MaxTotalWait)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.pretty", false)
}

// defaultConfigPath returns $XDG_CONFIG_HOME/plexdate or ~/.config/plexdate.
func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "plexdate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "plexdate")
}

// Load reads configuration. path names an explicit config file, which must
// exist; when empty, config.yaml is looked up in the default locations and
// may be absent. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PLEXDATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The variable names used by earlier versions of the tool
	if err := v.BindEnv("server.url", "PLEXDATE_SERVER_URL", "PLEX_BASE_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("server.token", "PLEXDATE_SERVER_TOKEN", "PLEX_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Server.URL = strings.TrimRight(strings.TrimSpace(cfg.Server.URL), "/")
	cfg.Server.Token = strings.TrimSpace(cfg.Server.Token)

	return cfg, nil
}

// RequireServer fails when the server credentials are incomplete.
func (c *Config) RequireServer() error {
	if c.Server.URL == "" || c.Server.Token == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RetryPolicy converts the retry section to a transport policy.
func (c *Config) RetryPolicy() client.RetryPolicy {
	base := client.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialBackoff:    c.Retry.InitialBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		BackoffMultiplier: 2.0,
	}
	rateLimit := base
	rateLimit.InitialBackoff = c.Retry.RateLimitBackoff

	return client.RetryPolicy{
		Server:       base,
		RateLimit:    rateLimit,
		Network:      base,
		MaxTotalWait: c.Retry.MaxTotalWait,
	}
}

// ClientConfig returns the transport configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Server.URL, c.Server.Token)
	if c.Server.Timeout > 0 {
		cfg.Timeout = c.Server.Timeout
	}
	cfg.Retry = c.RetryPolicy()
	return cfg
}
