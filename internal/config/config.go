// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sigil-dev/ledger/internal/remote"
	"github.com/sigil-dev/ledger/internal/store"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level ledger configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking" yaml:"networking"`
	Remote     RemoteConfig     `mapstructure:"remote" yaml:"remote"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Query      QueryConfig      `mapstructure:"query" yaml:"query"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`

	file string
}

// NetworkingConfig controls how the HTTP API listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Per-IP token bucket; a zero rate disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// RemoteConfig selects and addresses the remote store.
type RemoteConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	URL         string        `mapstructure:"url" yaml:"url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	DatabaseURL string        `mapstructure:"database_url" yaml:"database_url"`
	MaxConns    int           `mapstructure:"max_conns" yaml:"max_conns"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ProbeTable  string        `mapstructure:"probe_table" yaml:"probe_table"`
}

// CacheConfig selects the local cache backend.
type CacheConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Path     string `mapstructure:"path" yaml:"path"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
}

type QueryConfig struct {
	Coalesce bool        `mapstructure:"coalesce" yaml:"coalesce"`
	Retry    RetryConfig `mapstructure:"retry" yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
}

// MonitorConfig controls the background health probe. A zero interval
// disables it.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type SessionConfig struct {
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every key with its default so environment
// overrides (prefix LEDGER_) resolve even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit_rps", 20.0)
	v.SetDefault("networking.rate_limit_burst", 40)
	v.SetDefault("remote.backend", "rest")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.database_url", "")
	v.SetDefault("remote.max_conns", 10)
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.probe_table", "personal_info")
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("query.coalesce", false)
	v.SetDefault("query.retry.max_attempts", 3)
	v.SetDefault("query.retry.initial_delay", 300*time.Millisecond)
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("session.keyring_service", "ledger")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// SetupEnv enables LEDGER_ environment overrides, e.g. LEDGER_REMOTE_URL
// for remote.url.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path, or from ledger.yaml in the working
// directory, ~/.config/ledger or /etc/ledger when path is empty, with
// environment variable overrides (prefix LEDGER_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ledgererr.Errorf(ledgererr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	} else {
		AddConfigPaths(v)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, ledgererr.Errorf(ledgererr.CodeConfigParseInvalidFormat, "reading config: %w", err)
			}
		}
	}

	return FromViper(v)
}

// AddConfigPaths points v at ledger.yaml in the working directory,
// ~/.config/ledger and /etc/ledger, in that order.
func AddConfigPaths(v *viper.Viper) {
	// SetConfigType is omitted: with a type set, viper also tries the bare
	// name, which collides with a ./ledger binary.
	v.SetConfigName("ledger")
	v.AddConfigPath(".")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/ledger")
}

// FromViper resolves keyring:// credentials, then decodes and validates an
// already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	ResolveSecrets(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ledgererr.Errorf(ledgererr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ledgererr.Errorf(ledgererr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// File returns the config file that was read, or "" for defaults only.
func (c *Config) File() string { return c.file }

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateRemote()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateQuery()...)
	errs = append(errs, c.validateMisc()...)

	return errs
}

func invalid(format string, args ...any) error {
	return ledgererr.Errorf(ledgererr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Networking.Listen)
		if err != nil {
			errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w", c.Networking.Listen, err))
		} else if port, err := strconv.Atoi(portStr); err != nil {
			errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
		} else if port < 1 || port > 65535 {
			errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
		}
	}

	if c.Networking.RateLimitRPS < 0 {
		errs = append(errs, invalid("networking.rate_limit_rps must not be negative, got %g", c.Networking.RateLimitRPS))
	}
	if c.Networking.RateLimitRPS > 0 && c.Networking.RateLimitBurst < 1 {
		errs = append(errs, invalid("networking.rate_limit_burst must be at least 1 when rate limiting is enabled, got %d", c.Networking.RateLimitBurst))
	}

	for i, origin := range c.Networking.CORSOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, invalid("networking.cors_origins[%d] must be \"*\" or an http(s) origin, got %q", i, origin))
		}
	}

	return errs
}

func (c *Config) validateRemote() []error {
	var errs []error
	r := c.Remote

	switch r.Backend {
	case "rest":
		// The URL is checked when the client is built so that offline
		// commands work before the remote is configured.
		if r.URL != "" {
			if u, err := url.Parse(r.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, invalid("remote.url must be an http(s) URL, got %q", r.URL))
			}
		}
	case "postgres":
		if r.DatabaseURL == "" {
			errs = append(errs, invalid("remote.database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, invalid("remote.backend must be one of [rest, postgres], got %q", r.Backend))
	}

	if r.MaxConns <= 0 {
		errs = append(errs, invalid("remote.max_conns must be greater than 0, got %d", r.MaxConns))
	}
	if r.Timeout <= 0 {
		errs = append(errs, invalid("remote.timeout must be greater than 0, got %s", r.Timeout))
	}
	if !remote.ValidIdentifier(r.ProbeTable) {
		errs = append(errs, invalid("remote.probe_table must be a table name, got %q", r.ProbeTable))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	switch c.Cache.Backend {
	case "memory", "sqlite":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, invalid("cache.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, invalid("cache.backend must be one of [memory, sqlite, redis], got %q", c.Cache.Backend))
	}

	return errs
}

func (c *Config) validateQuery() []error {
	var errs []error

	if c.Query.Retry.MaxAttempts < 1 {
		errs = append(errs, invalid("query.retry.max_attempts must be at least 1, got %d", c.Query.Retry.MaxAttempts))
	}
	if c.Query.Retry.InitialDelay <= 0 {
		errs = append(errs, invalid("query.retry.initial_delay must be greater than 0, got %s", c.Query.Retry.InitialDelay))
	}
	if c.Monitor.Interval < 0 {
		errs = append(errs, invalid("monitor.interval must not be negative, got %s", c.Monitor.Interval))
	}

	return errs
}

func (c *Config) validateMisc() []error {
	var errs []error

	if c.Session.KeyringService == "" {
		errs = append(errs, invalid("session.keyring_service must not be empty"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, invalid("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, invalid("log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

// StorageConfig returns the cache backend settings. An empty sqlite path
// resolves to cache.db under the data directory.
func (c *Config) StorageConfig() (*store.StorageConfig, error) {
	sc := &store.StorageConfig{
		Backend:  c.Cache.Backend,
		Path:     c.Cache.Path,
		RedisURL: c.Cache.RedisURL,
	}
	if sc.Backend == "sqlite" && sc.Path == "" {
		dir, err := DataDir()
		if err != nil {
			return nil, err
		}
		sc.Path = filepath.Join(dir, "cache.db")
	}
	return sc, nil
}

// RemoteConfig returns the remote client settings.
func (c *Config) RemoteConfig(tokens remote.TokenSource) *remote.Config {
	return &remote.Config{
		Backend:     c.Remote.Backend,
		URL:         c.Remote.URL,
		APIKey:      c.Remote.APIKey,
		DatabaseURL: c.Remote.DatabaseURL,
		MaxConns:    c.Remote.MaxConns,
		Timeout:     c.Remote.Timeout,
		Tokens:      tokens,
	}
}

// SlogLevel maps log.level to a slog level. Unknown levels are info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const redactedValue = "********"

// Redacted returns a copy with credentials masked.
func (c Config) Redacted() Config {
	if c.Remote.APIKey != "" {
		c.Remote.APIKey = redactedValue
	}
	if u, err := url.Parse(c.Remote.DatabaseURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redactedValue)
			c.Remote.DatabaseURL = u.String()
		}
	}
	c.Networking.CORSOrigins = append([]string(nil), c.Networking.CORSOrigins...)
	return c
}

// YAML renders the configuration with credentials masked.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, ledgererr.Wrap(err, ledgererr.CodeConfigParseInvalidFormat, "encoding config")
	}
	return out, nil
}

// DataDir returns the directory for local state (~/.local/share/ledger, or
// $XDG_DATA_HOME/ledger).
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ledger"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ledgererr.Errorf(ledgererr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "ledger"), nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ledgererr.Errorf(ledgererr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ledger"), nil
}
