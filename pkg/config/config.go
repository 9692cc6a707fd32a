// Package config provides centralized configuration management for the semem SPARQL store.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"github.com/theapemachine/semem-store/pkg/memory"
)

// Config holds the complete configuration for the application
type Config struct {
	// SPARQL endpoint configuration
	SPARQL struct {
		QueryEndpoint  string
		UpdateEndpoint string
		User           string
		Password       string
		Graph          string
		Timeout        time.Duration
	}

	// Embedding configuration
	Embedding struct {
		Dimension int
	}

	// Query cache configuration
	Cache struct {
		Enabled         bool
		TTL             time.Duration
		MaxSize         int
		CleanupInterval time.Duration
	}

	// Logging configuration
	Log struct {
		Level string
	}
}

var (
	once   sync.Once
	config *Config
)

// Load initializes and loads the configuration from the environment and an
// optional semem.yaml in the working directory or $HOME/.semem.
func Load() *Config {
	once.Do(func() {
		v := viper.New()
		v.SetConfigName("semem")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.semem")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				log.Warn("ignoring unreadable config file", "error", err)
			}
		}

		config = New(v)
	})

	return config
}

// New builds a Config from v, with defaults applied and environment
// variables taking precedence over anything v was loaded with.
func New(v *viper.Viper) *Config {
	v.SetDefault("SPARQL_GRAPH", memory.DefaultGraphName)
	v.SetDefault("SPARQL_TIMEOUT", memory.DefaultTimeout)
	v.SetDefault("EMBEDDING_DIMENSION", memory.DefaultDimension)
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", memory.DefaultCacheTTL)
	v.SetDefault("CACHE_MAX_SIZE", memory.DefaultMaxCacheSize)
	v.SetDefault("CACHE_CLEANUP_INTERVAL", time.Duration(0))
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{}

	cfg.SPARQL.QueryEndpoint = v.GetString("SPARQL_QUERY_ENDPOINT")
	cfg.SPARQL.UpdateEndpoint = v.GetString("SPARQL_UPDATE_ENDPOINT")
	cfg.SPARQL.User = v.GetString("SPARQL_USER")
	cfg.SPARQL.Password = v.GetString("SPARQL_PASSWORD")
	cfg.SPARQL.Graph = v.GetString("SPARQL_GRAPH")
	cfg.SPARQL.Timeout = duration(v, "SPARQL_TIMEOUT")

	// Either endpoint stands in for the other when only one is given.
	if cfg.SPARQL.UpdateEndpoint == "" {
		cfg.SPARQL.UpdateEndpoint = cfg.SPARQL.QueryEndpoint
	}
	if cfg.SPARQL.QueryEndpoint == "" {
		cfg.SPARQL.QueryEndpoint = cfg.SPARQL.UpdateEndpoint
	}

	cfg.Embedding.Dimension = v.GetInt("EMBEDDING_DIMENSION")

	cfg.Cache.Enabled = v.GetBool("CACHE_ENABLED")
	cfg.Cache.TTL = duration(v, "CACHE_TTL")
	cfg.Cache.MaxSize = v.GetInt("CACHE_MAX_SIZE")
	cfg.Cache.CleanupInterval = duration(v, "CACHE_CLEANUP_INTERVAL")

	cfg.Log.Level = v.GetString("LOG_LEVEL")

	return cfg
}

// duration reads key as a Go duration such as "5m", or as milliseconds when
// the value is a bare integer.
func duration(v *viper.Viper, key string) time.Duration {
	if ms, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	return v.GetDuration(key)
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var errs []string

	if c.SPARQL.QueryEndpoint == "" {
		errs = append(errs, "SPARQL_QUERY_ENDPOINT or SPARQL_UPDATE_ENDPOINT must be set")
	}

	for name, raw := range map[string]string{
		"SPARQL_QUERY_ENDPOINT":  c.SPARQL.QueryEndpoint,
		"SPARQL_UPDATE_ENDPOINT": c.SPARQL.UpdateEndpoint,
	} {
		if raw == "" {
			continue
		}

		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s is not an absolute URL: %q", name, raw))
		}
	}

	if c.SPARQL.Password != "" && c.SPARQL.User == "" {
		errs = append(errs, "SPARQL_PASSWORD is set without SPARQL_USER")
	}

	if c.Embedding.Dimension <= 0 {
		errs = append(errs, "EMBEDDING_DIMENSION must be positive")
	}

	if c.Cache.Enabled && c.Cache.MaxSize <= 0 {
		errs = append(errs, "CACHE_MAX_SIZE must be positive when the cache is enabled")
	}

	// The cleanup schedule has one second resolution.
	if c.Cache.CleanupInterval > 0 && c.Cache.CleanupInterval < time.Second {
		errs = append(errs, fmt.Sprintf("CACHE_CLEANUP_INTERVAL must be 0 or at least 1s, got %s", c.Cache.CleanupInterval))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not a known level", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Endpoint returns the configured endpoint pair.
func (c *Config) Endpoint() memory.Endpoint {
	return memory.Endpoint{
		Query:  c.SPARQL.QueryEndpoint,
		Update: c.SPARQL.UpdateEndpoint,
	}
}

// StoreOptions converts the configuration into store options. logger may be
// nil, in which case the store creates its own.
func (c *Config) StoreOptions(logger *log.Logger) memory.Options {
	return memory.Options{
		User:            c.SPARQL.User,
		Password:        c.SPARQL.Password,
		GraphName:       c.SPARQL.Graph,
		Dimension:       c.Embedding.Dimension,
		CacheEnabled:    memory.Bool(c.Cache.Enabled),
		CacheTTL:        c.Cache.TTL,
		MaxCacheSize:    c.Cache.MaxSize,
		CleanupInterval: c.Cache.CleanupInterval,
		Timeout:         c.SPARQL.Timeout,
		Logger:          logger,
	}
}
