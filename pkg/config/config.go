// Package config loads the hub retrieval configuration: a YAML file over
// defaults, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/camlf/academic-hub/pkg/client"
	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// ErrUnknownDataset is returned by NamespaceOf for unmapped datasets.
var ErrUnknownDataset = errors.New("unknown dataset")

// Config is the complete configuration of a hub process.
type Config struct {
	Hub        HubConfig         `yaml:"hub"`
	Redis      RedisConfig       `yaml:"redis"`
	Paging     pagination.Config `yaml:"paging"`
	Checkpoint CheckpointConfig  `yaml:"checkpoint"`
	Logging    LoggingConfig     `yaml:"logging"`
	Tracing    TracingConfig     `yaml:"tracing"`
	Metrics    MetricsConfig     `yaml:"metrics"`

	// Namespaces maps dataset names to hub namespaces. Lookups ignore case.
	Namespaces map[string]string `yaml:"namespaces"`
}

// HubConfig configures the hub client.
type HubConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	Token         string        `yaml:"token"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	NarrowStored  bool          `yaml:"narrow_stored"`
	ItemsCacheTTL time.Duration `yaml:"items_cache_ttl" validate:"gte=0"`
}

// RedisConfig configures the shared Redis. An empty URL disables the
// items cache and the shared session state.
type RedisConfig struct {
	URL       string `yaml:"url"`
	SessionID string `yaml:"session_id"`
}

// CheckpointConfig selects where stored-mode resume tokens are kept.
type CheckpointConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=redis sqlite none"`
	Path    string        `yaml:"path" validate:"required_if=Backend sqlite"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter    string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the default configuration. The hub base URL has no
// default.
func Default() *Config {
	hub := client.DefaultConfig("")
	return &Config{
		Hub: HubConfig{
			UserAgent:     hub.UserAgent,
			Timeout:       hub.Timeout,
			NarrowStored:  hub.NarrowStored,
			ItemsCacheTTL: hub.ItemsCacheTTL,
		},
		Paging: pagination.DefaultConfig(),
		Checkpoint: CheckpointConfig{
			Backend: "none",
			Path:    "hub-checkpoints.db",
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "academic-hub",
		},
		Metrics:    MetricsConfig{Addr: ":9090"},
		Namespaces: map[string]string{},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from non-empty environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("HUB_BASE_URL"); v != "" {
		c.Hub.BaseURL = v
	}
	if v := getenv("HUB_TOKEN"); v != "" {
		c.Hub.Token = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("HUB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HUB_WORKERS: %w", err)
		}
		c.Paging.Workers = n
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Checkpoint.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("invalid config: checkpoint backend redis requires redis.url")
	}
	return nil
}

// Client returns the hub client configuration.
func (c *Config) Client() client.Config {
	return client.Config{
		BaseURL:       c.Hub.BaseURL,
		UserAgent:     c.Hub.UserAgent,
		Timeout:       c.Hub.Timeout,
		NarrowStored:  c.Hub.NarrowStored,
		ItemsCacheTTL: c.Hub.ItemsCacheTTL,
	}
}

// RedisOptions parses the Redis URL. A bare host:port is accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, fmt.Errorf("redis url is not configured")
	}
	if !strings.Contains(c.Redis.URL, "://") {
		return &redis.Options{Addr: c.Redis.URL}, nil
	}
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// NamespaceOf returns the namespace of a dataset, ignoring case.
func (c *Config) NamespaceOf(dataset string) (string, error) {
	for name, ns := range c.Namespaces {
		if strings.EqualFold(name, dataset) {
			return ns, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
}
