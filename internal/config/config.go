// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/shotapi/internal/policy/ratelimit"
	"github.com/JakeFAU/shotapi/internal/renderer/headless"
	"github.com/JakeFAU/shotapi/internal/storage/gcs"
	"github.com/JakeFAU/shotapi/internal/storage/local"
	"github.com/JakeFAU/shotapi/internal/storage/redis"
)

// Storage backends for the durable cache layer.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	CORS      CORSConfig       `mapstructure:"cors"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
	Render    RenderConfig     `mapstructure:"render"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Storage   StorageConfig    `mapstructure:"storage"`
	DB        DBConfig         `mapstructure:"db"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// AuthConfig defines API authentication toggles. The key is always required for cache clearing.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RenderConfig configures admission and the browser.
type RenderConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	QueueTimeout    time.Duration `mapstructure:"queue_timeout"`
	headless.Config `mapstructure:",squash"`
}

// CacheConfig sizes the in-memory layer and schedules maintenance.
type CacheConfig struct {
	Capacity   int           `mapstructure:"capacity"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Coalesce   bool          `mapstructure:"coalesce"`
	// SweepSchedule and PruneSchedule are cron expressions; empty disables the job.
	SweepSchedule string `mapstructure:"sweep_schedule"`
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// StorageConfig selects and configures the durable cache layer.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
	Redis   redis.Config `mapstructure:"redis"`
}

// DBConfig controls access to the capture audit database. Empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	// Retention bounds the age of audit rows; PurgeSchedule is the cron expression that enforces it.
	Retention     time.Duration `mapstructure:"retention"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

// PubSubConfig holds metadata for capture notifications. Empty project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// Watch re-reads the config file when it changes and hands every valid result to onChange.
// Invalid edits are reported to onError and otherwise ignored. Without a file there is nothing to
// watch.
func Watch(path string, onChange func(Config), onError func(error)) error {
	if path == "" {
		return nil
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOTAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Hosting platforms inject PORT; it wins over the prefixed variable.
	if err := v.BindEnv("server.port", "PORT", "SHOTAPI_SERVER_PORT"); err != nil {
		return nil, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_grace", "10s")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.max_requests", 60)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.max_concurrent", 5)
	v.SetDefault("render.queue_timeout", "30s")
	v.SetDefault("render.launch_timeout", "30s")
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.coalesce", true)
	v.SetDefault("cache.sweep_schedule", "@every 2m")
	v.SetDefault("cache.prune_schedule", "@hourly")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local.base_dir", "cache")
	v.SetDefault("storage.gcs.prefix", "captures")
	v.SetDefault("storage.redis.prefix", "shotapi")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.retention", "720h")
	v.SetDefault("db.purge_schedule", "@daily")
	v.SetDefault("pubsub.topic_name", "captures")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxConcurrent <= 0 {
		return fmt.Errorf("render.max_concurrent must be > 0 when rendering is enabled")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be > 0")
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache.default_ttl must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.DB.Retention < 0 {
		return fmt.Errorf("db.retention must be >= 0")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	case BackendMemory, BackendNone:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, redis, memory, none", c.Storage.Backend)
	}
	return nil
}
