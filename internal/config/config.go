// Package config loads and validates worker configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OGWORKER_WORKER_CONCURRENCY.
const EnvPrefix = "OGWORKER"

// Queue and storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPubSub   = "pubsub"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Redis   RedisConfig   `mapstructure:"redis"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	Sentry  SentryConfig  `mapstructure:"sentry"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the health and metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
}

// WorkerConfig controls job consumption.
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency" validate:"gt=0"`
	QueueName   string `mapstructure:"queue_name" validate:"required"`
}

// QueueConfig selects the queue backend.
type QueueConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory redis pubsub"`
	Depth   int    `mapstructure:"depth" validate:"gt=0"`
}

// RedisConfig configures the Redis list queue.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"gte=0"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	BlockTimeout time.Duration `mapstructure:"block_timeout" validate:"gt=0"`
}

// PubSubConfig names the Pub/Sub resources backing the queue.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// FetchConfig bounds the probe and page fetch.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRedirects      int           `mapstructure:"max_redirects" validate:"gt=0"`
	ProbeMaxBytes     int           `mapstructure:"probe_max_bytes" validate:"gt=0"`
	MaxPageBytes      int           `mapstructure:"max_page_bytes" validate:"gte=0"`
	UserAgent         string        `mapstructure:"user_agent" validate:"required"`
	BlockedExtensions []string      `mapstructure:"blocked_extensions"`
	TwitterFallback   bool          `mapstructure:"twitter_fallback"`
	// HostRPS caps requests per second to any one host; 0 disables it.
	HostRPS           float64       `mapstructure:"host_rps" validate:"gte=0"`
	HostBurst         int           `mapstructure:"host_burst" validate:"gte=0"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory postgres"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" validate:"gte=0"`
}

// SentryConfig configures failure reporting. An empty DSN disables sending.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

var validate = validator.New()

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.queue_name", "og")
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.depth", 64)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "queue:")
	v.SetDefault("redis.block_timeout", 5*time.Second)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("pubsub.subscription", "")
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.probe_max_bytes", 1024*1024)
	v.SetDefault("fetch.max_page_bytes", 10*1024*1024)
	v.SetDefault("fetch.user_agent", "og-worker/1.0 (+https://github.com/JakeFAU/og-worker)")
	v.SetDefault("fetch.blocked_extensions", []string{"mp3", "mp4", "mov", "m4a", "mpeg"})
	v.SetDefault("fetch.twitter_fallback", false)
	v.SetDefault("fetch.host_rps", 0)
	v.SetDefault("fetch.host_burst", 1)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 0)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	switch c.Queue.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr must be set when queue.backend is redis"))
		}
	case BackendPubSub:
		if c.PubSub.ProjectID == "" {
			errs = append(errs, errors.New("pubsub.project_id must be set when queue.backend is pubsub"))
		}
		if c.PubSub.Topic == "" && c.PubSub.Subscription == "" {
			errs = append(errs, errors.New("pubsub.topic or pubsub.subscription must be set when queue.backend is pubsub"))
		}
	}
	if c.Storage.Backend == BackendPostgres && c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn must be set when storage.backend is postgres"))
	}
	if c.DB.MaxConns > 0 && c.DB.MinConns > c.DB.MaxConns {
		errs = append(errs, errors.New("db.min_conns must not exceed db.max_conns"))
	}
	return errors.Join(errs...)
}
