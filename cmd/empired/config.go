package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/thelittleladyinc/empire-system/schedule"
)

// Config is the daemon configuration, read from empired.yaml and
// EMPIRE_* environment variables (EMPIRE_STORE_DSN overrides
// store.dsn, and so on).
type Config struct {
	// Listen is the admin API bind address.
	Listen string `mapstructure:"listen"`

	Log struct {
		// Level is debug, info, warn, or error.
		Level string `mapstructure:"level"`
		// Format is text or json.
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Store struct {
		// Driver selects the backend: memory, postgres, or bun.
		Driver string `mapstructure:"driver"`
		// DSN is the connection string for the SQL backends.
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Queue struct {
		// Driver selects the transport: memory or redis.
		Driver string `mapstructure:"driver"`
		// Name is the logical queue name, used to derive transport keys.
		Name string `mapstructure:"name"`
		// Concurrency is the number of consumer workers.
		Concurrency int `mapstructure:"concurrency"`
		// RateLimit caps sustained deliveries per second. Zero disables.
		RateLimit float64 `mapstructure:"rate_limit"`
		// Codec is the wire encoding: json or msgpack.
		Codec string `mapstructure:"codec"`

		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"queue"`

	Engine struct {
		NodeTimeout     time.Duration `mapstructure:"node_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		HealthInterval  time.Duration `mapstructure:"health_interval"`
		MemoryThreshold float64       `mapstructure:"memory_threshold"`
	} `mapstructure:"engine"`

	// Plans declares additional workflow plans beyond the built-ins.
	Plans []PlanConfig `mapstructure:"plans"`

	// Schedule declares recurring workflow entries.
	Schedule []schedule.Entry `mapstructure:"schedule"`
}

// PlanConfig maps a workflow-type label to its ordered node sequence.
type PlanConfig struct {
	Label string   `mapstructure:"label"`
	Steps []string `mapstructure:"steps"`
}

// loadConfig reads the configuration. With an explicit path the file
// must exist; otherwise the search path is consulted and a missing file
// leaves defaults and environment overrides in effect.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("empired")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/empire")
	}

	v.SetEnvPrefix("EMPIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.driver", "memory")
	// Empty defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("store.dsn", "")
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.name", "workflows")
	// Zero defers to the queue package default.
	v.SetDefault("queue.concurrency", 0)
	v.SetDefault("queue.rate_limit", 0.0)
	v.SetDefault("queue.codec", "json")
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("engine.node_timeout", "5m")
	v.SetDefault("engine.shutdown_timeout", "30s")
	v.SetDefault("engine.health_interval", "30s")
	v.SetDefault("engine.memory_threshold", 0.90)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// newLogger builds the daemon logger from the log section. Unknown
// levels fall back to info.
func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}
