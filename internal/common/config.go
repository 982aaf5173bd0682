package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment" validate:"omitempty,oneof=development production"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig represents the relational store configuration
type SQLiteConfig struct {
	Path          string `toml:"path" validate:"required"`
	WALMode       bool   `toml:"wal_mode"`
	CacheSizeMB   int    `toml:"cache_size_mb" validate:"min=1"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" validate:"min=0"`
}

// BadgerConfig represents the queue database configuration
type BadgerConfig struct {
	Path string `toml:"path" validate:"required"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval" validate:"required"`      // how often workers poll for messages
	Concurrency       int    `toml:"concurrency" validate:"min=1"`           // number of concurrent runs processed
	VisibilityTimeout string `toml:"visibility_timeout" validate:"required"` // message redelivery window
	MaxReceive        int    `toml:"max_receive" validate:"min=1"`           // receives before dead-letter
	QueueName         string `toml:"queue_name" validate:"required"`
}

// CrawlerConfig carries engine-wide fetch parameters. Per-project limits
// (maxPages, maxDepth, throttle) live in project settings, not here.
type CrawlerConfig struct {
	RequestTimeout string `toml:"request_timeout" validate:"required"` // per-request HTTP timeout
	RedirectCap    int    `toml:"redirect_cap" validate:"min=1"`
	// CancelCheckEvery is how many BFS iterations pass between run status
	// polls for cooperative cancellation.
	CancelCheckEvery int `toml:"cancel_check_every" validate:"min=1"`
}

type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string   `toml:"format" validate:"omitempty,oneof=text json"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/hydrafrog.db",
				WALMode:       true,
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
			},
			Badger: BadgerConfig{
				Path: "./data/queue",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       1, // sequential across runs unless raised
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "hydrafrog_crawls",
		},
		Crawler: CrawlerConfig{
			RequestTimeout:   "30s",
			RedirectCap:      10,
			CancelCheckEvery: 20,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration in precedence order:
// defaults -> files (later files override earlier) -> environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// Duration strings are validated eagerly so a bad value fails at startup
	// rather than first use.
	for name, value := range map[string]string{
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"crawler.request_timeout":  c.Crawler.RequestTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}
	return nil
}

// PollInterval returns the parsed worker poll interval.
func (c *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// VisibilityTimeoutDuration returns the parsed redelivery window.
func (c *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.VisibilityTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// RequestTimeoutDuration returns the parsed per-request HTTP timeout.
func (c *CrawlerConfig) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("HYDRAFROG_SQLITE_PATH"); v != "" {
		config.Storage.SQLite.Path = v
	}
	if v := os.Getenv("HYDRAFROG_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("HYDRAFROG_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("HYDRAFROG_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.Concurrency = n
		}
	}
}
