// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/souqdata/areacrawl/internal/catalog"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	DB       DBConfig       `mapstructure:"db"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RunConfig governs the time budget and the execution loop cadence.
type RunConfig struct {
	// TimeBudget is how long the loop accepts new units, set comfortably
	// below the external hard kill time.
	TimeBudget time.Duration `mapstructure:"time_budget"`
	// GraceTimeout bounds how long an in-flight unit may finish after the
	// budget expires.
	GraceTimeout time.Duration `mapstructure:"grace_timeout"`
	// FlushEveryUnits and FlushInterval set the checkpoint cadence;
	// whichever fires first triggers a flush.
	FlushEveryUnits int           `mapstructure:"flush_every_units"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	// MaxRetries caps total attempts per unit across executions.
	MaxRetries int `mapstructure:"max_retries"`
	// PerUnitTimeout bounds one unit's fetch.
	PerUnitTimeout time.Duration `mapstructure:"per_unit_timeout"`
	// Concurrency sizes the worker pool; 1 is strictly sequential.
	Concurrency int `mapstructure:"concurrency"`
}

// FetchConfig controls the plain HTTP listing fetcher.
type FetchConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxPages       int           `mapstructure:"max_pages"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
}

// StorageConfig selects the blob backend shared by the checkpoint transport
// and the payload sink.
type StorageConfig struct {
	// Backend is one of "local", "gcs", "memory".
	Backend       string `mapstructure:"backend"`
	BaseDir       string `mapstructure:"base_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	CheckpointKey string `mapstructure:"checkpoint_key"`
	PayloadPrefix string `mapstructure:"payload_prefix"`
}

// ServerConfig controls the observability HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// DBConfig controls the optional Postgres results ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CatalogConfig declares the areas making up the work catalog.
type CatalogConfig struct {
	Areas []catalog.AreaConfig `mapstructure:"areas"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AREACRAWL")
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
	v.SetDefault("run.time_budget", "3h")
	v.SetDefault("run.grace_timeout", "5m")
	v.SetDefault("run.flush_every_units", 5)
	v.SetDefault("run.flush_interval", "2m")
	v.SetDefault("run.max_retries", 3)
	v.SetDefault("run.per_unit_timeout", "5m")
	v.SetDefault("run.concurrency", 1)

	v.SetDefault("fetch.user_agent", "areacrawl/1.0 (+https://github.com/souqdata/areacrawl)")
	v.SetDefault("fetch.request_timeout", "30s")
	v.SetDefault("fetch.max_pages", 50)
	v.SetDefault("fetch.page_delay", "1s")

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout", "45s")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.checkpoint_key", "checkpoints/progress.json")
	v.SetDefault("storage.payload_prefix", "payloads")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("db.table", "unit_results")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Run.TimeBudget <= 0 {
		return fmt.Errorf("run.time_budget must be > 0")
	}
	if c.Run.GraceTimeout <= 0 {
		return fmt.Errorf("run.grace_timeout must be > 0")
	}
	if c.Run.MaxRetries <= 0 {
		return fmt.Errorf("run.max_retries must be > 0")
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be > 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	if c.Storage.CheckpointKey == "" {
		return fmt.Errorf("storage.checkpoint_key must be set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}
