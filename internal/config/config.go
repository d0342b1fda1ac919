// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// KVStore configures the go-redis client used as the cache's remote layer
// and as the aggregation engine's counter/HyperLogLog store.
type KVStore struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// Postgres configures the relational store pool backing the events/users/
// event_types tables, the seven rollup tables, and the seeder's bulk path.
type Postgres struct {
	DSN              string        `mapstructure:"dsn"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	IdleTxnTimeout   time.Duration `mapstructure:"idle_in_transaction_session_timeout"`
}

// Backoff is an exponential-backoff envelope: the delay starts at Base,
// doubles per retry and is capped at Max. The seeder's batch-insert retry
// loop is its only user.
type Backoff struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

// Cache configures the tiered cache's layer set and overflow behavior.
type Cache struct {
	MemoryCapacity    int           `mapstructure:"memory_capacity"`
	MemoryTTL         time.Duration `mapstructure:"memory_ttl"`
	RedisTTL          time.Duration `mapstructure:"redis_ttl"`
	FilePath          string        `mapstructure:"file_path"`
	FileTTL           time.Duration `mapstructure:"file_ttl"`
	FileSweepInterval time.Duration `mapstructure:"file_sweep_interval"`
	OverflowStrategy  string        `mapstructure:"overflow_strategy"` // "drop" | "move_to_slower_layer"
	MinLayers         int           `mapstructure:"min_layers"`
	MaxLayers         int           `mapstructure:"max_layers"`
}

// Aggregation configures the real-time aggregation engine (C3).
type Aggregation struct {
	PipelineBatchSize int `mapstructure:"pipeline_batch_size"`
}

// MaterializedViews configures the refresh schedule for the seven rollup
// tables (C5), consumed by the Background Scheduler (C9).
type MaterializedViews struct {
	FullRefreshCron     string   `mapstructure:"full_refresh_cron"`
	PopularOnlyCron     string   `mapstructure:"popular_only_cron"`
	RefreshConcurrently bool     `mapstructure:"refresh_concurrently"`
	PopularViews        []string `mapstructure:"popular_views"`
}

// EventBus configures the cross-domain event bus (C7).
type EventBus struct {
	MainChannelCapacity int           `mapstructure:"main_channel_capacity"`
	BatchSize           int           `mapstructure:"batch_size"`
	FlushInterval       time.Duration `mapstructure:"flush_interval"`
}

// Seeder configures the bulk ingestion path (C8).
type Seeder struct {
	TargetEventCount  int     `mapstructure:"target_event_count"`
	UserCount         int     `mapstructure:"user_count"`
	GenerateWorkers   int     `mapstructure:"generate_workers"`
	InsertWorkers     int     `mapstructure:"insert_workers"`
	BatchSize         int     `mapstructure:"batch_size"`
	ChannelDepth      int     `mapstructure:"channel_depth"`
	MaxRetries        int     `mapstructure:"max_retries"`
	Backoff           Backoff `mapstructure:"backoff"`
	ConnectionBackoff Backoff `mapstructure:"connection_backoff"`
	HealthCheckEvery  int     `mapstructure:"health_check_every_n_batches"`
	RateLimitPerSec   int     `mapstructure:"rate_limit_per_sec"`
}

// Scheduler configures the ticker-driven periodic housekeeping (C9) that is
// not calendar-fixed enough to warrant a cron expression.
type Scheduler struct {
	UserMetricsFlushInterval time.Duration `mapstructure:"user_metrics_flush_interval"`
	OutboxSweepInterval      time.Duration `mapstructure:"outbox_sweep_interval"`
}

// EventProc configures the persist-then-async-fan-out ingestion path (C4):
// whether idempotency-key dedup and the transactional outbox are enabled,
// and the capacity of the in-process analytics queue: 0 keeps it unbounded,
// a positive value makes it a bounded queue that drops and logs an event
// once full.
type EventProc struct {
	IdempotencyEnabled bool          `mapstructure:"idempotency_enabled"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	OutboxEnabled      bool          `mapstructure:"outbox_enabled"`
	QueueCapacity      int           `mapstructure:"queue_capacity"` // 0 = unbounded
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type TracingConfig struct {
	Enabled               bool              `mapstructure:"enabled"`
	Endpoint              string            `mapstructure:"endpoint"`
	Environment           string            `mapstructure:"environment"`
	SamplingStrategy      string            `mapstructure:"sampling_strategy"`
	SamplingRate          float64           `mapstructure:"sampling_rate"`
	BatchTimeout          time.Duration     `mapstructure:"batch_timeout"`
	MaxExportBatchSize    int               `mapstructure:"max_export_batch_size"`
	Headers               map[string]string `mapstructure:"headers"`
	Insecure              bool              `mapstructure:"insecure"`
	PropagationFormat     string            `mapstructure:"propagation_format"`
	AttributeAllowlist    []string          `mapstructure:"attribute_allowlist"`
	RedactSensitive       bool              `mapstructure:"redact_sensitive"`
	EnableMetricExemplars bool              `mapstructure:"enable_metric_exemplars"`
}

// Tracing is a backwards-compatible alias.
type Tracing = TracingConfig

type ObservabilityConfig struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// Observability is a backwards-compatible alias.
type Observability = ObservabilityConfig

type Config struct {
	KVStore           KVStore           `mapstructure:"kvstore"`
	Postgres          Postgres          `mapstructure:"postgres"`
	Cache             Cache             `mapstructure:"cache"`
	Aggregation       Aggregation       `mapstructure:"aggregation"`
	MaterializedViews MaterializedViews `mapstructure:"materialized_views"`
	EventBus          EventBus          `mapstructure:"event_bus"`
	EventProc         EventProc         `mapstructure:"event_proc"`
	Seeder            Seeder            `mapstructure:"seeder"`
	Scheduler         Scheduler         `mapstructure:"scheduler"`
	CircuitBreaker    CircuitBreaker    `mapstructure:"circuit_breaker"`
	Observability     Observability     `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		KVStore: KVStore{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Postgres: Postgres{
			DSN:              "postgres://localhost:5432/events?sslmode=disable",
			MaxOpenConns:     20,
			MaxIdleConns:     5,
			ConnMaxLifetime:  30 * time.Minute,
			ConnMaxIdleTime:  10 * time.Minute,
			StatementTimeout: 600 * time.Second,
			LockTimeout:      300 * time.Second,
			IdleTxnTimeout:   300 * time.Second,
		},
		Cache: Cache{
			MemoryCapacity:    10_000,
			MemoryTTL:         5 * time.Minute,
			RedisTTL:          30 * time.Minute,
			FilePath:          "./data/cache.db",
			FileTTL:           24 * time.Hour,
			FileSweepInterval: 10 * time.Minute,
			OverflowStrategy:  "drop",
			MinLayers:         1,
			MaxLayers:         3,
		},
		Aggregation: Aggregation{
			PipelineBatchSize: 5,
		},
		MaterializedViews: MaterializedViews{
			FullRefreshCron:     "0 0 * * * *",
			PopularOnlyCron:     "0 */15 * * * *",
			RefreshConcurrently: true,
			PopularViews:        []string{"popular_events"},
		},
		EventBus: EventBus{
			MainChannelCapacity: 1024,
			BatchSize:           32,
			FlushInterval:       10 * time.Millisecond,
		},
		EventProc: EventProc{
			IdempotencyEnabled: true,
			IdempotencyTTL:     24 * time.Hour,
			OutboxEnabled:      true,
			QueueCapacity:      0,
		},
		Seeder: Seeder{
			TargetEventCount:  10_000_000,
			UserCount:         100,
			GenerateWorkers:   8,
			InsertWorkers:     4,
			BatchSize:         10_000,
			ChannelDepth:      5,
			MaxRetries:        5,
			Backoff:           Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second},
			ConnectionBackoff: Backoff{Base: 2 * time.Second, Max: 20 * time.Second},
			HealthCheckEvery:  10,
			RateLimitPerSec:   0,
		},
		Scheduler: Scheduler{
			UserMetricsFlushInterval: 30 * time.Second,
			OutboxSweepInterval:      1 * time.Minute,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     Tracing{Enabled: false},
		},
	}
}

// Load reads configuration from a YAML file, layering environment variable
// overrides on top (e.g. POSTGRES_DSN, KVSTORE_ADDR).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("kvstore.addr", def.KVStore.Addr)
	v.SetDefault("kvstore.pool_size_multiplier", def.KVStore.PoolSizeMultiplier)
	v.SetDefault("kvstore.min_idle_conns", def.KVStore.MinIdleConns)
	v.SetDefault("kvstore.dial_timeout", def.KVStore.DialTimeout)
	v.SetDefault("kvstore.read_timeout", def.KVStore.ReadTimeout)
	v.SetDefault("kvstore.write_timeout", def.KVStore.WriteTimeout)
	v.SetDefault("kvstore.max_retries", def.KVStore.MaxRetries)

	v.SetDefault("postgres.dsn", def.Postgres.DSN)
	v.SetDefault("postgres.max_open_conns", def.Postgres.MaxOpenConns)
	v.SetDefault("postgres.max_idle_conns", def.Postgres.MaxIdleConns)
	v.SetDefault("postgres.conn_max_lifetime", def.Postgres.ConnMaxLifetime)
	v.SetDefault("postgres.conn_max_idle_time", def.Postgres.ConnMaxIdleTime)
	v.SetDefault("postgres.statement_timeout", def.Postgres.StatementTimeout)
	v.SetDefault("postgres.lock_timeout", def.Postgres.LockTimeout)
	v.SetDefault("postgres.idle_in_transaction_session_timeout", def.Postgres.IdleTxnTimeout)

	v.SetDefault("cache.memory_capacity", def.Cache.MemoryCapacity)
	v.SetDefault("cache.memory_ttl", def.Cache.MemoryTTL)
	v.SetDefault("cache.redis_ttl", def.Cache.RedisTTL)
	v.SetDefault("cache.file_path", def.Cache.FilePath)
	v.SetDefault("cache.file_ttl", def.Cache.FileTTL)
	v.SetDefault("cache.file_sweep_interval", def.Cache.FileSweepInterval)
	v.SetDefault("cache.overflow_strategy", def.Cache.OverflowStrategy)
	v.SetDefault("cache.min_layers", def.Cache.MinLayers)
	v.SetDefault("cache.max_layers", def.Cache.MaxLayers)

	v.SetDefault("aggregation.pipeline_batch_size", def.Aggregation.PipelineBatchSize)

	v.SetDefault("materialized_views.full_refresh_cron", def.MaterializedViews.FullRefreshCron)
	v.SetDefault("materialized_views.popular_only_cron", def.MaterializedViews.PopularOnlyCron)
	v.SetDefault("materialized_views.refresh_concurrently", def.MaterializedViews.RefreshConcurrently)
	v.SetDefault("materialized_views.popular_views", def.MaterializedViews.PopularViews)

	v.SetDefault("event_bus.main_channel_capacity", def.EventBus.MainChannelCapacity)
	v.SetDefault("event_bus.batch_size", def.EventBus.BatchSize)
	v.SetDefault("event_bus.flush_interval", def.EventBus.FlushInterval)

	v.SetDefault("event_proc.idempotency_enabled", def.EventProc.IdempotencyEnabled)
	v.SetDefault("event_proc.idempotency_ttl", def.EventProc.IdempotencyTTL)
	v.SetDefault("event_proc.outbox_enabled", def.EventProc.OutboxEnabled)
	v.SetDefault("event_proc.queue_capacity", def.EventProc.QueueCapacity)

	v.SetDefault("seeder.target_event_count", def.Seeder.TargetEventCount)
	v.SetDefault("seeder.user_count", def.Seeder.UserCount)
	v.SetDefault("seeder.generate_workers", def.Seeder.GenerateWorkers)
	v.SetDefault("seeder.insert_workers", def.Seeder.InsertWorkers)
	v.SetDefault("seeder.batch_size", def.Seeder.BatchSize)
	v.SetDefault("seeder.channel_depth", def.Seeder.ChannelDepth)
	v.SetDefault("seeder.max_retries", def.Seeder.MaxRetries)
	v.SetDefault("seeder.backoff.base", def.Seeder.Backoff.Base)
	v.SetDefault("seeder.backoff.max", def.Seeder.Backoff.Max)
	v.SetDefault("seeder.connection_backoff.base", def.Seeder.ConnectionBackoff.Base)
	v.SetDefault("seeder.connection_backoff.max", def.Seeder.ConnectionBackoff.Max)
	v.SetDefault("seeder.health_check_every_n_batches", def.Seeder.HealthCheckEvery)
	v.SetDefault("seeder.rate_limit_per_sec", def.Seeder.RateLimitPerSec)

	v.SetDefault("scheduler.user_metrics_flush_interval", def.Scheduler.UserMetricsFlushInterval)
	v.SetDefault("scheduler.outbox_sweep_interval", def.Scheduler.OutboxSweepInterval)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Cache.MinLayers < 1 {
		return fmt.Errorf("cache.min_layers must be >= 1")
	}
	if cfg.Cache.MaxLayers < cfg.Cache.MinLayers {
		return fmt.Errorf("cache.max_layers must be >= cache.min_layers")
	}
	if cfg.Cache.OverflowStrategy != "drop" && cfg.Cache.OverflowStrategy != "move_to_slower_layer" {
		return fmt.Errorf("cache.overflow_strategy must be drop or move_to_slower_layer")
	}
	if cfg.Seeder.BatchSize < 1 {
		return fmt.Errorf("seeder.batch_size must be >= 1")
	}
	if cfg.Seeder.InsertWorkers < 1 {
		return fmt.Errorf("seeder.insert_workers must be >= 1")
	}
	if cfg.EventBus.MainChannelCapacity < 1 {
		return fmt.Errorf("event_bus.main_channel_capacity must be >= 1")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
