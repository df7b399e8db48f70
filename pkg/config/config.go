// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Cache, Redis, Postgres, Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	RequestTimeout  time.Duration   `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	AllowedOrigins  []string        `yaml:"allowedOrigins"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig is a per-client token bucket. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver        string        `yaml:"driver"`
	Path          string        `yaml:"path"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watchDebounce"`
}

// IndexerConfig controls how the inverted index follows document mutations.
type IndexerConfig struct {
	Incremental bool `yaml:"incremental"`
}

// SearchConfig controls query result limits and previews.
type SearchConfig struct {
	DefaultLimit  int `yaml:"defaultLimit"`
	MaxLimit      int `yaml:"maxLimit"`
	SnippetLength int `yaml:"snippetLength"`
}

// IngestConfig controls web page ingestion. AllowPrivate permits fetching
// loopback and private network addresses.
type IngestConfig struct {
	ChunkSize    int           `yaml:"chunkSize"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	AllowPrivate bool          `yaml:"allowPrivate"`
}

// CacheConfig selects the ranked-result cache backend.
type CacheConfig struct {
	Backend         string `yaml:"backend"`
	Segments        int    `yaml:"segments"`
	ClearOnMutation bool   `yaml:"clearOnMutation"`
}

// RedisConfig holds Redis connection and caching parameters. CacheTTL of zero
// keeps entries until an explicit clear.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	KeyPrefix string        `yaml:"keyPrefix"`
}

// PostgresConfig holds PostgreSQL connection parameters for the metadata store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for analytics events.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topic         string        `yaml:"topic"`
	BufferSize    int           `yaml:"bufferSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint. Port 0 serves
// /metrics on the main listener.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
			RateLimit: RateLimitConfig{
				RPS:   50,
				Burst: 100,
			},
		},
		Store: StoreConfig{
			Driver:        "file",
			Path:          "documents.json",
			Watch:         true,
			WatchDebounce: 200 * time.Millisecond,
		},
		Search: SearchConfig{
			DefaultLimit:  5,
			MaxLimit:      100,
			SnippetLength: 100,
		},
		Ingest: IngestConfig{
			ChunkSize:    100,
			FetchTimeout: 15 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Cache: CacheConfig{
			Backend:  "memory",
			Segments: 16,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "docsearch:",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-analytics",
			Topic:         "search-analytics",
			BufferSize:    1024,
			FlushInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

var (
	validDrivers  = map[string]bool{"file": true, "bolt": true, "memory": true}
	validBackends = map[string]bool{"memory": true, "redis": true, "none": true}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !validDrivers[c.Store.Driver] {
		result = multierror.Append(result, fmt.Errorf("store.driver %q must be file, bolt or memory", c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.Path == "" {
		result = multierror.Append(result, errors.New("store.path is required for persistent drivers"))
	}
	if !validBackends[c.Cache.Backend] {
		result = multierror.Append(result, fmt.Errorf("cache.backend %q must be memory, redis or none", c.Cache.Backend))
	}
	if c.Cache.Backend == "memory" && c.Cache.Segments <= 0 {
		result = multierror.Append(result, errors.New("cache.segments must be positive"))
	}
	if c.Search.DefaultLimit <= 0 {
		result = multierror.Append(result, errors.New("search.defaultLimit must be positive"))
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		result = multierror.Append(result, errors.New("search.maxLimit must be >= search.defaultLimit"))
	}
	if c.Search.SnippetLength <= 0 {
		result = multierror.Append(result, errors.New("search.snippetLength must be positive"))
	}
	if c.Ingest.ChunkSize <= 0 {
		result = multierror.Append(result, errors.New("ingest.chunkSize must be positive"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		result = multierror.Append(result, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return result
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DS_INGEST_ALLOW_PRIVATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ingest.AllowPrivate = b
		}
	}
	if v := os.Getenv("DS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
