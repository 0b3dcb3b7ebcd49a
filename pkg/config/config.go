// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Auth, Postgres, Redis, Kafka, Dataset, RateLimit, Search).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. PublicHost is the host clients are
// expected to arrive from; cross-origin requests are rejected against it.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	PublicHost      string        `yaml:"publicHost"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// AuthConfig holds the credentials guarding the dataset and admin endpoints.
// SessionSecret signs the short-lived tokens handed to querying clients;
// AdminToken is the operator bearer token for the admin API.
type AuthConfig struct {
	SessionSecret string        `yaml:"sessionSecret"`
	SessionTTL    time.Duration `yaml:"sessionTTL"`
	AdminToken    string        `yaml:"adminToken"`
}

// PostgresConfig holds PostgreSQL connection parameters for the content
// repository and the settings store.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters for the rate-limit counters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds the broker list and the lifecycle-event topic. Leave
// Brokers empty to disable event publishing.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	LifecycleTopic string   `yaml:"lifecycleTopic"`
}

// Enabled reports whether event publishing is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.LifecycleTopic != ""
}

// DatasetConfig controls snapshot storage and the build pipeline.
type DatasetConfig struct {
	Dir            string          `yaml:"dir"`
	ExcerptMaxLen  int             `yaml:"excerptMaxLen"`
	TickInterval   time.Duration   `yaml:"tickInterval"`
	ExtractTimeout time.Duration   `yaml:"extractTimeout"`
	Exclusions     ExclusionConfig `yaml:"exclusions"`
}

// ExclusionConfig lists content excluded from the snapshot. IDs remove
// individual documents; Categories and Tags remove posts carrying them
// (pages are unaffected by category/tag exclusions).
type ExclusionConfig struct {
	IDs        []int64 `yaml:"ids"`
	Categories []int64 `yaml:"categories"`
	Tags       []int64 `yaml:"tags"`
}

// RateLimitConfig holds the dual-window admission caps for the dataset
// endpoint.
type RateLimitConfig struct {
	PerMinute    int           `yaml:"perMinute"`
	PerHour      int           `yaml:"perHour"`
	MinuteWindow time.Duration `yaml:"minuteWindow"`
	HourWindow   time.Duration `yaml:"hourWindow"`
}

// SearchConfig controls the preview-search endpoint and client defaults.
type SearchConfig struct {
	TopK       int     `yaml:"topK"`
	MaxTopK    int     `yaml:"maxTopK"`
	TitleBoost float64 `yaml:"titleBoost"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			PublicHost:      "localhost",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			SessionSecret: "localdev-session-secret",
			SessionTTL:    12 * time.Hour,
			AdminToken:    "localdev-admin-token",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "siteassistant",
			User:            "siteassistant",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:        nil,
			LifecycleTopic: "dataset-lifecycle",
		},
		Dataset: DatasetConfig{
			Dir:            "data/dataset",
			ExcerptMaxLen:  1000,
			TickInterval:   24 * time.Hour,
			ExtractTimeout: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			PerMinute:    12,
			PerHour:      200,
			MinuteWindow: time.Minute,
			HourWindow:   time.Hour,
		},
		Search: SearchConfig{
			TopK:       5,
			MaxTopK:    10,
			TitleBoost: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SSA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SSA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SSA_SERVER_PUBLIC_HOST"); v != "" {
		cfg.Server.PublicHost = v
	}
	if v := os.Getenv("SSA_AUTH_SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("SSA_AUTH_ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := os.Getenv("SSA_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SSA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SSA_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SSA_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SSA_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SSA_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SSA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SSA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SSA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SSA_DATASET_DIR"); v != "" {
		cfg.Dataset.Dir = v
	}
	if v := os.Getenv("SSA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SSA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SSA_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
