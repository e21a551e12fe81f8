package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	GitHub     GitHubConfig
	RateLimit  RateLimitConfig
	Aggregate  AggregateConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	// CacheTTL bounds how long merged rollups and leaderboards stay cached.
	CacheTTL time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type GitHubConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
}

type RateLimitConfig struct {
	SweepInterval time.Duration
}

type AggregateConfig struct {
	// Concurrency caps concurrent per-child fetches during fan-out. 0 means unbounded.
	Concurrency int
	// WeekLimit truncates merged commit activity to the most recent N weeks.
	WeekLimit int
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads configuration from the environment. A .env file is loaded
// first when present so local development matches the container setup.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         getEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
				CacheTTL: getEnvDuration("STATS_CACHE_TTL", 10*time.Minute),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "stats"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Enabled:    getEnvBool("KAFKA_ENABLED", false),
				Brokers:    getEnvList("KAFKA_BROKERS", "localhost:9092"),
				AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "stats-audit-events"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
				URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
				Database: getEnv("CLICKHOUSE_DATABASE", "stats"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			GitHub: GitHubConfig{
				BaseURL:        getEnv("GITHUB_BASE_URL", "https://api.github.com"),
				Token:          getEnv("GITHUB_TOKEN", ""),
				RequestTimeout: getEnvDuration("GITHUB_REQUEST_TIMEOUT", 10*time.Second),
			},
			RateLimit: RateLimitConfig{
				SweepInterval: getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
			},
			Aggregate: AggregateConfig{
				Concurrency: getEnvInt("AGGREGATE_CONCURRENCY", 8),
				WeekLimit:   getEnvInt("AGGREGATE_WEEK_LIMIT", 52),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

// GetServerAddress returns the listen address for the HTTP server.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
