package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	IngestDirect = "direct"
	IngestKafka  = "kafka"
)

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	KV          KVConfig
	Analytics   AnalyticsConfig
	Rollup      RollupConfig
	Postgres    PostgresConfig
	Kafka       KafkaConfig
}

type HTTPConfig struct {
	EventPort       string
	QueryPort       string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// RateLimit is requests per minute per client IP on ingest routes, 0 disables it.
	RateLimit int
}

type KVConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int
}

type AnalyticsConfig struct {
	Password          string
	IngestMode        string
	MaxBatchSize      int
	SessionTTL        time.Duration
	EngagementMarkTTL time.Duration
	ActiveVisitorTTL  time.Duration
	TimelineDays      int
}

type RollupConfig struct {
	Enabled  bool
	Interval time.Duration
}

type PostgresConfig struct {
	Host            string
	Port            string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
}

type KafkaConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	ProducerRetries  int
	ProducerTimeout  time.Duration
	RequiredAcks     int
	CompressionType  string
	MaxMessageBytes  int
	IdempotentWrites bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	cfg.HTTP = HTTPConfig{
		EventPort:       getEnv("HTTP_PORT", "8080"),
		QueryPort:       getEnv("QUERY_HTTP_PORT", "8081"),
		ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimit:       getEnvAsInt("INGEST_RATE_LIMIT", 600),
	}

	// Vercel KV exposes the same REST API under different names.
	cfg.KV = KVConfig{
		URL:     getEnv("UPSTASH_REDIS_REST_URL", os.Getenv("KV_REST_API_URL")),
		Token:   getEnv("UPSTASH_REDIS_REST_TOKEN", os.Getenv("KV_REST_API_TOKEN")),
		Timeout: getEnvAsDuration("KV_TIMEOUT", 3*time.Second),
		Retries: getEnvAsInt("KV_RETRIES", 2),
	}

	cfg.Analytics = AnalyticsConfig{
		Password:          os.Getenv("ANALYTICS_PASSWORD"),
		IngestMode:        strings.ToLower(getEnv("INGEST_MODE", IngestDirect)),
		MaxBatchSize:      getEnvAsInt("ANALYTICS_MAX_BATCH_SIZE", 100),
		SessionTTL:        getEnvAsDuration("ANALYTICS_SESSION_TTL", 30*time.Minute),
		EngagementMarkTTL: getEnvAsDuration("ANALYTICS_ENGAGEMENT_MARK_TTL", 24*time.Hour),
		ActiveVisitorTTL:  getEnvAsDuration("ANALYTICS_ACTIVE_VISITOR_TTL", 5*time.Minute),
		TimelineDays:      getEnvAsInt("ANALYTICS_TIMELINE_DAYS", 7),
	}

	cfg.Rollup = RollupConfig{
		Enabled:  getEnvAsBool("ROLLUP_ENABLED", false),
		Interval: getEnvAsDuration("ROLLUP_INTERVAL", 5*time.Minute),
	}

	cfg.Postgres = PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnv("POSTGRES_PORT", "5432"),
		Database:        getEnv("POSTGRES_DB", "analytics"),
		Username:        getEnv("POSTGRES_USER", "admin"),
		Password:        getEnv("POSTGRES_PASSWORD", "password"),
		MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:          getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
		Topic:            getEnv("KAFKA_TOPIC_EVENTS", "analytics-events"),
		GroupID:          getEnv("KAFKA_CONSUMER_GROUP", "analytics-service"),
		ProducerRetries:  getEnvAsInt("KAFKA_PRODUCER_RETRIES", 3),
		ProducerTimeout:  getEnvAsDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
		RequiredAcks:     getEnvAsInt("KAFKA_REQUIRED_ACKS", -1), // -1 = all in-sync replicas
		CompressionType:  getEnv("KAFKA_COMPRESSION", "snappy"),
		IdempotentWrites: getEnvAsBool("KAFKA_IDEMPOTENT", true),
		MaxMessageBytes:  getEnvAsInt("KAFKA_MAX_MESSAGE_BYTES", 1000000),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Analytics.IngestMode {
	case IngestDirect, IngestKafka:
	default:
		return fmt.Errorf("invalid INGEST_MODE %q: must be %s or %s", c.Analytics.IngestMode, IngestDirect, IngestKafka)
	}
	if c.Analytics.MaxBatchSize <= 0 {
		return fmt.Errorf("ANALYTICS_MAX_BATCH_SIZE must be positive, got %d", c.Analytics.MaxBatchSize)
	}
	if c.Analytics.TimelineDays <= 0 {
		return fmt.Errorf("ANALYTICS_TIMELINE_DAYS must be positive, got %d", c.Analytics.TimelineDays)
	}
	return nil
}

func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
