// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// PostgresConfig captures connection settings for the primary store.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig captures settings for the lookup cache. An empty URL disables
// caching.
type RedisConfig struct {
	URL          string
	CacheTTL     time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig captures settings for the audit event stream. Empty brokers
// disable streaming; events then stay in the in-process store.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Config is the full application configuration.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	jwtSigningKey := getEnv("IDSTORE_JWT_SIGNING_KEY", "")
	if jwtSigningKey == "" {
		// Development default; override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:          getEnv("IDSTORE_ADDR", ":8080"),
			JWTSigningKey: jwtSigningKey,
			JWTIssuer:     getEnv("IDSTORE_JWT_ISSUER", "idstore"),
			JWTAudience:   getEnv("IDSTORE_JWT_AUDIENCE", "idstore-admin"),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("IDSTORE_DATABASE_URL"),
			MaxOpenConns:    getEnvInt("IDSTORE_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("IDSTORE_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("IDSTORE_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("IDSTORE_REDIS_URL"),
			CacheTTL:     getEnvDuration("IDSTORE_CACHE_TTL", 5*time.Minute),
			PoolSize:     getEnvInt("IDSTORE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("IDSTORE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("IDSTORE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("IDSTORE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("IDSTORE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("IDSTORE_KAFKA_BROKERS")),
			AuditTopic: getEnv("IDSTORE_KAFKA_AUDIT_TOPIC", "identity.audit"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
