package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Waitlist WaitlistConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN           string
	MigrationsDir string
	AutoMigrate   bool
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

// WaitlistConfig carries the admission tunables. OfferTTL bounds how long a
// granted offer stays purchasable; SweepInterval bounds how stale a
// timed-out-but-unexpired offer can remain before the reconciliation sweep
// reclaims it.
type WaitlistConfig struct {
	OfferTTL       time.Duration
	SweepInterval  time.Duration
	JoinRateLimit  int
	JoinRateWindow time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
		Waitlist: WaitlistConfig{
			OfferTTL:       time.Duration(getEnvInt("OFFER_TTL_MS", 15*60*1000)) * time.Millisecond,
			SweepInterval:  time.Duration(getEnvInt("SWEEP_INTERVAL_MS", 30*1000)) * time.Millisecond,
			JoinRateLimit:  getEnvInt("JOIN_RATE_LIMIT", 3),
			JoinRateWindow: time.Duration(getEnvInt("JOIN_RATE_WINDOW_MINUTES", 30)) * time.Minute,
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
