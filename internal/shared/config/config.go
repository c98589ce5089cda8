package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	Dispatch   DispatchConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for the EventStoreDB event bus.
type EventStoreConfig struct {
	// Host is the EventStoreDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// DispatchConfig holds tunables for the dispatch core.
type DispatchConfig struct {
	// AmbulancePresenceTTL is how long a reported ambulance position stays
	// visible before it is considered stale.
	AmbulancePresenceTTL time.Duration
	// DefaultBedCategory is the pool reserved when a hospital accepts a case
	// without naming one.
	DefaultBedCategory string
	// RateLimitRPS / RateLimitBurst bound the public API request rate.
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "dispatch"),
			Password: getEnv("DB_PASSWORD", "dispatch"),
			Database: getEnv("DB_NAME", "dispatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Dispatch: DispatchConfig{
			AmbulancePresenceTTL: getEnvDuration("AMBULANCE_PRESENCE_TTL", 2*time.Minute),
			DefaultBedCategory:   getEnv("DEFAULT_BED_CATEGORY", "Emergency"),
			RateLimitRPS:         getEnvInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst:       getEnvInt("RATE_LIMIT_BURST", 200),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
