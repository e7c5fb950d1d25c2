package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds database connection parameters.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads database configuration from environment variables.
// DATABASE_URL takes precedence; otherwise the DSN is assembled from the
// individual DB_* variables.
func LoadConfigFromEnv() (Config, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		url = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			getEnvOrDefault("DB_USER", "vodrag"),
			os.Getenv("DB_PASSWORD"),
			getEnvOrDefault("DB_HOST", "localhost"),
			port,
			getEnvOrDefault("DB_NAME", "vodrag"),
			getEnvOrDefault("DB_SSLMODE", "disable"),
		)
	}

	maxConns, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_CONNS", "10"))
	minConns, _ := strconv.Atoi(getEnvOrDefault("DB_MIN_CONNS", "2"))

	return Config{
		URL:             url,
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
