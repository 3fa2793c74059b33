package database

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/advisorkit/maestro/pkg/config"
)

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// FromConfig builds a database Config from the application configuration,
// with the password taken from the environment when unset in YAML.
func FromConfig(cfg *config.DatabaseConfig) Config {
	password := cfg.Password
	if password == "" {
		password = os.Getenv("DATABASE_PASSWORD")
	}
	return Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns / 2,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
	}
}

// LoadConfigFromEnv builds a database Config purely from environment
// variables. Used by tooling that runs without the YAML config.
func LoadConfigFromEnv() (Config, error) {
	port := 5432
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATABASE_PORT %q: %w", v, err)
		}
		port = p
	}

	cfg := Config{
		Host:            getEnv("DATABASE_HOST", "localhost"),
		Port:            port,
		User:            getEnv("DATABASE_USER", "maestro"),
		Password:        os.Getenv("DATABASE_PASSWORD"),
		Database:        getEnv("DATABASE_NAME", "maestro"),
		SSLMode:         getEnv("DATABASE_SSL_MODE", "disable"),
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
