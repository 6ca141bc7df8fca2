// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds every setting. Field tags name the environment variable.
type Config struct {
	Port         string `config:"PORT"`
	StoreBackend string `config:"STORE_BACKEND"`

	// DatabaseURL, when set, takes precedence over the DB_* fields.
	DatabaseURL string `config:"DATABASE_URL"`
	DBHost      string `config:"DB_HOST"`
	DBPort      string `config:"DB_PORT"`
	DBUser      string `config:"DB_USER"`
	DBPassword  string `config:"DB_PASSWORD"`
	DBName      string `config:"DB_NAME"`
	DBSSLMode   string `config:"DB_SSLMODE"`

	RedisAddress  string `config:"REDIS_ADDRESS"`
	RedisPassword string `config:"REDIS_PASSWORD"`
	RedisDB       int    `config:"REDIS_DB"`
	RedisPrefix   string `config:"REDIS_PREFIX"`

	// Rooms is a comma-separated room catalog; empty means the built-in list.
	Rooms         string `config:"ROOMS"`
	DragPolicy    string `config:"DRAG_POLICY"`
	WriteAttempts int    `config:"WRITE_ATTEMPTS"`

	LogLevel  string `config:"LOG_LEVEL"`
	LogFormat string `config:"LOG_FORMAT"`

	JaegerEndpoint string `config:"JAEGER_ENDPOINT"`

	ResubscribeDelay time.Duration `config:"RESUBSCRIBE_DELAY"`
}

// Defaults are the local-development settings.
func Defaults() Config {
	return Config{
		Port:             "8080",
		StoreBackend:     BackendPostgres,
		DBHost:           "localhost",
		DBPort:           "5432",
		DBUser:           "postgres",
		DBPassword:       "postgres",
		DBName:           "roomcalendar",
		DBSSLMode:        "disable",
		RedisAddress:     "localhost:6379",
		RedisPrefix:      "calendar",
		DragPolicy:       "accumulate",
		WriteAttempts:    3,
		LogLevel:         "info",
		LogFormat:        "text",
		ResubscribeDelay: 2 * time.Second,
	}
}

// Load reads envFile when it exists, then overlays environment variables on
// Defaults. Pass "" to skip the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := Defaults()
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, cfg.Validate()
}

// Validate checks settings that have a closed set of values.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of postgres, redis, memory; got %q", c.StoreBackend)
	}
	switch c.DragPolicy {
	case "accumulate", "replace":
	default:
		return fmt.Errorf("DRAG_POLICY must be accumulate or replace; got %q", c.DragPolicy)
	}
	if c.WriteAttempts < 1 {
		return fmt.Errorf("WRITE_ATTEMPTS must be at least 1; got %d", c.WriteAttempts)
	}
	return nil
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}
