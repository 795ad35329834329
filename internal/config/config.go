// Package config loads startup configuration from the environment, with an
// optional .env file for development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config collects everything the server binary needs to start.
type Config struct {
	Addr        string        // HTTP listen address
	DatabaseURL string        // PostgreSQL DSN; required unless DevMemory
	JWTKey      string        // HS256 signing key; required
	AccessTTL   time.Duration // access token lifetime
	MaxBatch    int           // max operations per sync submission
	DevMemory   bool          // run on the in-memory stores (development only)
}

// Load reads configuration from the environment. A .env file is applied
// best-effort before reading.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:        EnvOrDefault("ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTKey:      os.Getenv("JWT_KEY"),
		AccessTTL:   envDuration("ACCESS_TTL", 7*24*time.Hour),
		MaxBatch:    500,
		DevMemory:   os.Getenv("DEV_MEMORY") == "1",
	}
}

// EnvOrDefault returns the environment variable value or fallback when unset.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
