// Package config collects server configuration from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Log backends selectable via LOG_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the server configuration.
type Config struct {
	HTTPAddr    string
	LogBackend  string
	RedisURL    string
	PostgresURL string
	RabbitURL   string
	DataDir     string
	FanoutLimit int
}

// Load reads .env.local and .env (local overrides), then the environment.
func Load() Config {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogBackend:  getenv("LOG_BACKEND", BackendMemory),
		RedisURL:    os.Getenv("REDIS_URL"),
		PostgresURL: os.Getenv("DB_URL"),
		RabbitURL:   os.Getenv("RABBITMQ_URL"),
		DataDir:     getenv("DATA_DIR", "./data"),
		FanoutLimit: getenvInt("FANOUT_LIMIT", 8),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
