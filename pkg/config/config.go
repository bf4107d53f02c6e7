// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HubAddr string
	APIAddr string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr string

	ScyllaHosts []string
	Keyspace    string

	// DirectoryURL is the base URL of the Chat Directory service.
	DirectoryURL string

	JWTSecret string

	// NodeID must be unique per hub instance so snowflake ids never collide.
	NodeID int64

	// Standalone swaps the shared backends (Redis, Kafka, Scylla) for
	// in-process ones. Single-node development only.
	Standalone bool

	PresenceTTL  time.Duration
	PollInterval time.Duration
	EmailDelay   time.Duration
}

// Load reads the environment. Missing variables fall back to defaults that
// match a single-node local deployment.
func Load() *Config {
	// Best effort; services normally run with real env vars.
	_ = godotenv.Load()

	return &Config{
		HubAddr:      getenv("HUB_ADDR", ":8080"),
		APIAddr:      getenv("API_ADDR", ":8081"),
		KafkaBrokers: strings.Split(getenv("KAFKA_BROKERS", "localhost:19092"), ","),
		KafkaTopic:   getenv("KAFKA_TOPIC", "chat-events"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		ScyllaHosts:  strings.Split(getenv("SCYLLA_HOSTS", "localhost:9042"), ","),
		Keyspace:     getenv("SCYLLA_KEYSPACE", "messenger"),
		DirectoryURL: getenv("DIRECTORY_URL", "http://localhost:8082"),
		JWTSecret:    getenv("JWT_SECRET", "dev_secret_key"),
		NodeID:       getint64("NODE_ID", 1),
		Standalone:   getenv("STANDALONE", "") == "true",
		PresenceTTL:  time.Duration(getint64("PRESENCE_TTL_SECONDS", 3600)) * time.Second,
		PollInterval: time.Duration(getint64("POLL_INTERVAL_SECONDS", 10)) * time.Second,
		EmailDelay:   time.Duration(getint64("EMAIL_DELAY_MINUTES", 5)) * time.Minute,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
