package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr      string
	QueueSize int
	LogLevel  string
	OplogPath string
}

func Load() Config {
	return Config{
		Addr:      getenv("ARBOR_ADDR", ":8477"),
		QueueSize: getenvInt("ARBOR_QUEUE_SIZE", 256),
		LogLevel:  getenv("ARBOR_LOG_LEVEL", "info"),
		// Oplog is disabled when no path is configured.
		OplogPath: getenv("ARBOR_OPLOG_PATH", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
