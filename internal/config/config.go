// Package config loads Agent Arena's runtime configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config bundles every knob the evaluation pipeline and HTTP surface
// need, sourced from the environment.
type Config struct {
	DataDir            string
	DBPath             string
	ChallengesDir      string
	CatalogPath        string
	SandboxTimeout     int // seconds
	SandboxMemoryMB    int
	SandboxMaxOutput   int // bytes
	SubmissionsPerHour int
	APIHost            string
	APIPort            int
	QueueDepth         int
	Workers            int
}

// Load reads configuration from the environment. A .env file at the
// working directory root is applied first (if present) without
// overriding variables already set in the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	dataDir := getEnv("ARENA_DATA_DIR", "./data")

	cfg := &Config{
		DataDir:            dataDir,
		DBPath:             filepath.Join(dataDir, "arena.db"),
		ChallengesDir:      filepath.Join(dataDir, "challenges"),
		CatalogPath:        getEnv("ARENA_CATALOG", "catalog.yaml"),
		SandboxTimeout:     getEnvInt("SANDBOX_TIMEOUT", 60),
		SandboxMemoryMB:    getEnvInt("SANDBOX_MEMORY_MB", 512),
		SandboxMaxOutput:   getEnvInt("SANDBOX_MAX_OUTPUT", 10*1024*1024),
		SubmissionsPerHour: getEnvInt("SUBMISSIONS_PER_HOUR", 10),
		APIHost:            getEnv("API_HOST", "0.0.0.0"),
		APIPort:            getEnvInt("API_PORT", 8000),
		QueueDepth:         getEnvInt("ARENA_QUEUE_DEPTH", 256),
		Workers:            getEnvInt("ARENA_WORKERS", 4),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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
