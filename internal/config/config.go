package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the sync daemon.
type Config struct {
	DatabaseURL  string
	APIBaseURL   string
	APIToken     string
	UserID       int64
	SyncInterval time.Duration
	PageSize     int
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIBaseURL:   strings.TrimSpace(os.Getenv("API_BASE_URL")),
		APIToken:     strings.TrimSpace(os.Getenv("API_TOKEN")),
		UserID:       parseInt64(strings.TrimSpace(os.Getenv("USER_ID"))),
		SyncInterval: parseMinutes(strings.TrimSpace(os.Getenv("SYNC_INTERVAL_MINUTES"))),
		PageSize:     parseInt(strings.TrimSpace(os.Getenv("PAGE_SIZE"))),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "tasksync.db"
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 5 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}

	if cfg.APIBaseURL == "" {
		return cfg, fmt.Errorf("API_BASE_URL is required")
	}

	return cfg, nil
}

func parseMinutes(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

func parseInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func parseInt64(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
