package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "API_BASE_URL", "API_TOKEN", "USER_ID", "SYNC_INTERVAL_MINUTES", "PAGE_SIZE"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "tasksync.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted empty API_BASE_URL")
	}
}

func TestLoadReadsEverything(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "/var/lib/tasksync/tasks.db")
	t.Setenv("API_BASE_URL", " https://api.example.com ")
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("USER_ID", "7")
	t.Setenv("SYNC_INTERVAL_MINUTES", "15")
	t.Setenv("PAGE_SIZE", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "/var/lib/tasksync/tasks.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("APIBaseURL = %q, want trimmed", cfg.APIBaseURL)
	}
	if cfg.APIToken != "secret" || cfg.UserID != 7 {
		t.Errorf("token/user = %q/%d", cfg.APIToken, cfg.UserID)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.PageSize != 25 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("SYNC_INTERVAL_MINUTES", "-3")
	t.Setenv("PAGE_SIZE", "banana")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want default", cfg.SyncInterval)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d, want default", cfg.PageSize)
	}
}
