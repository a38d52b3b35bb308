package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFile_Defaults(t *testing.T) {
	cfg, err := LoadConfigFile("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Expected 5m cache TTL, got %s", cfg.Cache.TTL)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Expected memory backend, got %s", cfg.Storage.Backend)
	}
	if !cfg.ExchangeAPI.SampleFallback {
		t.Error("Expected sample fallback enabled by default")
	}
}

func TestLoadConfigFile_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
exchange_api:
  refresh_rate: 2m
  max_retries: 5
  sample_fallback: false
cache:
  ttl: 90s
  key_prefix: test_
storage:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Expected default read timeout to survive, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.ExchangeAPI.RefreshRate != 2*time.Minute || cfg.ExchangeAPI.MaxRetries != 5 || cfg.ExchangeAPI.SampleFallback {
		t.Errorf("Unexpected exchange api config: %+v", cfg.ExchangeAPI)
	}
	if cfg.Cache.TTL != 90*time.Second || cfg.Cache.KeyPrefix != "test_" {
		t.Errorf("Unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.Redis.Addr != "redis:6379" || cfg.Storage.Redis.DB != 2 {
		t.Errorf("Unexpected storage config: %+v", cfg.Storage)
	}
}

func TestLoadConfigFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("STORAGE_BACKEND", "POSTGRES")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/rates")
	t.Setenv("EXCHANGE_API_SAMPLE_FALLBACK", "false")
	t.Setenv("EXCHANGE_API_MAX_RETRIES", "not-a-number")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Expected env TTL 1m, got %s", cfg.Cache.TTL)
	}
	if cfg.Storage.Backend != "postgres" || cfg.Storage.Postgres.DSN == "" {
		t.Errorf("Unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.ExchangeAPI.SampleFallback {
		t.Error("Expected sample fallback disabled by env")
	}
	if cfg.ExchangeAPI.MaxRetries != 3 {
		t.Errorf("Expected invalid env value to keep 3 retries, got %d", cfg.ExchangeAPI.MaxRetries)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "Malformed YAML", content: "server: [port"},
		{name: "Bad port", content: "server:\n  port: 70000\n"},
		{name: "Unknown backend", content: "storage:\n  backend: etcd\n"},
		{name: "Postgres without DSN", content: "storage:\n  backend: postgres\n"},
		{name: "Zero cleanup interval", content: "cache:\n  cleanup_interval: 0s\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfigFile(writeConfig(t, tc.content)); err == nil {
				t.Error("Expected error but got nil")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", t.TempDir())

	t.Run("Missing default file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "")
		if _, err := LoadConfig(); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("Explicit file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeConfig(t, "server:\n  port: 9191\n"))
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if cfg.Server.Port != 9191 {
			t.Errorf("Expected port 9191, got %d", cfg.Server.Port)
		}
	})

	t.Run("Explicit file missing", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := LoadConfig(); err == nil {
			t.Error("Expected error but got nil")
		}
	})
}
