package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Database.Driver != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", config.Database.Driver)
	}
	if config.Presence.Transport != "websocket" {
		t.Errorf("Expected default transport websocket, got %s", config.Presence.Transport)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	content := `
server:
  port: "9000"
database:
  driver: postgres
  dsn: "host=db user=postgres dbname=parley"
presence:
  transport: redis
  redisAddr: "redis:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("PORT", "9100")

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Database.Driver != "postgres" {
		t.Errorf("Expected driver postgres, got %s", config.Database.Driver)
	}
	if config.Presence.RedisAddr != "redis:6379" {
		t.Errorf("Expected redis address from file, got %s", config.Presence.RedisAddr)
	}
	if config.Server.Port != "9100" {
		t.Errorf("Expected PORT env to override file, got %s", config.Server.Port)
	}
	// Values missing from the file keep their defaults
	if config.Media.Dir != "./media" {
		t.Errorf("Expected default media dir, got %s", config.Media.Dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
