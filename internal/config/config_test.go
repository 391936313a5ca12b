package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
mongo:
  uri: mongodb://localhost:27017
  database: quizblitz
redis:
  addr: localhost:6379
  ttl: 5m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Mongo.URI != "mongodb://localhost:27017" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Redis.TTL != "5m" {
		t.Fatalf("unexpected redis ttl %q", cfg.Redis.TTL)
	}
}

func TestLoadMongoURIFallsBackToEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://env-host:27017")
	path := writeConfig(t, `
mongo:
  database: quizblitz
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mongo.URI != "mongodb://env-host:27017" {
		t.Fatalf("expected env fallback, got %q", cfg.Mongo.URI)
	}
}

func TestLoadFileURIWinsOverEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://env-host:27017")
	path := writeConfig(t, `
mongo:
  uri: mongodb://file-host:27017
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mongo.URI != "mongodb://file-host:27017" {
		t.Fatalf("expected file value to win, got %q", cfg.Mongo.URI)
	}
}

func TestDurationFallbacks(t *testing.T) {
	if d := Duration("", time.Second); d != time.Second {
		t.Fatalf("expected fallback for empty, got %v", d)
	}
	if d := Duration("bogus", time.Second); d != time.Second {
		t.Fatalf("expected fallback for invalid, got %v", d)
	}
	if d := Duration("250ms", time.Second); d != 250*time.Millisecond {
		t.Fatalf("expected parsed duration, got %v", d)
	}
}
