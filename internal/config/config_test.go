package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Model.Provider != "gemini" {
		t.Errorf("expected provider 'gemini', got %q", cfg.Model.Provider)
	}
	if cfg.Model.Model != "gemini-2.0-flash" {
		t.Errorf("expected model 'gemini-2.0-flash', got %q", cfg.Model.Model)
	}
	if cfg.Model.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", cfg.Model.Temperature)
	}
	if cfg.Collection.CandidateSeeds != 3 || cfg.Collection.FollowersPerSeed != 10 {
		t.Errorf("unexpected collection bounds: %+v", cfg.Collection)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("expected 24h ttl, got %v", cfg.Session.TTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
model:
  provider: ollama
  model: llama3.1
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Model.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Model.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Model.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Model.OllamaURL)
	}
	if cfg.Bluesky.Host != "https://bsky.social" {
		t.Errorf("expected default bluesky host, got %q", cfg.Bluesky.Host)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := map[string]string{
		"temperature": "model:\n  temperature: 1.5\n",
		"provider":    "model:\n  provider: claude\n",
		"limits":      "collection:\n  followers_per_seed: 0\n",
		"backend":     "session:\n  backend: memcached\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := parse([]byte(doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Reddit.CommunityLimit != 100 {
		t.Errorf("expected community limit 100, got %d", cfg.Reddit.CommunityLimit)
	}
}

func TestLoadInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model:\n  temperature: -1\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid temperature")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Storage.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("FRIENDSCOUT_TEST_VAR", "value")
	if Env("FRIENDSCOUT_TEST_VAR") != "value" {
		t.Error("expected env value")
	}
	if Env("") != "" {
		t.Error("expected empty for empty name")
	}
}
