package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Strategy.Count != 2 {
		t.Errorf("default strategy count = %d, want 2", cfg.Strategy.Count)
	}
	if cfg.Image.PrimaryModel == "" || cfg.Image.FallbackModel == "" {
		t.Error("default image models should be set")
	}
	if cfg.Store.MaxBytes <= 0 {
		t.Errorf("default store max bytes = %d", cfg.Store.MaxBytes)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log_mode: prod
server:
  addr: ":9000"
strategy:
  count: 3
store:
  max_bytes: 1048576
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogMode != "prod" {
		t.Errorf("LogMode = %q, want prod", cfg.LogMode)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Strategy.Count != 3 {
		t.Errorf("Strategy.Count = %d, want 3", cfg.Strategy.Count)
	}
	if cfg.Store.MaxBytes != 1048576 {
		t.Errorf("Store.MaxBytes = %d, want 1048576", cfg.Store.MaxBytes)
	}
	// Untouched fields keep defaults
	if cfg.Image.PrimaryModel != Default().Image.PrimaryModel {
		t.Errorf("Image.PrimaryModel = %q, want default", cfg.Image.PrimaryModel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COVERSPARK_ADDR", ":7000")
	t.Setenv("COVERSPARK_DB", "/tmp/x.db")
	t.Setenv("COVERSPARK_STORE_MAX_BYTES", "2048")
	t.Setenv("GEMINI_BASE_URL", "http://localhost:1234")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":7000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Store.MaxBytes != 2048 {
		t.Errorf("Store.MaxBytes = %d", cfg.Store.MaxBytes)
	}
	if cfg.Backend.BaseURL != "http://localhost:1234" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("strategy:\n  count: 0\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with count 0 should error")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() with missing file should error")
	}
}

func TestLoad_EmptyOrigins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  allowed_origins: []\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with empty allowed_origins should error")
	}
}
