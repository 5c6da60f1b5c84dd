package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
flows:
  - "flows/*.yaml"
baseUrl: https://api.example.com
headers:
  X-Api-Key: secret
timeout: 5000
env:
  region: eu-west-1
output: ./reports
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://api.example.com" {
		t.Errorf("baseUrl: got %q", cfg.BaseURL)
	}
	if cfg.Timeout != 5000 {
		t.Errorf("timeout: got %d", cfg.Timeout)
	}
	if cfg.Headers["X-Api-Key"] != "secret" {
		t.Errorf("headers: got %v", cfg.Headers)
	}
	if cfg.Env["region"] != "eu-west-1" {
		t.Errorf("env: got %v", cfg.Env)
	}
	if len(cfg.Flows) != 1 || cfg.Flows[0] != "flows/*.yaml" {
		t.Errorf("flows: got %v", cfg.Flows)
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte("baseUrl: http://x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	if cfg.BaseURL != "http://x" {
		t.Errorf("expected .yml fallback to be honored, got %q", cfg.BaseURL)
	}
}

func TestLoadFromDir_Missing(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("a missing config file is not an error: %v", err)
	}
	if cfg.BaseURL != "" || len(cfg.Env) != 0 {
		t.Errorf("expected empty defaults, got %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("baseUrl: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}
