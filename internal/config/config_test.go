package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nishad/srafetch/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Jobs.NJobs != 1 {
		t.Errorf("expected n_jobs 1, got %d", cfg.Jobs.NJobs)
	}
	if cfg.Jobs.Retries != 2 {
		t.Errorf("expected retries 2, got %d", cfg.Jobs.Retries)
	}
	if cfg.Entrez.BatchSize != 150 {
		t.Errorf("expected batch_size 150, got %d", cfg.Entrez.BatchSize)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected log format text, got %q", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	t.Setenv("SRAFETCH_EMAIL", "")
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load should return defaults for non-existent file, got error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config for non-existent file")
	}
}

func TestLoadValidFile(t *testing.T) {
	t.Setenv("SRAFETCH_EMAIL", "")
	t.Setenv("NCBI_API_KEY", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
entrez:
  email: someone@example.org
  timeout: 15s
jobs:
  n_jobs: 4
  retries: 5
sequences:
  restricted_access: true
  key_file: /keys/prj.ngc
  min_free_space: 20GB
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Entrez.Email != "someone@example.org" {
		t.Errorf("email = %q", cfg.Entrez.Email)
	}
	if cfg.Entrez.Timeout != 15*time.Second {
		t.Errorf("timeout = %v", cfg.Entrez.Timeout)
	}
	if cfg.Jobs.NJobs != 4 || cfg.Jobs.Retries != 5 {
		t.Errorf("jobs = %+v", cfg.Jobs)
	}
	if !cfg.Sequences.RestrictedAccess || cfg.Sequences.KeyFile != "/keys/prj.ngc" {
		t.Errorf("sequences = %+v", cfg.Sequences)
	}
	if n, err := cfg.MinFreeSpaceBytes(); err != nil || n != 20_000_000_000 {
		t.Errorf("MinFreeSpaceBytes() = %d, %v", n, err)
	}
	// Unset fields keep their defaults.
	if cfg.Entrez.BatchSize != 150 {
		t.Errorf("batch_size = %d, want default 150", cfg.Entrez.BatchSize)
	}
	if p := cfg.RetryPolicy(); p.Retries != 5 {
		t.Errorf("RetryPolicy().Retries = %d", p.Retries)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SRAFETCH_EMAIL", "env@example.org")
	t.Setenv("NCBI_API_KEY", "abc123")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Entrez.Email != "env@example.org" {
		t.Errorf("email = %q", cfg.Entrez.Email)
	}
	if cfg.Entrez.APIKey != "abc123" {
		t.Errorf("api key = %q", cfg.Entrez.APIKey)
	}
}

func TestLoadUploadCredentialsFromEnv(t *testing.T) {
	t.Setenv("SRAFETCH_S3_ACCESS_KEY", "access")
	t.Setenv("SRAFETCH_S3_SECRET_KEY", "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "upload:\n  enabled: true\n  endpoint: http://localhost:9000\n  bucket: runs\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upload.AccessKeyID != "access" || cfg.Upload.SecretAccessKey != "secret" {
		t.Errorf("upload credentials = %q/%q", cfg.Upload.AccessKeyID, cfg.Upload.SecretAccessKey)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "jobs: [unclosed"},
		{"zero jobs", "jobs:\n  n_jobs: 0\n"},
		{"negative retries", "jobs:\n  retries: -1\n"},
		{"bad size", "sequences:\n  min_free_space: lots\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"upload without bucket", "upload:\n  enabled: true\n  endpoint: http://localhost:9000\n  access_key_id: a\n  secret_access_key: b\n"},
		{"upload without credentials", "upload:\n  enabled: true\n  endpoint: http://localhost:9000\n  bucket: runs\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.IsKind(err, errors.KindConfig) {
				t.Errorf("error = %v, want config kind", err)
			}
		})
	}
}

func TestRequireEmail(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.RequireEmail(); !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("error = %v, want config kind", err)
	}
	cfg.Entrez.Email = "a@b.c"
	if err := cfg.RequireEmail(); err != nil {
		t.Errorf("RequireEmail: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("SRAFETCH_EMAIL", "")
	t.Setenv("NCBI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Entrez.Email = "saved@example.org"
	cfg.Server.Port = 9999
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Entrez.Email != "saved@example.org" || loaded.Server.Port != 9999 {
		t.Errorf("reloaded config = %+v", loaded)
	}
}

func TestGetConfigPathEnv(t *testing.T) {
	t.Setenv("SRAFETCH_CONFIG", "/etc/srafetch.yaml")
	if got := GetConfigPath(); got != "/etc/srafetch.yaml" {
		t.Errorf("GetConfigPath() = %q", got)
	}
}
