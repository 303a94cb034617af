package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Dataset != "reanalysis-era5-single-levels" {
		t.Errorf("expected default dataset reanalysis-era5-single-levels, got %s", cfg.Dataset)
	}
	if cfg.WorkersPerKey != 2 {
		t.Errorf("expected default workers_per_key 2, got %d", cfg.WorkersPerKey)
	}
	if !cfg.SkipExisting {
		t.Error("expected skip_existing enabled by default")
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 60*time.Second {
		t.Errorf("expected default retry backoff 60s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.TransportRetries != 10 {
		t.Errorf("expected default transport retries 10, got %d", cfg.Retry.TransportRetries)
	}
	if cfg.API.PollInterval != 10*time.Second {
		t.Errorf("expected default poll interval 10s, got %v", cfg.API.PollInterval)
	}
	if cfg.ChunkSize != 1024*1024 {
		t.Errorf("expected default chunk size 1MB, got %d", cfg.ChunkSize)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
years: ["2019", "2020"]
variables:
  - 2m_temperature
  - total_precipitation
dataset: reanalysis-era5-pressure-levels
levels: ["500", "850"]
short_names:
  2m_temperature: t2m
  total_precipitation: tp
output_dir: /data/era5
workers_per_key: 3
skip_existing: false
progress: true
chunk_size: 4MB
api:
  poll_interval: 2s
retry:
  attempts: 5
  backoff: 30s
  transport_backoff: 250ms
archive:
  bucket: s3://era5-archive
  prefix: raw
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if len(cfg.Years) != 2 || cfg.Years[0] != "2019" {
		t.Errorf("years = %v", cfg.Years)
	}
	if len(cfg.Variables) != 2 {
		t.Errorf("variables = %v", cfg.Variables)
	}
	if cfg.Dataset != "reanalysis-era5-pressure-levels" {
		t.Errorf("dataset = %s", cfg.Dataset)
	}
	if cfg.ShortNames["2m_temperature"] != "t2m" {
		t.Errorf("short_names = %v", cfg.ShortNames)
	}
	if cfg.OutputDir != "/data/era5" {
		t.Errorf("output_dir = %s", cfg.OutputDir)
	}
	if cfg.WorkersPerKey != 3 {
		t.Errorf("workers_per_key = %d", cfg.WorkersPerKey)
	}
	if cfg.SkipExisting {
		t.Error("expected skip_existing false")
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.ChunkSize != 4*1024*1024 {
		t.Errorf("chunk_size = %d, want 4MB", cfg.ChunkSize)
	}
	if cfg.API.PollInterval != 2*time.Second {
		t.Errorf("poll_interval = %v", cfg.API.PollInterval)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("retry attempts = %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 30*time.Second {
		t.Errorf("retry backoff = %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.TransportBackoff != 250*time.Millisecond {
		t.Errorf("transport backoff = %v", cfg.Retry.TransportBackoff)
	}
	// Defaults survive for keys the file does not set.
	if cfg.Retry.TransportRetries != 10 {
		t.Errorf("transport retries = %d, want default 10", cfg.Retry.TransportRetries)
	}
	if cfg.Archive.Bucket != "s3://era5-archive" || cfg.Archive.Prefix != "raw" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
}

func TestSkipExistingAbsentKeepsDefault(t *testing.T) {
	yamlContent := `
years: ["2020"]
variables: [2m_temperature]
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if !cfg.SkipExisting {
		t.Error("absent skip_existing must keep the enabled default")
	}
}

func TestLoadInvalidChunkSize(t *testing.T) {
	yamlContent := `
years: ["2020"]
variables: [2m_temperature]
chunk_size: lots
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Fatal("expected error for unparseable chunk_size")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ERA5DL_YEARS", "2018, 2019")
	t.Setenv("ERA5DL_VARIABLES", "2m_temperature")
	t.Setenv("ERA5DL_OUTPUT_DIR", "/scratch")
	t.Setenv("ERA5DL_WORKERS_PER_KEY", "4")
	t.Setenv("ERA5DL_SKIP_EXISTING", "false")
	t.Setenv("ERA5DL_RETRY_BACKOFF", "90s")
	t.Setenv("ERA5DL_CHUNK_SIZE", "512KB")
	t.Setenv("ERA5DL_ARCHIVE_BUCKET", "gs://mirror")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if len(cfg.Years) != 2 || cfg.Years[1] != "2019" {
		t.Errorf("years = %v", cfg.Years)
	}
	if cfg.OutputDir != "/scratch" {
		t.Errorf("output_dir = %s", cfg.OutputDir)
	}
	if cfg.WorkersPerKey != 4 {
		t.Errorf("workers_per_key = %d", cfg.WorkersPerKey)
	}
	if cfg.SkipExisting {
		t.Error("expected skip_existing false")
	}
	if cfg.Retry.Backoff != 90*time.Second {
		t.Errorf("retry backoff = %v", cfg.Retry.Backoff)
	}
	if cfg.ChunkSize != 512*1024 {
		t.Errorf("chunk size = %d, want 512KB", cfg.ChunkSize)
	}
	if cfg.Archive.Bucket != "gs://mirror" {
		t.Errorf("archive bucket = %s", cfg.Archive.Bucket)
	}
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("ERA5DL_WORKERS_PER_KEY", "many")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric ERA5DL_WORKERS_PER_KEY")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no years", func(c *Config) { c.Years = nil }, true},
		{"no variables", func(c *Config) { c.Variables = nil }, true},
		{"no dataset", func(c *Config) { c.Dataset = "" }, true},
		{"pressure dataset without levels", func(c *Config) {
			c.Dataset = "reanalysis-era5-pressure-levels"
			c.Levels = nil
		}, true},
		{"pressure dataset with levels", func(c *Config) {
			c.Dataset = "reanalysis-era5-pressure-levels"
			c.Levels = []string{"500"}
		}, false},
		{"zero workers", func(c *Config) { c.WorkersPerKey = 0 }, true},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, true},
		{"zero retry attempts", func(c *Config) { c.Retry.Attempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Years = []string{"2020"}
			cfg.Variables = []string{"2m_temperature"}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.Years = []string{"2020"}
	base.Variables = []string{"2m_temperature"}

	merged := base.Merge(Config{
		Years:         []string{"2021"},
		OutputDir:     "/data",
		WorkersPerKey: 5,
		Retry:         RetryConfig{Attempts: 7},
	})

	if merged.Years[0] != "2021" {
		t.Errorf("years = %v", merged.Years)
	}
	if merged.Variables[0] != "2m_temperature" {
		t.Error("unset override must not clear variables")
	}
	if merged.OutputDir != "/data" {
		t.Errorf("output_dir = %s", merged.OutputDir)
	}
	if merged.WorkersPerKey != 5 {
		t.Errorf("workers_per_key = %d", merged.WorkersPerKey)
	}
	if merged.Retry.Attempts != 7 {
		t.Errorf("retry attempts = %d", merged.Retry.Attempts)
	}
	if merged.Retry.Backoff != 60*time.Second {
		t.Errorf("retry backoff = %v, want default preserved", merged.Retry.Backoff)
	}
}

func TestLoadCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "credentials.yaml")
	content := `
keys:
  - "abcd1234-key-one"
  - "  "
  - "efgh5678-key-two"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if len(creds.Keys) != 2 {
		t.Fatalf("keys = %v, want blank entries dropped", creds.Keys)
	}
	if creds.Keys[1] != "efgh5678-key-two" {
		t.Errorf("keys = %v", creds.Keys)
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}

func TestLoadCredentialsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	if err := os.WriteFile(path, []byte("keys: []\n"), 0600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	if _, err := LoadCredentials(path); err == nil {
		t.Fatal("expected error for empty key list")
	}
}
