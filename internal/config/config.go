package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Hem-W/ERA5-toolbox/internal/progress"
)

// Config defines configuration for the era5dl CLI.
type Config struct {
	Years         []string          `yaml:"years"`
	Variables     []string          `yaml:"variables"`
	Dataset       string            `yaml:"dataset"`
	Levels        []string          `yaml:"levels"`
	ShortNames    map[string]string `yaml:"short_names"`
	Overrides     map[string]any    `yaml:"request_overrides"`
	OutputDir     string            `yaml:"output_dir"`
	WorkersPerKey int               `yaml:"workers_per_key"`
	SkipExisting  bool              `yaml:"skip_existing"`
	Progress      bool              `yaml:"progress"`
	ChunkSize     int64             `yaml:"chunk_size"`
	API           APIConfig         `yaml:"api"`
	Retry         RetryConfig       `yaml:"retry"`
	Archive       ArchiveConfig     `yaml:"archive"`
}

// APIConfig defines how the retrieval API is reached.
type APIConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RetryConfig defines retry behavior for the fallback transfer. The
// transport settings apply to individual HTTP requests, the outer
// settings to whole download attempts.
type RetryConfig struct {
	Attempts         int           `yaml:"attempts"`
	Backoff          time.Duration `yaml:"backoff"`
	TransportRetries int           `yaml:"transport_retries"`
	TransportBackoff time.Duration `yaml:"transport_backoff"`
}

// ArchiveConfig defines the optional object-storage mirror.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Dataset:       "reanalysis-era5-single-levels",
		OutputDir:     ".",
		WorkersPerKey: 2,
		SkipExisting:  true,
		ChunkSize:     1024 * 1024, // 1MB
		API: APIConfig{
			URL:          "https://cds.climate.copernicus.eu/api",
			PollInterval: 10 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:         3,
			Backoff:          60 * time.Second,
			TransportRetries: 10,
			TransportBackoff: 500 * time.Millisecond,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and
// an optional skip_existing so an absent key keeps the default.
type yamlConfig struct {
	Years         []string          `yaml:"years"`
	Variables     []string          `yaml:"variables"`
	Dataset       string            `yaml:"dataset"`
	Levels        []string          `yaml:"levels"`
	ShortNames    map[string]string `yaml:"short_names"`
	Overrides     map[string]any    `yaml:"request_overrides"`
	OutputDir     string            `yaml:"output_dir"`
	WorkersPerKey int               `yaml:"workers_per_key"`
	SkipExisting  *bool             `yaml:"skip_existing"`
	Progress      bool              `yaml:"progress"`
	ChunkSize     string            `yaml:"chunk_size"`
	API           yamlAPIConfig     `yaml:"api"`
	Retry         yamlRetryConfig   `yaml:"retry"`
	Archive       ArchiveConfig     `yaml:"archive"`
}

type yamlAPIConfig struct {
	URL          string `yaml:"url"`
	PollInterval string `yaml:"poll_interval"`
}

type yamlRetryConfig struct {
	Attempts         int    `yaml:"attempts"`
	Backoff          string `yaml:"backoff"`
	TransportRetries int    `yaml:"transport_retries"`
	TransportBackoff string `yaml:"transport_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if len(yc.Years) > 0 {
		cfg.Years = yc.Years
	}
	if len(yc.Variables) > 0 {
		cfg.Variables = yc.Variables
	}
	if yc.Dataset != "" {
		cfg.Dataset = yc.Dataset
	}
	if len(yc.Levels) > 0 {
		cfg.Levels = yc.Levels
	}
	if len(yc.ShortNames) > 0 {
		cfg.ShortNames = yc.ShortNames
	}
	if len(yc.Overrides) > 0 {
		cfg.Overrides = yc.Overrides
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.WorkersPerKey != 0 {
		cfg.WorkersPerKey = yc.WorkersPerKey
	}
	if yc.SkipExisting != nil {
		cfg.SkipExisting = *yc.SkipExisting
	}
	cfg.Progress = yc.Progress
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.API.URL != "" {
		cfg.API.URL = yc.API.URL
	}
	if yc.API.PollInterval != "" {
		d, err := time.ParseDuration(yc.API.PollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse api.poll_interval: %w", err)
		}
		cfg.API.PollInterval = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.TransportRetries != 0 {
		cfg.Retry.TransportRetries = yc.Retry.TransportRetries
	}
	if yc.Retry.TransportBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.TransportBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.transport_backoff: %w", err)
		}
		cfg.Retry.TransportBackoff = d
	}
	cfg.Archive = yc.Archive

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ERA5DL_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ERA5DL_YEARS"); v != "" {
		c.Years = splitList(v)
	}
	if v := os.Getenv("ERA5DL_VARIABLES"); v != "" {
		c.Variables = splitList(v)
	}
	if v := os.Getenv("ERA5DL_DATASET"); v != "" {
		c.Dataset = v
	}
	if v := os.Getenv("ERA5DL_LEVELS"); v != "" {
		c.Levels = splitList(v)
	}
	if v := os.Getenv("ERA5DL_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("ERA5DL_WORKERS_PER_KEY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ERA5DL_WORKERS_PER_KEY: %w", err)
		}
		c.WorkersPerKey = n
	}
	if v := os.Getenv("ERA5DL_SKIP_EXISTING"); v != "" {
		c.SkipExisting = v == "true" || v == "1"
	}
	if v := os.Getenv("ERA5DL_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("ERA5DL_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse ERA5DL_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("ERA5DL_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("ERA5DL_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ERA5DL_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("ERA5DL_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse ERA5DL_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("ERA5DL_ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("ERA5DL_ARCHIVE_PREFIX"); v != "" {
		c.Archive.Prefix = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Years) == 0 {
		return errors.New("config: years is required")
	}
	if len(c.Variables) == 0 {
		return errors.New("config: variables is required")
	}
	if c.Dataset == "" {
		return errors.New("config: dataset is required")
	}
	if strings.Contains(c.Dataset, "pressure-levels") && len(c.Levels) == 0 {
		return errors.New("config: levels is required for pressure-level datasets")
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if c.WorkersPerKey <= 0 {
		return errors.New("config: workers_per_key must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if len(override.Years) > 0 {
		c.Years = override.Years
	}
	if len(override.Variables) > 0 {
		c.Variables = override.Variables
	}
	if override.Dataset != "" {
		c.Dataset = override.Dataset
	}
	if len(override.Levels) > 0 {
		c.Levels = override.Levels
	}
	if len(override.ShortNames) > 0 {
		c.ShortNames = override.ShortNames
	}
	if len(override.Overrides) > 0 {
		c.Overrides = override.Overrides
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.WorkersPerKey != 0 {
		c.WorkersPerKey = override.WorkersPerKey
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.API.URL != "" {
		c.API.URL = override.API.URL
	}
	if override.API.PollInterval != 0 {
		c.API.PollInterval = override.API.PollInterval
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.TransportRetries != 0 {
		c.Retry.TransportRetries = override.Retry.TransportRetries
	}
	if override.Retry.TransportBackoff != 0 {
		c.Retry.TransportBackoff = override.Retry.TransportBackoff
	}
	if override.Archive.Bucket != "" {
		c.Archive.Bucket = override.Archive.Bucket
	}
	if override.Archive.Prefix != "" {
		c.Archive.Prefix = override.Archive.Prefix
	}
	return c
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
