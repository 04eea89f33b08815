package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/paths"
	"github.com/nishad/srafetch/internal/retry"
)

// Config represents the srafetch configuration
type Config struct {
	Entrez    EntrezConfig    `yaml:"entrez"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Sequences SequencesConfig `yaml:"sequences"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
}

// EntrezConfig contains NCBI E-utilities settings
type EntrezConfig struct {
	Email     string        `yaml:"email"`      // required by NCBI usage policy
	APIKey    string        `yaml:"api_key"`    // raises the rate limit to 10/s
	BaseURL   string        `yaml:"base_url"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second; 0 = NCBI default
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"` // runs per efetch call
	PageSize  int           `yaml:"page_size"`  // hits per esearch page
}

// JobsConfig bounds concurrency and retries for every stage
type JobsConfig struct {
	NJobs      int           `yaml:"n_jobs"`
	Retries    int           `yaml:"retries"` // attempts after the first
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// SequencesConfig contains SRA Toolkit and scratch space settings
type SequencesConfig struct {
	TempDir          string  `yaml:"temp_dir"`
	Threads          int     `yaml:"threads"`
	RestrictedAccess bool    `yaml:"restricted_access"`
	KeyFile          string  `yaml:"key_file"`
	MinFreeSpace     string  `yaml:"min_free_space"` // e.g. "10GB"
	ExpansionFactor  float64 `yaml:"expansion_factor"`
	PrefetchPath     string  `yaml:"prefetch_path"`
	FasterqDumpPath  string  `yaml:"fasterq_dump_path"`
	SkipPrefetch     bool    `yaml:"skip_prefetch"`
	MaxSize          string  `yaml:"max_size"`
}

// LogConfig selects the log level and handler format
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StoreConfig contains local SQLite store settings
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SearchConfig contains full-text index settings
type SearchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IndexPath    string `yaml:"index_path"`
	DefaultLimit int    `yaml:"default_limit"`
}

// ServerConfig contains API server settings
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Metrics      bool          `yaml:"metrics"`       // expose /metrics
	SyncInterval time.Duration `yaml:"sync_interval"` // search reindex period; 0 = once at start
}

// UploadConfig points at an S3-compatible bucket that receives the sequence
// bundles after a fetch
type UploadConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"` // e.g. https://s3.amazonaws.com or http://localhost:9000
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Entrez: EntrezConfig{
			Timeout:   60 * time.Second,
			BatchSize: 150,
			PageSize:  500,
		},
		Jobs: JobsConfig{
			NJobs:      1,
			Retries:    2,
			Backoff:    2 * time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Sequences: SequencesConfig{
			TempDir:         paths.GetTempPath(),
			Threads:         6,
			MinFreeSpace:    "1GB",
			ExpansionFactor: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    paths.GetStorePath(),
		},
		Search: SearchConfig{
			Enabled:      true,
			IndexPath:    paths.GetIndexPath(),
			DefaultLimit: 20,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			Metrics:      true,
			SyncInterval: 5 * time.Minute,
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	const op errors.Op = "config.Load"

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.E(op, errors.KindConfig, err, "failed to read config file")
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.E(op, errors.KindConfig, err, "failed to parse config file")
		}
	}

	config.applyEnv()
	config.Sequences.TempDir = expandPath(config.Sequences.TempDir)
	config.Sequences.KeyFile = expandPath(config.Sequences.KeyFile)
	config.Store.Path = expandPath(config.Store.Path)
	config.Search.IndexPath = expandPath(config.Search.IndexPath)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides credentials from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("SRAFETCH_EMAIL"); v != "" {
		c.Entrez.Email = v
	}
	if v := os.Getenv("NCBI_API_KEY"); v != "" {
		c.Entrez.APIKey = v
	}
	if v := os.Getenv("SRAFETCH_KEY_FILE"); v != "" {
		c.Sequences.KeyFile = v
	}
	if v := os.Getenv("SRAFETCH_S3_ACCESS_KEY"); v != "" {
		c.Upload.AccessKeyID = v
	}
	if v := os.Getenv("SRAFETCH_S3_SECRET_KEY"); v != "" {
		c.Upload.SecretAccessKey = v
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	const op errors.Op = "config.Validate"

	if c.Jobs.NJobs < 1 {
		return errors.Errorf(op, errors.KindConfig, "jobs.n_jobs must be at least 1, got %d", c.Jobs.NJobs)
	}
	if c.Jobs.Retries < 0 {
		return errors.Errorf(op, errors.KindConfig, "jobs.retries must not be negative, got %d", c.Jobs.Retries)
	}
	if c.Entrez.BatchSize < 1 {
		return errors.Errorf(op, errors.KindConfig, "entrez.batch_size must be at least 1, got %d", c.Entrez.BatchSize)
	}
	if _, err := c.MinFreeSpaceBytes(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf(op, errors.KindConfig, "unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Errorf(op, errors.KindConfig, "unknown log format %q", c.Log.Format)
	}
	if c.Upload.Enabled {
		if c.Upload.Endpoint == "" || c.Upload.Bucket == "" {
			return errors.Errorf(op, errors.KindConfig, "upload.endpoint and upload.bucket are required when upload is enabled")
		}
		if c.Upload.AccessKeyID == "" || c.Upload.SecretAccessKey == "" {
			return errors.Errorf(op, errors.KindConfig, "upload credentials are required when upload is enabled")
		}
	}
	return nil
}

// RequireEmail returns a config error when no contact email is set. Remote
// commands call it before any request is made.
func (c *Config) RequireEmail() error {
	if strings.TrimSpace(c.Entrez.Email) == "" {
		return errors.E(errors.Op("config.RequireEmail"), errors.KindConfig,
			"a contact email is required by NCBI; set entrez.email, SRAFETCH_EMAIL or --email")
	}
	return nil
}

// MinFreeSpaceBytes parses sequences.min_free_space.
func (c *Config) MinFreeSpaceBytes() (uint64, error) {
	if strings.TrimSpace(c.Sequences.MinFreeSpace) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Sequences.MinFreeSpace)
	if err != nil {
		return 0, errors.E(errors.Op("config.MinFreeSpaceBytes"), errors.KindConfig, err,
			"invalid sequences.min_free_space")
	}
	return n, nil
}

// RetryPolicy returns the retry policy shared by every stage.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Retries:    c.Jobs.Retries,
		Backoff:    c.Jobs.Backoff,
		MaxBackoff: c.Jobs.MaxBackoff,
	}
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	const op errors.Op = "config.Save"

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.E(op, errors.KindIO, err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.E(op, errors.KindConfig, err, "failed to marshal config")
	}
	// The file may hold an API key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.E(op, errors.KindIO, err, "failed to write config file")
	}
	return nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	if path := os.Getenv("SRAFETCH_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("srafetch.yaml"); err == nil {
		return "srafetch.yaml"
	}
	return filepath.Join(paths.GetPaths().ConfigDir, "config.yaml")
}

// EnsureDirectories creates necessary directories
func (c *Config) EnsureDirectories() error {
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	dirs := []string{c.Sequences.TempDir}
	if c.Store.Enabled {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Search.Enabled {
		dirs = append(dirs, filepath.Dir(c.Search.IndexPath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.E(errors.Op("config.EnsureDirectories"), errors.KindIO, err, "failed to create directory "+dir)
		}
	}
	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
