// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/filter"
)

// Config holds all logprune configuration.
type Config struct {
	Version int `yaml:"version"`

	Search    SearchConfig    `yaml:"search"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watch     WatchConfig     `yaml:"watch"`
	Log       LogConfig       `yaml:"log"`
}

// SearchConfig controls the elimination search.
type SearchConfig struct {
	Workers int `yaml:"workers"` // 0 = one per CPU
	MinSize int `yaml:"min_size"`
}

// InputConfig controls how event logs are read.
type InputConfig struct {
	Format          string `yaml:"format"` // empty = detect from extension
	Engine          string `yaml:"engine"` // stream | duckdb
	CaseID          string `yaml:"case_id"`
	Activity        string `yaml:"activity"`
	Timestamp       string `yaml:"timestamp"`
	Resource        string `yaml:"resource"`
	TimestampFormat string `yaml:"timestamp_format"`
	Delimiter       string `yaml:"delimiter"`
	Lifecycle       string `yaml:"lifecycle"`
	Sheet           string `yaml:"sheet"`
	Sort            bool   `yaml:"sort"`
}

// OutputConfig controls where projected logs go.
type OutputConfig struct {
	Dir         string `yaml:"dir"`    // local path or s3://bucket/prefix
	Format      string `yaml:"format"` // xes | parquet
	Compression string `yaml:"compression"`
	Report      string `yaml:"report"` // file name inside Dir; empty disables
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // none | memory | redis
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig for the redis cache backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	Prefix   string `yaml:"prefix"`
}

// StorageConfig for remote inputs and outputs.
type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config for s3:// locations.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// TelemetryConfig for OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	Endpoint      string            `yaml:"endpoint"`
	Insecure      bool              `yaml:"insecure"`
	Environment   string            `yaml:"environment"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// WatchConfig for the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig for host-side logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Workers: 0,
			MinSize: filter.DefaultMinSize,
		},
		Input: InputConfig{
			Engine:    "stream",
			CaseID:    "case:concept:name",
			Activity:  "concept:name",
			Timestamp: "time:timestamp",
			Resource:  "org:resource",
			Delimiter: ",",
			Sort:      true,
		},
		Output: OutputConfig{
			Dir:         "logprune-out",
			Format:      "xes",
			Compression: "snappy",
			Report:      "report.yaml",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     7 * 24 * time.Hour,
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "logprune:results:",
			},
		},
		Storage: StorageConfig{
			S3: S3Config{Region: "us-east-1"},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			Insecure:      true,
			Environment:   "development",
			SamplingRatio: 1.0,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	var errs lperrors.MultiError
	invalid := func(field string, value interface{}) {
		errs.Add(lperrors.New(lperrors.CodeInvalidConfig, "invalid value for "+field).
			WithContext("value", value))
	}

	if c.Search.Workers < 0 {
		invalid("search.workers", c.Search.Workers)
	}
	if c.Search.MinSize < 0 {
		invalid("search.min_size", c.Search.MinSize)
	}
	switch c.Input.Engine {
	case "stream", "duckdb":
	default:
		invalid("input.engine", c.Input.Engine)
	}
	if len(c.Input.Delimiter) != 1 {
		invalid("input.delimiter", c.Input.Delimiter)
	}
	switch strings.ToLower(c.Output.Format) {
	case "xes", "parquet":
	default:
		invalid("output.format", c.Output.Format)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		invalid("cache.backend", c.Cache.Backend)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		invalid("telemetry.sampling_ratio", c.Telemetry.SamplingRatio)
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		invalid("log.level", c.Log.Level)
	}
	return errs.Combined()
}

// SlogLevel returns the configured log level, info when unrecognised.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // candidate files, lowest priority first
	paths  []string // files that were loaded
	getenv func(string) string
}

// NewManager creates a manager reading the given files in order. Without
// arguments the system, user and project files are used.
func NewManager(files ...string) *Manager {
	if len(files) == 0 {
		files = defaultPaths()
	}
	return &Manager{
		config: Default(),
		search: files,
		getenv: os.Getenv,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()
	return m.config.Validate()
}

// LoadFile merges one more file on top of what is loaded, for --config.
func (m *Manager) LoadFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadFile(path); err != nil {
		if os.IsNotExist(err) {
			return lperrors.FileNotFound(path)
		}
		return err
	}
	m.paths = append(m.paths, path)
	return m.config.Validate()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/logprune/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".logprune", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".logprune.yaml"))
	}
	return paths
}

// loadFile decodes a file over the current configuration, so keys absent
// from the file keep their value and explicit zero values (false, 0) apply.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	next := *m.config
	if err := yaml.Unmarshal(data, &next); err != nil {
		return lperrors.Wrap(err, lperrors.CodeInvalidConfig, "parse config file").
			WithContext("path", path)
	}
	m.config = &next
	return nil
}

// loadEnv applies LOGPRUNE_* environment variables.
func (m *Manager) loadEnv() {
	str := func(key string, dst *string) {
		if v := m.getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := m.getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	num("LOGPRUNE_WORKERS", &m.config.Search.Workers)
	num("LOGPRUNE_MIN_SIZE", &m.config.Search.MinSize)
	str("LOGPRUNE_ENGINE", &m.config.Input.Engine)
	str("LOGPRUNE_OUTPUT_DIR", &m.config.Output.Dir)
	str("LOGPRUNE_OUTPUT_FORMAT", &m.config.Output.Format)
	str("LOGPRUNE_COMPRESSION", &m.config.Output.Compression)
	str("LOGPRUNE_CACHE", &m.config.Cache.Backend)
	str("LOGPRUNE_REDIS_ADDR", &m.config.Cache.Redis.Address)
	str("LOGPRUNE_REDIS_PASSWORD", &m.config.Cache.Redis.Password)
	str("LOGPRUNE_S3_REGION", &m.config.Storage.S3.Region)
	str("LOGPRUNE_S3_ENDPOINT", &m.config.Storage.S3.Endpoint)
	str("LOGPRUNE_LOG_LEVEL", &m.config.Log.Level)

	// An explicit collector endpoint turns export on.
	if v := m.getenv("LOGPRUNE_OTEL_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return m.SaveTo(filepath.Join(home, ".logprune", "config.yaml"))
}

// SaveTo writes the current config to path.
func (m *Manager) SaveTo(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
