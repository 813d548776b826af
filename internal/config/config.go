package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/telemetry"
	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

const (
	// BackendMemory keeps published gauges in process memory.
	BackendMemory = "memory"
	// BackendRedis publishes gauges to Redis.
	BackendRedis = "redis"

	// RedisModeStandalone connects to a single Redis address.
	RedisModeStandalone = "standalone"
	// RedisModeSentinel connects through Redis Sentinel.
	RedisModeSentinel = "sentinel"
)

// Config is the root application configuration.
type Config struct {
	Log       LogConfig
	GitHub    GitHubConfig
	Retry     RetryConfig
	Crawl     CrawlConfig
	Output    OutputConfig
	Store     StoreConfig
	Server    ServerConfig
	Telemetry TelemetryConfig
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	GraphQLURL     string
	APIBaseURL     string
	TokenEnv       string
	RequestTimeout time.Duration
	Preflight      bool
}

// RetryConfig configures the GraphQL retry budget.
type RetryConfig struct {
	MaxAttempts            int
	TransientBackoff       time.Duration
	RateLimitBackoff       time.Duration
	RateLimitRepeatBackoff time.Duration
}

// CrawlConfig configures which repositories the given-activity pass scans.
type CrawlConfig struct {
	TopRepoLimit int `yaml:"top_repo_limit"`
}

// OutputConfig configures report outputs.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	TextfilePath string `yaml:"textfile_path"`
}

// StoreConfig configures metric storage.
type StoreConfig struct {
	Backend            string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	Namespace          string
	Retention          time.Duration
	MaxSeriesBudget    int
}

// ServerConfig contains HTTP server settings for serve mode.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from path. An empty path yields the defaults.
func LoadFile(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	cfg, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, "log.level must be one of debug|info|warn|error")
	}

	if strings.TrimSpace(c.GitHub.GraphQLURL) == "" {
		errs = append(errs, "github.graphql_url is required")
	}
	if strings.TrimSpace(c.GitHub.TokenEnv) == "" {
		errs = append(errs, "github.token_env is required")
	}
	if c.GitHub.RequestTimeout < 0 {
		errs = append(errs, "github.request_timeout must be >= 0")
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}
	if c.Retry.TransientBackoff < 0 {
		errs = append(errs, "retry.transient_backoff must be >= 0")
	}
	if c.Retry.RateLimitBackoff < 0 {
		errs = append(errs, "retry.rate_limit_backoff must be >= 0")
	}
	if c.Retry.RateLimitRepeatBackoff < 0 {
		errs = append(errs, "retry.rate_limit_repeat_backoff must be >= 0")
	}

	if c.Crawl.TopRepoLimit <= 0 {
		errs = append(errs, "crawl.top_repo_limit must be > 0")
	}

	if c.Store.Backend != BackendMemory && c.Store.Backend != BackendRedis {
		errs = append(errs, "store.backend must be memory or redis")
	}
	if c.Store.RedisMode != RedisModeStandalone && c.Store.RedisMode != RedisModeSentinel {
		errs = append(errs, "store.redis_mode must be standalone or sentinel")
	}
	if c.Store.Backend == BackendRedis {
		if c.Store.RedisMode == RedisModeStandalone && strings.TrimSpace(c.Store.RedisAddr) == "" {
			errs = append(errs, "store.redis_addr is required when store.backend=redis")
		}
		if c.Store.RedisMode == RedisModeSentinel && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
		if c.Store.RedisMode == RedisModeSentinel && strings.TrimSpace(c.Store.RedisMasterSet) == "" {
			errs = append(errs, "store.redis_master_set is required when store.redis_mode=sentinel")
		}
	}
	if c.Store.Retention < 0 {
		errs = append(errs, "store.retention must be >= 0")
	}
	if c.Store.MaxSeriesBudget < 0 {
		errs = append(errs, "store.max_series_budget must be >= 0")
	}

	if !telemetry.ValidTraceMode(c.Telemetry.OTELTraceMode) {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.GitHub.GraphQLURL == "" {
		cfg.GitHub.GraphQLURL = "https://api.github.com/graphql"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com/"
	}
	if cfg.GitHub.TokenEnv == "" {
		cfg.GitHub.TokenEnv = "GH_TOKEN"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.TransientBackoff == 0 {
		cfg.Retry.TransientBackoff = 5 * time.Second
	}
	if cfg.Retry.RateLimitBackoff == 0 {
		cfg.Retry.RateLimitBackoff = 60 * time.Second
	}
	if cfg.Retry.RateLimitRepeatBackoff == 0 {
		cfg.Retry.RateLimitRepeatBackoff = 120 * time.Second
	}
	if cfg.Crawl.TopRepoLimit == 0 {
		cfg.Crawl.TopRepoLimit = 30
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = RedisModeStandalone
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "github-activity-report"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "off"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Log       LogConfig    `yaml:"log"`
	GitHub    rawGitHub    `yaml:"github"`
	Retry     rawRetry     `yaml:"retry"`
	Crawl     CrawlConfig  `yaml:"crawl"`
	Output    OutputConfig `yaml:"output"`
	Store     rawStore     `yaml:"store"`
	Server    ServerConfig `yaml:"server"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	GraphQLURL     string   `yaml:"graphql_url"`
	APIBaseURL     string   `yaml:"api_base_url"`
	TokenEnv       string   `yaml:"token_env"`
	RequestTimeout duration `yaml:"request_timeout"`
	Preflight      bool     `yaml:"preflight"`
}

type rawRetry struct {
	MaxAttempts            int      `yaml:"max_attempts"`
	TransientBackoff       duration `yaml:"transient_backoff"`
	RateLimitBackoff       duration `yaml:"rate_limit_backoff"`
	RateLimitRepeatBackoff duration `yaml:"rate_limit_repeat_backoff"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	Namespace          string   `yaml:"namespace"`
	Retention          duration `yaml:"retention"`
	MaxSeriesBudget    int      `yaml:"max_series_budget"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Log: r.Log,
		GitHub: GitHubConfig{
			GraphQLURL:     r.GitHub.GraphQLURL,
			APIBaseURL:     r.GitHub.APIBaseURL,
			TokenEnv:       r.GitHub.TokenEnv,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			Preflight:      r.GitHub.Preflight,
		},
		Retry: RetryConfig{
			MaxAttempts:            r.Retry.MaxAttempts,
			TransientBackoff:       r.Retry.TransientBackoff.Duration,
			RateLimitBackoff:       r.Retry.RateLimitBackoff.Duration,
			RateLimitRepeatBackoff: r.Retry.RateLimitRepeatBackoff.Duration,
		},
		Crawl:  r.Crawl,
		Output: r.Output,
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
			Namespace:          r.Store.Namespace,
			Retention:          r.Store.Retention.Duration,
			MaxSeriesBudget:    r.Store.MaxSeriesBudget,
		},
		Server: r.Server,
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
