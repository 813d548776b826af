package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		yaml       string
		wantErr    bool
		errSubstrs []string
	}{
		{
			name: "valid_full_configuration",
			yaml: `
log:
  level: "debug"
github:
  graphql_url: "https://ghe.example.com/api/graphql"
  api_base_url: "https://ghe.example.com/api/v3/"
  token_env: "GHE_TOKEN"
  request_timeout: "20s"
  preflight: true
retry:
  max_attempts: 7
  transient_backoff: "2s"
  rate_limit_backoff: "1m"
  rate_limit_repeat_backoff: "3m"
crawl:
  top_repo_limit: 10
output:
  dir: "/tmp/reports"
  textfile_path: "/var/lib/node_exporter/github_activity.prom"
store:
  backend: "redis"
  redis_mode: "sentinel"
  redis_master_set: "mymaster"
  redis_sentinel_addrs: ["sentinel-0:26379", "sentinel-1:26379"]
  redis_password: "secret"
  redis_db: 2
  namespace: "reports"
  retention: "30d"
  max_series_budget: 5000
server:
  listen_addr: ":9090"
telemetry:
  otel_enabled: true
  otel_trace_mode: "sampled"
  otel_trace_sample_ratio: 0.25
`,
		},
		{
			name: "invalid_enumerations",
			yaml: `
log:
  level: "trace"
store:
  backend: "postgres"
  redis_mode: "cluster"
telemetry:
  otel_trace_mode: "verbose"
  otel_trace_sample_ratio: 1.5
`,
			wantErr: true,
			errSubstrs: []string{
				"log.level must be one of debug|info|warn|error",
				"store.backend must be memory or redis",
				"store.redis_mode must be standalone or sentinel",
				"telemetry.otel_trace_mode",
				"telemetry.otel_trace_sample_ratio must be between 0 and 1",
			},
		},
		{
			name: "negative_budgets",
			yaml: `
retry:
  max_attempts: -1
  transient_backoff: "-1s"
crawl:
  top_repo_limit: -5
store:
  max_series_budget: -1
`,
			wantErr: true,
			errSubstrs: []string{
				"retry.max_attempts must be > 0",
				"retry.transient_backoff must be >= 0",
				"crawl.top_repo_limit must be > 0",
				"store.max_series_budget must be >= 0",
			},
		},
		{
			name: "redis_standalone_requires_addr",
			yaml: `
store:
  backend: "redis"
`,
			wantErr:    true,
			errSubstrs: []string{"store.redis_addr is required when store.backend=redis"},
		},
		{
			name: "redis_sentinel_requires_addrs_and_master",
			yaml: `
store:
  backend: "redis"
  redis_mode: "sentinel"
`,
			wantErr: true,
			errSubstrs: []string{
				"store.redis_sentinel_addrs is required when store.redis_mode=sentinel",
				"store.redis_master_set is required when store.redis_mode=sentinel",
			},
		},
		{
			name: "unknown_field_rejected",
			yaml: `
github:
  orgs: ["acme"]
`,
			wantErr:    true,
			errSubstrs: []string{"unmarshal yaml", "orgs"},
		},
		{
			name: "bad_duration_unit",
			yaml: `
retry:
  transient_backoff: "5 fortnights"
`,
			wantErr:    true,
			errSubstrs: []string{"invalid unit"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(strings.NewReader(tc.yaml))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				for _, substr := range tc.errSubstrs {
					if !strings.Contains(err.Error(), substr) {
						t.Fatalf("Load() error = %q, missing %q", err.Error(), substr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if cfg == nil {
				t.Fatalf("Load() returned nil config")
			}
		})
	}
}

func TestLoadAdditionalBehaviors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		reader      io.Reader
		wantErr     bool
		errContains string
		assert      func(t *testing.T, cfg *Config)
	}{
		{
			name:        "nil_reader_returns_error",
			reader:      nil,
			wantErr:     true,
			errContains: "config reader is nil",
		},
		{
			name:        "invalid_yaml_returns_parse_error",
			reader:      strings.NewReader("log: [oops"),
			wantErr:     true,
			errContains: "unmarshal yaml",
		},
		{
			name:   "empty_document_applies_defaults",
			reader: strings.NewReader(""),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				assertDefaults(t, cfg)
			},
		},
		{
			name: "parses_day_and_week_durations",
			reader: strings.NewReader(`
github:
  request_timeout: "1d"
store:
  retention: "2w"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.GitHub.RequestTimeout != 24*time.Hour {
					t.Fatalf("GitHub.RequestTimeout = %s, want %s", cfg.GitHub.RequestTimeout, 24*time.Hour)
				}
				if cfg.Store.Retention != 14*24*time.Hour {
					t.Fatalf("Store.Retention = %s, want %s", cfg.Store.Retention, 14*24*time.Hour)
				}
			},
		},
		{
			name: "explicit_values_survive_defaults",
			reader: strings.NewReader(`
retry:
  max_attempts: 2
  rate_limit_backoff: "90s"
output:
  dir: "out"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Retry.MaxAttempts != 2 {
					t.Fatalf("Retry.MaxAttempts = %d, want 2", cfg.Retry.MaxAttempts)
				}
				if cfg.Retry.RateLimitBackoff != 90*time.Second {
					t.Fatalf("Retry.RateLimitBackoff = %s, want 90s", cfg.Retry.RateLimitBackoff)
				}
				if cfg.Retry.RateLimitRepeatBackoff != 120*time.Second {
					t.Fatalf("Retry.RateLimitRepeatBackoff = %s, want 2m0s", cfg.Retry.RateLimitRepeatBackoff)
				}
				if cfg.Output.Dir != "out" {
					t.Fatalf("Output.Dir = %q, want out", cfg.Output.Dir)
				}
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(tc.reader)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("Load() error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") unexpected error: %v", err)
	}
	assertDefaults(t, cfg)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("crawl:\n  top_repo_limit: 5\n"), 0o600); err != nil {
		t.Fatalf("os.WriteFile() unexpected error: %v", err)
	}
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() unexpected error: %v", err)
	}
	if cfg.Crawl.TopRepoLimit != 5 {
		t.Fatalf("Crawl.TopRepoLimit = %d, want 5", cfg.Crawl.TopRepoLimit)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "open config") {
		t.Fatalf("LoadFile(missing) error = %v, want open config error", err)
	}
}

func TestParseFlexibleDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "30s", want: 30 * time.Second},
		{raw: "1.5d", want: 36 * time.Hour},
		{raw: "1w", want: 7 * 24 * time.Hour},
		{raw: "xd", wantErr: true},
		{raw: "10y", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()

			got, err := parseFlexibleDuration(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseFlexibleDuration(%q) expected error, got nil", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlexibleDuration(%q) unexpected error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("parseFlexibleDuration(%q) = %s, want %s", tc.raw, got, tc.want)
			}
		})
	}
}

func assertDefaults(t *testing.T, cfg *Config) {
	t.Helper()

	if cfg.Log.Level != "info" {
		t.Fatalf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.GitHub.GraphQLURL != "https://api.github.com/graphql" {
		t.Fatalf("GitHub.GraphQLURL = %q, want public endpoint", cfg.GitHub.GraphQLURL)
	}
	if cfg.GitHub.TokenEnv != "GH_TOKEN" {
		t.Fatalf("GitHub.TokenEnv = %q, want GH_TOKEN", cfg.GitHub.TokenEnv)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.TransientBackoff != 5*time.Second {
		t.Fatalf("Retry = %+v, want 5 attempts with 5s transient backoff", cfg.Retry)
	}
	if cfg.Retry.RateLimitBackoff != time.Minute || cfg.Retry.RateLimitRepeatBackoff != 2*time.Minute {
		t.Fatalf("Retry = %+v, want 1m then 2m rate-limit backoff", cfg.Retry)
	}
	if cfg.Crawl.TopRepoLimit != 30 {
		t.Fatalf("Crawl.TopRepoLimit = %d, want 30", cfg.Crawl.TopRepoLimit)
	}
	if cfg.Store.Backend != BackendMemory || cfg.Store.RedisMode != RedisModeStandalone {
		t.Fatalf("Store = %+v, want memory backend in standalone mode", cfg.Store)
	}
	if cfg.Telemetry.OTELTraceMode != "off" {
		t.Fatalf("Telemetry.OTELTraceMode = %q, want off", cfg.Telemetry.OTELTraceMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults unexpected error: %v", err)
	}
}
