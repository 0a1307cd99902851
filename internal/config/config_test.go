package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so tests observe defaults
// regardless of the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "API_BASE_PATH",
		"DB_PATH", "PD_CONFIG_PATH", "PD_INCIDENT_URL_BASE", "TZ_OFFSET_HOURS",
		"PD_BASE_URL", "PD_PAGE_SIZE", "PD_BATCH_SIZE", "PD_BATCH_PAUSE",
		"PD_RETRY_ATTEMPTS", "PD_RETRY_DELAY", "PD_LIST_TIMEOUT", "PD_ENRICH_TIMEOUT",
		"UPDATE_TIMEOUT", "UPDATE_MAX_DAYS", "RETENTION_DAYS", "RETENTION_CRON",
		"RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.TZOffsetHours != -7 {
		t.Errorf("TZOffsetHours = %d", cfg.TZOffsetHours)
	}
	if cfg.Fetch.PageSize != 100 || cfg.Fetch.BatchSize != 20 {
		t.Errorf("fetch sizing: page=%d batch=%d", cfg.Fetch.PageSize, cfg.Fetch.BatchSize)
	}
	if cfg.Fetch.RetryAttempts != 3 || cfg.Fetch.RetryDelay != time.Second {
		t.Errorf("retry: attempts=%d delay=%v", cfg.Fetch.RetryAttempts, cfg.Fetch.RetryDelay)
	}
	if cfg.Fetch.ListTimeout != 30*time.Minute || cfg.Fetch.EnrichTimeout != 30*time.Second {
		t.Errorf("fetch timeouts: list=%v enrich=%v", cfg.Fetch.ListTimeout, cfg.Fetch.EnrichTimeout)
	}
	if cfg.UpdateTimeout != 30*time.Minute || cfg.UpdateMaxDays != 7 {
		t.Errorf("update: timeout=%v maxdays=%d", cfg.UpdateTimeout, cfg.UpdateMaxDays)
	}
	if cfg.RetentionDays != 0 {
		t.Errorf("RetentionDays = %d, want 0 (disabled)", cfg.RetentionDays)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "WARNING") // alias, case-insensitive
	t.Setenv("GIN_MODE", "bogus")    // falls back to release
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("TZ_OFFSET_HOURS", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want release", cfg.GinMode)
	}
	if !strings.HasPrefix(cfg.APIBasePath, "/") || strings.HasSuffix(cfg.APIBasePath, "/") {
		t.Errorf("APIBasePath not normalized: %q", cfg.APIBasePath)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"LOG_LEVEL":         "verbose",
		"TZ_OFFSET_HOURS":   "-20",
		"PD_PAGE_SIZE":      "0",
		"PD_BATCH_SIZE":     "0",
		"PD_RETRY_ATTEMPTS": "0",
		"UPDATE_MAX_DAYS":   "0",
		"RATE_BURST":        "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load with %s=%s should fail", key, val)
			}
		})
	}
}

func TestFixedOffset(t *testing.T) {
	loc := FixedOffset(-7)
	if loc.String() != "UTC-7" {
		t.Errorf("zone name = %q", loc.String())
	}
	utc := time.Date(2026, 8, 15, 0, 30, 0, 0, time.UTC)
	if got := utc.In(loc).Format("2006-01-02 15:04"); got != "2026-08-14 17:30" {
		t.Errorf("conversion = %q", got)
	}
}
