// Package config provides application configuration loaded from environment
// variables with defaults and validation, plus the static PagerDuty service
// directory loaded from YAML. It centralizes server timeouts, logging,
// database paths, fetch-pipeline tunables, retention, rate limiting, and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// FetchConfig holds the remote-fetch pipeline tunables. The defaults match
// the remote API's documented pagination limits and rate-limit expectations.
type FetchConfig struct {
	BaseURL       string        // PD_BASE_URL
	PageSize      int           // PD_PAGE_SIZE: incidents per listing page
	BatchSize     int           // PD_BATCH_SIZE: incidents enriched per batch
	BatchPause    time.Duration // PD_BATCH_PAUSE: pause between batches
	RetryAttempts int           // PD_RETRY_ATTEMPTS: total attempts per enrichment call
	RetryDelay    time.Duration // PD_RETRY_DELAY: fixed delay between attempts
	ListTimeout   time.Duration // PD_LIST_TIMEOUT: per-request timeout, listing calls
	EnrichTimeout time.Duration // PD_ENRICH_TIMEOUT: per-request timeout, enrichment calls
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// Routing
	APIBasePath string

	// App
	DBPath          string // SQLite path
	PDConfigPath    string // YAML service directory (token + services)
	IncidentURLBase string // optional base URL for incident deep links

	// Day bucketing: fixed, non-DST-adjusted offset in hours (default -7).
	TZOffsetHours int

	// Fetch pipeline
	Fetch FetchConfig

	// Update trigger
	UpdateTimeout time.Duration // bound on a background update run
	UpdateMaxDays int           // cap on caller-requested window

	// Retention
	RetentionDays int    // delete records older than N days (0 disables)
	RetentionCron string // cron spec for the scheduled retention job

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// Location returns the fixed offset used for all day bucketing. It is a
// constant offset (no DST adjustment) named after its hour shift, e.g.
// "UTC-7" for the default configuration.
func (c Config) Location() *time.Location {
	return FixedOffset(c.TZOffsetHours)
}

// FixedOffset builds a fixed, non-DST *time.Location for the given hour
// offset from UTC.
func FixedOffset(hours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", hours), hours*3600)
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / routing
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:          getenv("DB_PATH", "incidents.db"),
		PDConfigPath:    getenv("PD_CONFIG_PATH", "pagerduty.yaml"),
		IncidentURLBase: strings.TrimRight(getenv("PD_INCIDENT_URL_BASE", ""), "/"),
		TZOffsetHours:   getint("TZ_OFFSET_HOURS", -7),

		Fetch: FetchConfig{
			BaseURL:       strings.TrimRight(getenv("PD_BASE_URL", "https://api.pagerduty.com"), "/"),
			PageSize:      getint("PD_PAGE_SIZE", 100),
			BatchSize:     getint("PD_BATCH_SIZE", 20),
			BatchPause:    getdur("PD_BATCH_PAUSE", time.Second),
			RetryAttempts: getint("PD_RETRY_ATTEMPTS", 3),
			RetryDelay:    getdur("PD_RETRY_DELAY", time.Second),
			ListTimeout:   getdur("PD_LIST_TIMEOUT", 30*time.Minute),
			EnrichTimeout: getdur("PD_ENRICH_TIMEOUT", 30*time.Second),
		},

		UpdateTimeout: getdur("UPDATE_TIMEOUT", 30*time.Minute),
		UpdateMaxDays: getint("UPDATE_MAX_DAYS", 7),

		RetentionDays: getint("RETENTION_DAYS", 0),
		RetentionCron: getenv("RETENTION_CRON", "0 4 * * *"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "incident-insights"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.PDConfigPath) == "" {
		return cfg, errors.New("PD_CONFIG_PATH must not be empty")
	}
	if cfg.TZOffsetHours < -12 || cfg.TZOffsetHours > 14 {
		return cfg, errors.New("TZ_OFFSET_HOURS must be between -12 and 14")
	}
	if cfg.Fetch.PageSize < 1 {
		return cfg, errors.New("PD_PAGE_SIZE must be >= 1")
	}
	if cfg.Fetch.BatchSize < 1 {
		return cfg, errors.New("PD_BATCH_SIZE must be >= 1")
	}
	if cfg.Fetch.RetryAttempts < 1 {
		return cfg, errors.New("PD_RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.Fetch.RetryDelay < 0 || cfg.Fetch.BatchPause < 0 {
		return cfg, errors.New("PD_RETRY_DELAY and PD_BATCH_PAUSE must be >= 0")
	}
	if cfg.Fetch.ListTimeout <= 0 || cfg.Fetch.EnrichTimeout <= 0 {
		return cfg, errors.New("PD_LIST_TIMEOUT and PD_ENRICH_TIMEOUT must be > 0")
	}
	if cfg.UpdateTimeout <= 0 {
		return cfg, errors.New("UPDATE_TIMEOUT must be > 0")
	}
	if cfg.UpdateMaxDays < 1 {
		return cfg, errors.New("UPDATE_MAX_DAYS must be >= 1")
	}
	if cfg.RetentionDays < 0 {
		return cfg, errors.New("RETENTION_DAYS must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
