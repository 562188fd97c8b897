// Package config provides application configuration loaded from environment
// variables (and an optional config file) with defaults and validation. It
// centralizes settings such as server timeouts, logging, the database and
// cache backends, token signing, event fan-out, rate limiting and
// observability.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
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

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN / URL
}

// CacheConfig selects the product cache backend and its TTLs.
type CacheConfig struct {
	Backend   string        // memory|redis|none
	RedisURL  string        // redis://host:6379/0
	ListTTL   time.Duration // product list entries
	DetailTTL time.Duration // product detail entries
}

// AuthConfig configures access-token signing.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

// AMQPConfig configures cross-instance cache invalidation. Empty URL disables it.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DB           DBConfig
	Cache        CacheConfig
	Auth         AuthConfig
	AMQP         AMQPConfig
	MediaBaseURL string // absolute prefix for image paths; empty = derive from request

	// Rate limiting
	RateRPS        float64 // tokens per second for reads (>= 0)
	RateBurst      int     // read bucket size (>= 1)
	RateWriteRPS   float64 // tokens per second for writes (>= 0)
	RateWriteBurst int     // write bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// names one, a config file (any format viper understands). Environment wins
// over the file. Defaults are applied, values normalized, and the result
// validated.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}
	src := source{v}

	cfg := Config{
		// Server
		Port:              src.str("PORT", "8080"),
		ReadTimeout:       src.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: src.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      src.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       src.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    src.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(src.str("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(src.str("LOG_LEVEL", "info")),
		LogPretty:      src.bool("LOG_PRETTY", false),
		SwaggerEnabled: src.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(src.str("API_BASE_PATH", "/api/v1")),

		// App
		DB: DBConfig{
			Driver: strings.ToLower(src.str("DB_DRIVER", "sqlite")),
			Path:   src.str("DB_PATH", "catalog.db"),
			URL:    src.str("DATABASE_URL", ""),
		},
		Cache: CacheConfig{
			Backend:   strings.ToLower(src.str("CACHE_BACKEND", "memory")),
			RedisURL:  src.str("REDIS_URL", "redis://localhost:6379/0"),
			ListTTL:   src.dur("CACHE_LIST_TTL", 13*time.Minute),
			DetailTTL: src.dur("CACHE_DETAIL_TTL", 3*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: src.str("JWT_SECRET", ""),
			TokenTTL:  src.dur("JWT_TTL", 24*time.Hour),
			Issuer:    src.str("JWT_ISSUER", "go-catalog-backend"),
		},
		AMQP: AMQPConfig{
			URL:      src.str("AMQP_URL", ""),
			Exchange: src.str("AMQP_EXCHANGE", "catalog.invalidation"),
		},
		MediaBaseURL: strings.TrimRight(src.str("MEDIA_BASE_URL", ""), "/"),

		// Rate limiting
		RateRPS:        src.float("RATE_RPS", 5.0),
		RateBurst:      src.int("RATE_BURST", 10),
		RateWriteRPS:   src.float("RATE_WRITE_RPS", 1.0),
		RateWriteBurst: src.int("RATE_WRITE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(src.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: src.bool("ENABLE_HSTS", false),
			HSTSMaxAge: src.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: src.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     src.bool("OTEL_ENABLED", false),
			Endpoint:    src.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    src.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: src.str("OTEL_SERVICE_NAME", "go-catalog-backend"),
			SampleRatio: src.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
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
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Cache.Backend {
	case "memory", "none":
	case "redis":
		if strings.TrimSpace(cfg.Cache.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return cfg, errors.New("CACHE_BACKEND must be one of: memory, redis, none")
	}
	if cfg.Cache.ListTTL <= 0 || cfg.Cache.DetailTTL <= 0 {
		return cfg, errors.New("CACHE_LIST_TTL and CACHE_DETAIL_TTL must be > 0")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return cfg, errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.AMQP.URL != "" && strings.TrimSpace(cfg.AMQP.Exchange) == "" {
		return cfg, errors.New("AMQP_EXCHANGE must not be empty when AMQP_URL is set")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RateWriteRPS < 0 {
		return cfg, errors.New("RATE_WRITE_RPS must be >= 0")
	}
	if cfg.RateWriteBurst < 1 {
		return cfg, errors.New("RATE_WRITE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

// source reads raw strings through viper and applies the parse-or-default
// rules: unset, empty and unparsable values all fall back to def.
type source struct{ v *viper.Viper }

func (s source) raw(k string) (string, bool) {
	if !s.v.IsSet(k) {
		return "", false
	}
	val := s.v.GetString(k)
	return val, val != ""
}

func (s source) str(k, def string) string {
	if v, ok := s.raw(k); ok {
		return v
	}
	return def
}

func (s source) float(k string, def float64) float64 {
	if v, ok := s.raw(k); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) int(k string, def int) int {
	if v, ok := s.raw(k); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) bool(k string, def bool) bool {
	if v, ok := s.raw(k); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func (s source) dur(k string, def time.Duration) time.Duration {
	if v, ok := s.raw(k); ok {
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
