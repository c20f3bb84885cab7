// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, scheduling parameters (slot grid, hold TTL, buffers),
// payment/notification integrations, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // NOTIFY_TIME_ZONE is validated against the embedded zone database
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-coaching-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the storage driver. SQLite is the default; Postgres is
// used in production deployments behind DATABASE_URL.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// SchedulingConfig holds the slot engine parameters.
type SchedulingConfig struct {
	SlotStep          time.Duration // grid size of one slot
	HoldTTL           time.Duration // lifetime of a checkout hold
	HorizonDays       int           // rolling generation window
	BufferBefore      time.Duration // breathing room before a session in public listings
	BufferAfter       time.Duration // breathing room after a session in public listings
	MaxSessionMinutes int           // upper bound on a requested session
	RecomputeInterval time.Duration // 0 disables the in-process maintenance ticker
	NotifyTimeZone    string        // IANA zone used in confirmation notices
}

// StripeConfig configures webhook signature verification.
type StripeConfig struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
}

// KafkaConfig configures the booking event publisher. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SMTPConfig configures confirmation emails. Empty Host disables email.
type SMTPConfig struct {
	Host string
	Port string
	From string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	RequestTimeout    time.Duration // per-request context deadline
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Admin/internal routes are disabled while AdminToken is empty.
	AdminToken string

	DB         DBConfig
	Scheduling SchedulingConfig
	Stripe     StripeConfig
	Kafka      KafkaConfig
	SMTP       SMTPConfig

	// Rate limiting
	RateRPS         float64       // tokens per second (>= 0)
	RateBurst       int           // bucket size (>= 1)
	RedisURL        string        // when set, limits are enforced in Redis across instances
	RateLimitWindow time.Duration // fixed window used by the Redis limiter

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout:    getdur("REQUEST_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		AdminToken: strings.TrimSpace(getenv("ADMIN_TOKEN", "")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Scheduling: SchedulingConfig{
			SlotStep:          time.Duration(getint("SLOT_STEP_MINUTES", 15)) * time.Minute,
			HoldTTL:           getdur("HOLD_TTL", 10*time.Minute),
			HorizonDays:       getint("SLOT_HORIZON_DAYS", 15),
			BufferBefore:      time.Duration(getint("BUFFER_BEFORE_MINUTES", 15)) * time.Minute,
			BufferAfter:       time.Duration(getint("BUFFER_AFTER_MINUTES", 15)) * time.Minute,
			MaxSessionMinutes: getint("MAX_SESSION_MINUTES", 240),
			RecomputeInterval: getdur("RECOMPUTE_INTERVAL", 0),
			NotifyTimeZone:    getenv("NOTIFY_TIME_ZONE", "UTC"),
		},
		Stripe: StripeConfig{
			WebhookSecret:    getenv("STRIPE_WEBHOOK_SECRET", ""),
			WebhookTolerance: getdur("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "booking.finalized"),
		},
		SMTP: SMTPConfig{
			Host: getenv("SMTP_HOST", ""),
			Port: getenv("SMTP_PORT", "1025"),
			From: getenv("SMTP_FROM", "bookings@coaching.local"),
		},

		// Rate limiting
		RateRPS:         getfloat("RATE_RPS", 5.0),
		RateBurst:       getint("RATE_BURST", 10),
		RedisURL:        getenv("REDIS_URL", ""),
		RateLimitWindow: getdur("RATE_LIMIT_WINDOW", time.Minute),

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-coaching-backend"),
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.RequestTimeout <= 0 {
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
		return cfg, errors.New("DB_DRIVER must be sqlite or postgres")
	}

	s := cfg.Scheduling
	if s.SlotStep <= 0 || (24*time.Hour)%s.SlotStep != 0 {
		return cfg, errors.New("SLOT_STEP_MINUTES must be > 0 and divide a day evenly")
	}
	if s.HoldTTL <= 0 {
		return cfg, errors.New("HOLD_TTL must be > 0")
	}
	if s.HorizonDays < 1 || s.HorizonDays > 366 {
		return cfg, errors.New("SLOT_HORIZON_DAYS must be in [1,366]")
	}
	if s.BufferBefore < 0 || s.BufferAfter < 0 {
		return cfg, errors.New("buffers must be >= 0")
	}
	if s.MaxSessionMinutes < int(s.SlotStep/time.Minute) {
		return cfg, errors.New("MAX_SESSION_MINUTES must be at least one slot")
	}
	if s.RecomputeInterval < 0 {
		return cfg, errors.New("RECOMPUTE_INTERVAL must be >= 0")
	}
	if _, err := time.LoadLocation(s.NotifyTimeZone); err != nil {
		return cfg, errors.New("NOTIFY_TIME_ZONE must be a valid IANA zone")
	}

	if cfg.Stripe.WebhookTolerance <= 0 {
		return cfg, errors.New("STRIPE_WEBHOOK_TOLERANCE must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RateLimitWindow <= 0 {
		return cfg, errors.New("RATE_LIMIT_WINDOW must be > 0")
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
