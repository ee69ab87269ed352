// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, database path, mailbox (IMAP/SMTP) credentials, Telegram bot
// options, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// MailboxConfig holds the IMAP credentials and connection options for one
// monitored mailbox.
type MailboxConfig struct {
	Enabled  bool   // derived: user and password both set
	User     string // EMAIL_USER
	Password string // EMAIL_PASSWORD
	Host     string // EMAIL_HOST
	Port     int    // EMAIL_PORT
	TLS      bool   // EMAIL_SECURE
	Folder   string // EMAIL_FOLDER (default INBOX)
}

// SMTPConfig holds outbound mail settings. Each field mirrors the mailbox
// settings and can be overridden independently via SMTP_* variables.
type SMTPConfig struct {
	Host     string // SMTP_HOST
	Port     int    // SMTP_PORT
	TLS      bool   // SMTP_SECURE (implicit TLS, e.g. port 465)
	User     string // SMTP_USER
	Password string // SMTP_PASSWORD
	From     string // SMTP_FROM, defaults to SMTP_USER / EMAIL_USER
}

// TelegramConfig holds bot API settings for the webhook dispatcher and the
// outbound notifier.
type TelegramConfig struct {
	BotToken string // TELEGRAM_BOT_TOKEN
	APIBase  string // TELEGRAM_API_BASE (override for tests/proxies)
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines transport-hardening settings for the HTTP layer.
// HSTS must only be enabled when traffic is HTTPS end-to-end.
type SecurityConfig struct {
	EnableHSTS bool          // SECURITY_ENABLE_HSTS
	HSTSMaxAge time.Duration // SECURITY_HSTS_MAX_AGE (default 180 days)
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
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

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath  string // SQLite path
	BaseURL string // NEXT_PUBLIC_BASE_URL (or BASE_URL), used in object-selection links

	// Channels
	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	Telegram TelegramConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Intake dedup
	DedupTTL time.Duration // how long an intake receipt blocks reprocessing

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
	emailUser := getenv("EMAIL_USER", "")
	emailPass := getenv("EMAIL_PASSWORD", "")

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:  getenv("DB_PATH", "app.db"),
		BaseURL: strings.TrimRight(getenv("NEXT_PUBLIC_BASE_URL", getenv("BASE_URL", "http://localhost:3000")), "/"),

		// Channels
		Mailbox: MailboxConfig{
			Enabled:  emailUser != "" && emailPass != "",
			User:     emailUser,
			Password: emailPass,
			Host:     getenv("EMAIL_HOST", "imap.mail.ru"),
			Port:     getint("EMAIL_PORT", 993),
			TLS:      getbool("EMAIL_SECURE", true),
			Folder:   getenv("EMAIL_FOLDER", "INBOX"),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", "smtp.mail.ru"),
			Port:     getint("SMTP_PORT", 465),
			TLS:      getbool("SMTP_SECURE", true),
			User:     getenv("SMTP_USER", emailUser),
			Password: getenv("SMTP_PASSWORD", emailPass),
			From:     getenv("SMTP_FROM", getenv("SMTP_USER", emailUser)),
		},
		Telegram: TelegramConfig{
			BotToken: getenv("TELEGRAM_BOT_TOKEN", ""),
			APIBase:  strings.TrimRight(getenv("TELEGRAM_API_BASE", "https://api.telegram.org"), "/"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("SECURITY_ENABLE_HSTS", false),
			HSTSMaxAge: getdur("SECURITY_HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Intake dedup
		DedupTTL: getdur("DEDUP_TTL", 7*24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-intake-backend"),
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
	if strings.TrimSpace(cfg.Mailbox.Folder) == "" {
		cfg.Mailbox.Folder = "INBOX"
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
	if cfg.Mailbox.Enabled && (cfg.Mailbox.Port <= 0 || cfg.Mailbox.Port > 65535) {
		return cfg, errors.New("EMAIL_PORT must be a valid port number")
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		return cfg, errors.New("SMTP_PORT must be a valid port number")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.DedupTTL <= 0 {
		return cfg, errors.New("DEDUP_TTL must be > 0")
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
