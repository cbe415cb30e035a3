package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	LogHashSalt string
	DatabaseURL string

	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTIssuer        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	CookieSameSite http.SameSite
	CookieSecure   bool
	CORSOrigins    []string
	PublicURL      string
	Location       *time.Location

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	RedisURL      string
	AuthRatePerS  float64
	AuthRateBurst int

	OTelExporter string
	UploadDir    string
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		Port:             fallback(os.Getenv("PORT"), "8080"),
		Env:              strings.ToLower(fallback(os.Getenv("APP_ENV"), "development")),
		LogLevel:         strings.ToLower(fallback(os.Getenv("LOG_LEVEL"), "info")),
		LogFormat:        strings.ToLower(fallback(os.Getenv("LOG_FORMAT"), "console")),
		LogHashSalt:      strings.TrimSpace(os.Getenv("LOG_HASH_SALT")),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTAccessSecret:  strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET")),
		JWTRefreshSecret: strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")),
		JWTIssuer:        fallback(os.Getenv("JWT_ISSUER"), "expense-backend"),
		AccessTTL:        time.Duration(positiveInt(os.Getenv("JWT_ACCESS_TTL_MINUTES"), 15)) * time.Minute,
		RefreshTTL:       time.Duration(positiveInt(os.Getenv("JWT_REFRESH_TTL_DAYS"), 7)) * 24 * time.Hour,
		CORSOrigins:      parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		PublicURL:        strings.TrimRight(fallback(os.Getenv("PUBLIC_URL"), "http://localhost:8080"), "/"),
		SMTPHost:         strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:         positiveInt(os.Getenv("SMTP_PORT"), 2525),
		SMTPUser:         strings.TrimSpace(os.Getenv("SMTP_USER")),
		SMTPPass:         os.Getenv("SMTP_PASS"),
		MailFrom:         fallback(os.Getenv("MAIL_FROM"), "Expense Tracker Team <no-reply@expense.local>"),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		AuthRateBurst:    positiveInt(os.Getenv("AUTH_RATE_BURST"), 5),
		OTelExporter:     strings.ToLower(fallback(os.Getenv("OTEL_EXPORTER"), "none")),
		UploadDir:        fallback(os.Getenv("UPLOAD_DIR"), "./uploads"),
	}

	var errs []string

	cfg.AuthRatePerS = 1
	if raw := strings.TrimSpace(os.Getenv("AUTH_RATE_PER_SEC")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			cfg.AuthRatePerS = v
		} else {
			errs = append(errs, "AUTH_RATE_PER_SEC must be a positive number")
		}
	}

	loc, err := time.LoadLocation(fallback(os.Getenv("APP_TIMEZONE"), "UTC"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("APP_TIMEZONE is invalid: %v", err))
		loc = time.UTC
	}
	cfg.Location = loc

	sameSite, ok := parseSameSite(fallback(os.Getenv("COOKIE_SAME_SITE"), "strict"))
	if !ok {
		errs = append(errs, "COOKIE_SAME_SITE must be one of strict, lax, none")
	}
	cfg.CookieSameSite = sameSite
	cfg.CookieSecure = cfg.IsProduction()
	if raw := strings.TrimSpace(os.Getenv("COOKIE_SECURE")); raw != "" {
		cfg.CookieSecure = raw == "true"
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

func (c Config) validate() []string {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		errs = append(errs, "JWT_ACCESS_SECRET is required")
	}
	if c.JWTRefreshSecret == "" {
		errs = append(errs, "JWT_REFRESH_SECRET is required")
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	switch c.OTelExporter {
	case "none", "stdout", "otlp-http", "otlp-grpc":
	default:
		errs = append(errs, "OTEL_EXPORTER must be one of none, stdout, otlp-http, otlp-grpc")
	}
	return errs
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// IsProduction reports whether error details must be hidden from clients.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func positiveInt(value string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
		return n
	}
	return def
}

func parseSameSite(value string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode, true
	case "lax":
		return http.SameSiteLaxMode, true
	case "none":
		return http.SameSiteNoneMode, true
	}
	return http.SameSiteStrictMode, false
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
