package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/expenses")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, ":8080", cfg.HTTPAddress())
		assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
		assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
		assert.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite)
		assert.False(t, cfg.CookieSecure)
		assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
		assert.Equal(t, time.UTC, cfg.Location)
		assert.Equal(t, "none", cfg.OTelExporter)
		assert.InDelta(t, 1.0, cfg.AuthRatePerS, 0.0001)
	})

	t.Run("reads ttl and cookie overrides", func(t *testing.T) {
		setRequired(t)
		t.Setenv("JWT_ACCESS_TTL_MINUTES", "30")
		t.Setenv("JWT_REFRESH_TTL_DAYS", "14")
		t.Setenv("COOKIE_SAME_SITE", "none")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
		assert.Equal(t, 14*24*time.Hour, cfg.RefreshTTL)
		assert.Equal(t, http.SameSiteNoneMode, cfg.CookieSameSite)
		assert.True(t, cfg.CookieSecure, "SameSite=None must force Secure")
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	})

	t.Run("production marks cookies secure", func(t *testing.T) {
		setRequired(t)
		t.Setenv("APP_ENV", "production")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
		assert.True(t, cfg.CookieSecure)
	})

	t.Run("aggregates validation errors", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_ACCESS_SECRET", "")
		t.Setenv("JWT_REFRESH_SECRET", "")
		t.Setenv("COOKIE_SAME_SITE", "sometimes")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL is required")
		assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET is required")
		assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET is required")
		assert.Contains(t, err.Error(), "COOKIE_SAME_SITE")
	})

	t.Run("rejects shared secrets", func(t *testing.T) {
		setRequired(t)
		t.Setenv("JWT_REFRESH_SECRET", "access-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must differ")
	})

	t.Run("rejects unknown timezone and exporter", func(t *testing.T) {
		setRequired(t)
		t.Setenv("APP_TIMEZONE", "Mars/Olympus")
		t.Setenv("OTEL_EXPORTER", "zipkin")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "APP_TIMEZONE")
		assert.Contains(t, err.Error(), "OTEL_EXPORTER")
	})
}
