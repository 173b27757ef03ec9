package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_PORT", "TIMEZONE", "LIVE_POLL_INTERVAL", "LOG_LEVEL", "CORS_ORIGINS", "LEDGER_BACKEND", "WORKER_METRICS_PORT", "ADMIN_INVITE_CODE"} {
		t.Setenv(k, "")
	}
	cfg := fromEnv()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 5*time.Second, cfg.LivePollInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "postgres", cfg.LedgerBackend)
	assert.Equal(t, "9091", cfg.WorkerMetricsPort)
	assert.Empty(t, cfg.AdminInviteCode)
	assert.False(t, cfg.IsProduction())
}

func TestOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TIMEZONE", "Asia/Kolkata")
	t.Setenv("LIVE_POLL_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("WORKER_METRICS_PORT", "9200")
	t.Setenv("FACULTY_ACTIVATION_CODE", "FAC-2024")

	cfg := fromEnv()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
	assert.Equal(t, 2*time.Second, cfg.LivePollInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, "9200", cfg.WorkerMetricsPort)
	assert.Equal(t, "FAC-2024", cfg.FacultyActivationCode)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus")
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg := fromEnv()
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 12*time.Hour, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}
