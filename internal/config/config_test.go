package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "DB_DRIVER", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD",
		"DB_NAME", "DB_PATH", "AUTH_DATABASE_URL", "AUTH_DB_DRIVER", "CLIENT_URL", "JWT_SECRET",
		"SUPABASE_JWT_SECRET", "RELAY_SOURCE", "HTTP_READ_TIMEOUT", "AUDIT_DURABLE", "RATE_LIMIT_BURST",
		"RECONCILE_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := New()

	assert.Equal(t, "development", cfg.App.ENV)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "host=localhost port=5432 user=sweety_user password=sweety dbname=sweety_db sslmode=disable TimeZone=UTC", cfg.DB.DSN)
	assert.Equal(t, "postgres", cfg.AuthDB.Driver)
	assert.Empty(t, cfg.AuthDB.DSN)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, RelaySourceDirect, cfg.Relay.Source)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.True(t, cfg.Audit.Durable)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.ReconcileInterval)
}

func TestNew_DSNPerDriver(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"mysql", "sweety_user:sweety@tcp(localhost:3306)/sweety_db?parseTime=true&charset=utf8mb4&loc=UTC"},
		{"SQLite", "soulmate.db"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DB_DRIVER", tt.driver)
			assert.Equal(t, tt.want, New().DB.DSN)
		})
	}

	t.Run("explicit url wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "postgres://u:p@db/hub")
		t.Setenv("DB_HOST", "ignored")
		assert.Equal(t, "postgres://u:p@db/hub", New().DB.DSN)
	})
}

func TestNew_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_JWT_SECRET", "legacy")
	t.Setenv("RELAY_SOURCE", "LISTEN")
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("AUDIT_DURABLE", "off")

	cfg := New()
	assert.Equal(t, "legacy", cfg.Auth.JWTSecret)
	assert.Equal(t, RelaySourceListen, cfg.Relay.Source)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.False(t, cfg.Audit.Durable)

	t.Setenv("JWT_SECRET", "primary")
	assert.Equal(t, "primary", New().Auth.JWTSecret)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}
