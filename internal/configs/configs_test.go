package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{
		"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET", "PRESENCE_BACKEND",
		"PRESENCE_WRITE_TIMEOUT", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"DATABASE_URL", "CALL_TIMEOUT", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendMemory, cfg.PresenceBackend)
	assert.Equal(t, 45*time.Second, cfg.CallTimeout)
	assert.Equal(t, 5*time.Second, cfg.PresenceWriteTimeout)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Empty(t, cfg.LogLevel)
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PRESENCE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CALL_TIMEOUT", "0")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, BackendRedis, cfg.PresenceBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Zero(t, cfg.CallTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigPostgresDefaultsDSNInDevelopment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRESENCE_BACKEND", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseDSN, "postgres://")
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"privileged port":         {"PORT": "80"},
		"non numeric port":        {"PORT": "http"},
		"unknown backend":         {"PRESENCE_BACKEND": "etcd"},
		"bad call timeout":        {"CALL_TIMEOUT": "soon"},
		"negative call timeout":   {"CALL_TIMEOUT": "-1s"},
		"zero write timeout":      {"PRESENCE_WRITE_TIMEOUT": "0"},
		"unknown log level":       {"LOG_LEVEL": "verbose"},
		"production no secret":    {"ENVIRONMENT": "production", "PRESENCE_BACKEND": "redis"},
		"production memory":       {"ENVIRONMENT": "production", "JWT_SECRET": "s"},
		"production postgres dsn": {"ENVIRONMENT": "production", "JWT_SECRET": "s", "PRESENCE_BACKEND": "postgres"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
