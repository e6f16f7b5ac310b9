package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "identity-service", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.PasswordResetTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccountRecoveryTTL)
	assert.Equal(t, 8, cfg.Auth.BackupCodeCount)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 5, cfg.RateLimit.AuthMax)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "2h")
	t.Setenv("STORE_TIMEOUT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 2*time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.Timeout)
}

func TestLoadRejectsTokenLifetimeOverOneDay(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "48h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_ACCESS_TOKEN_TTL")
}

func TestLoadRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")

	t.Setenv("AUTH_JWT_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.App.IsProduction())
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}
