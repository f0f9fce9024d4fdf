package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-32-characters-long")
	t.Setenv("OTP_SALT", "test-otp-salt")
	t.Setenv("DATABASE_URL", "postgres://localhost/kidlearn_test?sslmode=disable")
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 7*24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.OTPPurgeInterval)
	assert.Equal(t, cfg.JWTSecret, cfg.JWTRefreshSecret)
	assert.Equal(t, "vi", cfg.DefaultLanguage)
	assert.False(t, cfg.AllowAdminSignup)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_EXPIRES_IN", "2h")
	t.Setenv("REFRESH_TOKEN_EXPIRES_IN", "14d")
	t.Setenv("JWT_REFRESH_SECRET", "separate-refresh-secret")
	t.Setenv("ALLOW_ADMIN_SIGNUP", "yes")
	t.Setenv("DEFAULT_LANGUAGE", "EN")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "separate-refresh-secret", cfg.JWTRefreshSecret)
	assert.True(t, cfg.AllowAdminSignup)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"JWT_SECRET", "OTP_SALT", "DATABASE_URL"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoad_MemoryStoreNeedsNoDatabase(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE", "mongo")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AdminBootstrap(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	_, err := Load()
	assert.ErrorContains(t, err, "ADMIN_PASSWORD")

	t.Setenv("ADMIN_PASSWORD", "secret1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", cfg.AdminEmail)
	assert.Equal(t, "Administrator", cfg.AdminName)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_EXPIRES_IN", "forever")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_EXPIRES_IN")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{" 30s ", 30 * time.Second, false},
		{"0d", 0, true},
		{"-5m", 0, true},
		{"xd", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
