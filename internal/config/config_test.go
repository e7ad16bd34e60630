package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SITEAUTH_DATABASE_URL", "postgres://localhost/siteauth")
	t.Setenv("SITEAUTH_ACCESS_SECRET", "access-"+secret)
	t.Setenv("SITEAUTH_REFRESH_SECRET", "refresh-"+secret)
	t.Setenv("SITEAUTH_VERIFY_SECRET", "verify-"+secret)
	t.Setenv("SITEAUTH_RESET_SECRET", "reset-"+secret)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "log", cfg.Mail.Driver)
	assert.False(t, cfg.Production())
	assert.Equal(t, 5, cfg.Lockout.MaxAttempts)
}

func TestDevelopmentAllowsMissingDatabase(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SITEAUTH_DATABASE_URL", "")

	cfg, err := LoadWithEnvFile("", "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadPrecedence(t *testing.T) {
	setRequiredEnv(t)
	path := writeFile(t, "siteauth.yaml", `
http:
  addr: ":9000"
  cors_origins: ["https://app.example.com"]
lockout:
  max_attempts: 3
  duration: 30m
otp:
  ttl: 5m
`)
	envFile := writeFile(t, ".env", "SITEAUTH_HTTP_ADDR=:9100\nSITEAUTH_LOCKOUT_MAX_ATTEMPTS=4\n")
	t.Setenv("SITEAUTH_LOCKOUT_MAX_ATTEMPTS", "6")

	t.Cleanup(func() { os.Unsetenv("SITEAUTH_HTTP_ADDR") })

	cfg, err := LoadWithEnvFile(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTP.Addr, ".env overrides the file")
	assert.Equal(t, 6, cfg.Lockout.MaxAttempts, "process env overrides .env")
	assert.Equal(t, 30*time.Minute, cfg.Lockout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.CORSOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequiredEnv(t)

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("SITEAUTH_LOCKOUT_DURATION", "soon")
		_, err := LoadWithEnvFile("", "")
		assert.Error(t, err)
	})
	t.Run("short secret", func(t *testing.T) {
		t.Setenv("SITEAUTH_RESET_SECRET", "short")
		_, err := LoadWithEnvFile("", "")
		assert.ErrorContains(t, err, "reset token secret")
	})
	t.Run("log mail in production", func(t *testing.T) {
		t.Setenv("SITEAUTH_ENV", "production")
		_, err := LoadWithEnvFile("", "")
		assert.Error(t, err)
	})
	t.Run("production without database", func(t *testing.T) {
		t.Setenv("SITEAUTH_ENV", "production")
		t.Setenv("SITEAUTH_MAIL_DRIVER", "smtp")
		t.Setenv("SITEAUTH_SMTP_HOST", "smtp.example.com")
		t.Setenv("SITEAUTH_DATABASE_URL", "")
		_, err := LoadWithEnvFile("", "")
		assert.ErrorContains(t, err, "database url")
	})
	t.Run("kafka without brokers", func(t *testing.T) {
		t.Setenv("SITEAUTH_AUDIT_SINK", "kafka")
		_, err := LoadWithEnvFile("", "")
		assert.Error(t, err)
	})
	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadWithEnvFile(writeFile(t, "bad.yaml", "http: [unclosed"), "")
		assert.Error(t, err)
	})
}

func TestEngineConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SITEAUTH_ENV", "production")
	t.Setenv("SITEAUTH_MAIL_DRIVER", "smtp")
	t.Setenv("SITEAUTH_SMTP_HOST", "smtp.example.com")
	t.Setenv("SITEAUTH_AUDIT_SINK", "none")

	cfg, err := LoadWithEnvFile("", "")
	require.NoError(t, err)

	engine := cfg.Engine()
	require.NoError(t, engine.Validate())
	assert.True(t, engine.Security.ProductionMode)
	assert.False(t, engine.Audit.Enabled)
	assert.Equal(t, []byte("access-"+secret), engine.Tokens.Access.PrivateKey)
	assert.Equal(t, time.Hour, engine.Tokens.Access.TTL)
}
