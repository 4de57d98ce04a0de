package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetcc/hospital-equipment-service/internal/password"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var configKeys = []string{
	"DATABASE_URL", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME_MINUTES",
	"SERVER_PORT", "ADMIN_USERNAME", "ADMIN_PASSWORD",
	"JWT_SECRET_KEY", "JWT_ALGORITHM", "ACCESS_TOKEN_EXPIRE_MINUTES", "REFRESH_TOKEN_EXPIRE_DAYS",
	"TOKEN_CLEANUP_INTERVAL_MINUTES", "PASSWORD_HASH_ALGORITHM", "BCRYPT_COST", "PASSWORD_HASH_CONCURRENCY",
	"LOGIN_RATE_LIMIT_PER_SECOND", "FIRST_ADMIN_USERNAME", "FIRST_ADMIN_EMAIL", "FIRST_ADMIN_PASSWORD",
	"FIRST_ADMIN_FULL_NAME", "LOG_LEVEL", "LOG_DEV", "LOG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", testSecret)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "HS256", cfg.Token.Algorithm)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.Token.CleanupInterval)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, float64(5), cfg.RateLimit.LoginPerSecond)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Bootstrap.Enabled())
	assert.Equal(t, "System Administrator", cfg.Bootstrap.FullName)
	assert.Equal(t, password.DefaultConfig(), cfg.Password.HasherConfig())
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("JWT_ALGORITHM", "HS512")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "5")
	t.Setenv("REFRESH_TOKEN_EXPIRE_DAYS", "1")
	t.Setenv("TOKEN_CLEANUP_INTERVAL_MINUTES", "0")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("PASSWORD_HASH_ALGORITHM", "ARGON2ID")
	t.Setenv("FIRST_ADMIN_USERNAME", "root")
	t.Setenv("FIRST_ADMIN_EMAIL", "root@example.org")
	t.Setenv("FIRST_ADMIN_PASSWORD", "Passw0rd!")
	t.Setenv("LOG_DEV", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "HS512", cfg.Token.Algorithm)
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.Token.RefreshTTL)
	assert.Zero(t, cfg.Token.CleanupInterval)
	assert.True(t, cfg.Bootstrap.Enabled())
	assert.True(t, cfg.Log.Development)

	hasherCfg := cfg.Password.HasherConfig()
	assert.Equal(t, password.Argon2id, hasherCfg.Algorithm)
	assert.Equal(t, 10, hasherCfg.BcryptCost)
}

func TestLoadConfig_Rejects(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, ErrMissingJWTSecret)

	t.Setenv("JWT_SECRET_KEY", "short")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrWeakJWTSecret)

	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "fifteen")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidSetting)
	assert.ErrorContains(t, err, "ACCESS_TOKEN_EXPIRE_MINUTES")

	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "0")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidSetting)

	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("LOGIN_RATE_LIMIT_PER_SECOND", "-1")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestLoadConfig_DotenvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("JWT_SECRET_KEY")
	os.Unsetenv("SERVER_PORT")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET_KEY="+testSecret+"\nSERVER_PORT=9090\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET_KEY")
		os.Unsetenv("SERVER_PORT")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{Host: "db", Port: "5432", User: "svc", Password: "pw", Name: "equipment"}
	assert.Equal(t, "host=db user=svc password=pw dbname=equipment port=5432 sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.URL = "postgres://svc:pw@db:5432/equipment"
	assert.Equal(t, cfg.URL, cfg.DSN())
}
