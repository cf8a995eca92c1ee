package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbwarden/warden/internal/core/domain"
)

func TestLoad_Valid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, domain.ReadOnly, cfg.AccessTier)
	assert.Equal(t, 100, cfg.MaxRows)
	assert.Equal(t, 100, cfg.CacheMaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACCESS_MODE", "limited_write")
	t.Setenv("MAX_ROWS", "500")
	t.Setenv("QUERY_TIMEOUT", "30s")
	t.Setenv("CACHE_MAX_ENTRIES", "250")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SCHEMAS", "public, app")
	t.Setenv("POLICY_FILE", "/tmp/policy.yaml")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, domain.LimitedWrite, cfg.AccessTier)
	assert.Equal(t, 500, cfg.MaxRows)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 250, cfg.CacheMaxEntries)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"public", "app"}, cfg.Schemas)
	assert.Equal(t, "/tmp/policy.yaml", cfg.PolicyFile)
}

func TestLoad_OverridesBeatEnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACCESS_MODE", "readonly")
	t.Setenv("MAX_ROWS", "100")

	tier := "full_access"
	maxRows := 42
	cacheTTL := time.Minute

	cfg, err := Load(Overrides{
		AccessTier: &tier,
		MaxRows:    &maxRows,
		CacheTTL:   &cacheTTL,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.FullAccess, cfg.AccessTier)
	assert.Equal(t, 42, cfg.MaxRows)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
}

func TestLoad_InvalidAccessMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACCESS_MODE", "superuser")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_MODE")
}

func TestLoad_InvalidMaxRows(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MAX_ROWS", "-1")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ROWS")
}

func TestLoad_InvalidCacheTTL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("CACHE_TTL", "not-a-duration")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("LOG_LEVEL", "invalid")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoad_HTTPRequiresBearerToken(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("TRANSPORT", "http")
	t.Setenv("HTTP_BEARER_TOKEN", "")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_BEARER_TOKEN")
}

func TestLoad_InvalidTransport(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("TRANSPORT", "grpc")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSPORT")
}

func TestLoad_PoolValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("POOL_MAX_CONNS", "2")
	t.Setenv("POOL_MIN_CONNS", "4")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POOL_MIN_CONNS")
}

func TestLoad_ExplainOnlyRequiresReadonly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ACCESS_MODE", "full_access")

	_, err := Load(Overrides{ExplainOnly: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--explain-only")
}
