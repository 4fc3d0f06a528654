package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWhenEnvironmentIsEmpty(t *testing.T) {
	clearEnv(t, "ERMREST_LISTEN", "ERMREST_POSTGRES_DSN", "ERMREST_CATALOG_STORE_DSN",
		"ERMREST_JWT_SIGNING_KEY", "ERMREST_JWT_ISSUER", "ERMREST_ANONYMOUS_ROLE",
		"ERMREST_ALLOW_KEYLESS_TABLES", "ERMREST_REINTROSPECT_INTERVAL", "ERMREST_LOG_LEVEL")

	cfg := Load()
	require.Equal(t, ":8000", cfg.ListenAddress)
	require.Equal(t, "ermrest", cfg.JWTIssuer)
	require.Equal(t, "*", cfg.AnonymousRole)
	require.True(t, cfg.RequirePrimaryKeys, "primary keys should be required unless explicitly opted out")
	require.Equal(t, 30*time.Second, cfg.ReintrospectInterval)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, cfg.PostgresDSN, cfg.CatalogStoreDSN, "catalog store DSN should default to the main postgres DSN")
}

func TestLoadCatalogStoreDSNFallsBackToPostgresDSN(t *testing.T) {
	clearEnv(t, "ERMREST_CATALOG_STORE_DSN")
	t.Setenv("ERMREST_POSTGRES_DSN", "postgres://u@host/primary")

	cfg := Load()
	require.Equal(t, "postgres://u@host/primary", cfg.PostgresDSN)
	require.Equal(t, "postgres://u@host/primary", cfg.CatalogStoreDSN)
}

func TestLoadCatalogStoreDSNCanBeSplitOut(t *testing.T) {
	t.Setenv("ERMREST_POSTGRES_DSN", "postgres://u@host/primary")
	t.Setenv("ERMREST_CATALOG_STORE_DSN", "postgres://u@host/catalog")

	cfg := Load()
	require.Equal(t, "postgres://u@host/primary", cfg.PostgresDSN)
	require.Equal(t, "postgres://u@host/catalog", cfg.CatalogStoreDSN)
}

func TestLoadAllowKeylessTablesDisablesPrimaryKeyRequirement(t *testing.T) {
	t.Setenv("ERMREST_ALLOW_KEYLESS_TABLES", "true")

	cfg := Load()
	require.False(t, cfg.RequirePrimaryKeys)
}

func TestLoadAllowKeylessTablesIsCaseInsensitive(t *testing.T) {
	t.Setenv("ERMREST_ALLOW_KEYLESS_TABLES", "TRUE")

	cfg := Load()
	require.False(t, cfg.RequirePrimaryKeys)
}

func TestLoadReintrospectIntervalParsesDuration(t *testing.T) {
	t.Setenv("ERMREST_REINTROSPECT_INTERVAL", "5m")

	cfg := Load()
	require.Equal(t, 5*time.Minute, cfg.ReintrospectInterval)
}

func TestLoadReintrospectIntervalFallsBackOnGarbageValue(t *testing.T) {
	t.Setenv("ERMREST_REINTROSPECT_INTERVAL", "not-a-duration")

	cfg := Load()
	require.Equal(t, 30*time.Second, cfg.ReintrospectInterval, "an unparseable duration should fall back to the default rather than error")
}
