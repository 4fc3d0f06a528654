// Package config loads ermrestd's runtime configuration from the
// environment, grounded in the envOr/envOrInt helper pattern used by the
// Supabase Studio Go port's internal/config package.
package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	ListenAddress string

	PostgresDSN string

	// CatalogStoreDSN is the connection "ermrestd bootstrap" uses to apply
	// the "_ermrest" auxiliary table migrations. Defaults to PostgresDSN.
	// The metastore and introspector read and write those tables through
	// the PostgresDSN pool, not through this connection.
	CatalogStoreDSN string

	JWTSigningKey   string
	JWTIssuer       string
	AnonymousRole   string

	RequirePrimaryKeys bool

	// ReintrospectInterval bounds how often a long-lived server process
	// polls for catalog changes outside of an explicit model-change
	// notification (section 5's "Model-change fan-out").
	ReintrospectInterval time.Duration

	LogLevel string
}

func Load() Config {
	return Config{
		ListenAddress: envOr("ERMREST_LISTEN", ":8000"),

		PostgresDSN:     envOr("ERMREST_POSTGRES_DSN", "postgres://ermrest@localhost:5432/ermrest"),
		CatalogStoreDSN: envOrAny(envOr("ERMREST_POSTGRES_DSN", "postgres://ermrest@localhost:5432/ermrest"), "ERMREST_CATALOG_STORE_DSN"),

		JWTSigningKey: os.Getenv("ERMREST_JWT_SIGNING_KEY"),
		JWTIssuer:     envOr("ERMREST_JWT_ISSUER", "ermrest"),
		AnonymousRole: envOr("ERMREST_ANONYMOUS_ROLE", "*"),

		RequirePrimaryKeys: !strings.EqualFold(os.Getenv("ERMREST_ALLOW_KEYLESS_TABLES"), "true"),

		ReintrospectInterval: envOrDuration("ERMREST_REINTROSPECT_INTERVAL", 30*time.Second),

		LogLevel: envOr("ERMREST_LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envFirst(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func envOrAny(fallback string, keys ...string) string {
	if value := envFirst(keys...); value != "" {
		return value
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
