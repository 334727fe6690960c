package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDerivesSupabaseEndpoints(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("AUTH_MODE", "supabase")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AuthModeSignedToken, cfg.Auth.Mode)
	assert.Equal(t, "https://project.supabase.co/auth/v1", cfg.Auth.Issuer)
	assert.Equal(t, "https://project.supabase.co/auth/v1/.well-known/jwks.json", cfg.Auth.JWKSURL)
	assert.Equal(t, "admin@customervoice.local", cfg.Seed.UserEmail)
	assert.Equal(t, "customervoice-demo", cfg.Seed.TenantSlug)
	assert.Equal(t, "default", cfg.Seed.WorkspaceSlug)
}

func TestLoadLegacySeedVariables(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("DATABASE_URL", "postgres://localhost/cv")
	t.Setenv("ENABLE_BOOTSTRAP_SEED", "true")
	t.Setenv("SEED_WORKSPACE_ID", "ws-seed")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AuthModeTrustedHeader, cfg.Auth.Mode)
	assert.True(t, cfg.Seed.Enabled)
	assert.Equal(t, "ws-seed", cfg.Seed.WorkspaceID)
	assert.Equal(t, "postgres://localhost/cv", cfg.Database.URL)
}

func TestLoadRejectsTrustedHeaderInProduction(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_MODE", "trusted_header")
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")
}

func TestLoadRequiresKeyMaterialForSignedTokens(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_MODE", "signed_token")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("AUTH_JWKS_URL", "")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("auth:\n  mode: trusted_header\nserver:\n  addr: \":9090\"\nhttp:\n  rate_burst: 5\n  rate_per_sec: 2\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.HTTP.RateBurst)
	assert.Equal(t, AuthModeTrustedHeader, cfg.Auth.Mode)
}

func TestNormalizeAuthMode(t *testing.T) {
	cases := map[string]string{
		"":               AuthModeSignedToken,
		"Supabase":       AuthModeSignedToken,
		"signed_token":   AuthModeSignedToken,
		"mock":           AuthModeTrustedHeader,
		"trusted_header": AuthModeTrustedHeader,
		"ldap":           "ldap",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAuthMode(in), in)
	}
}

func TestLoadTrustedProxiesFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("HTTP_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.HTTP.TrustedProxies)
}
