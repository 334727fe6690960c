package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Auth modes accepted by the identity resolver.
const (
	AuthModeSignedToken   = "signed_token"
	AuthModeTrustedHeader = "trusted_header"
)

// Config is the full runtime configuration of the API process.
type Config struct {
	Env string `mapstructure:"env"`

	Server struct {
		Addr     string `mapstructure:"addr"`
		GRPCAddr string `mapstructure:"grpc_addr"`
	} `mapstructure:"server"`

	Database struct {
		URL          string `mapstructure:"url"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
		AutoMigrate  bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"database"`

	Auth struct {
		Mode          string `mapstructure:"mode"`
		SupabaseURL   string `mapstructure:"supabase_url"`
		Issuer        string `mapstructure:"issuer"`
		Audience      string `mapstructure:"audience"`
		JWKSURL       string `mapstructure:"jwks_url"`
		OIDCDiscovery bool   `mapstructure:"oidc_discovery"`
		JWTSecret     string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	HTTP struct {
		RateBurst      int      `mapstructure:"rate_burst"`
		RatePerSec     int      `mapstructure:"rate_per_sec"`
		MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
		TrustedProxies []string `mapstructure:"trusted_proxies"`
	} `mapstructure:"http"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Seed Seed `mapstructure:"seed"`
}

// Seed describes the optional bootstrap tenant, workspace and admin.
type Seed struct {
	Enabled       bool   `mapstructure:"enabled"`
	TenantID      string `mapstructure:"tenant_id"`
	WorkspaceID   string `mapstructure:"workspace_id"`
	UserID        string `mapstructure:"user_id"`
	UserEmail     string `mapstructure:"user_email"`
	TenantSlug    string `mapstructure:"tenant_slug"`
	WorkspaceSlug string `mapstructure:"workspace_slug"`
}

// Load reads configuration from the environment and an optional file named by CONFIG_FILE.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.grpc_addr", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("auth.mode", AuthModeSignedToken)
	v.SetDefault("auth.supabase_url", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.oidc_discovery", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("http.rate_burst", 60)
	v.SetDefault("http.rate_per_sec", 30)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("seed.enabled", false)
	v.SetDefault("seed.tenant_id", "")
	v.SetDefault("seed.workspace_id", "")
	v.SetDefault("seed.user_id", "")
	v.SetDefault("seed.user_email", "admin@customervoice.local")
	v.SetDefault("seed.tenant_slug", "customervoice-demo")
	v.SetDefault("seed.workspace_slug", "default")

	// Names kept from earlier deployments.
	_ = v.BindEnv("env", "APP_ENV", "NODE_ENV")
	_ = v.BindEnv("server.addr", "SERVER_ADDR", "API_ADDR")
	_ = v.BindEnv("auth.supabase_url", "AUTH_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("auth.issuer", "AUTH_ISSUER", "SUPABASE_ISSUER")
	_ = v.BindEnv("auth.audience", "AUTH_AUDIENCE", "SUPABASE_JWT_AUDIENCE")
	_ = v.BindEnv("auth.jwks_url", "AUTH_JWKS_URL", "SUPABASE_JWKS_URL")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = v.BindEnv("seed.enabled", "SEED_ENABLED", "ENABLE_BOOTSTRAP_SEED")

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Auth.Mode = NormalizeAuthMode(c.Auth.Mode)
	base := strings.TrimRight(strings.TrimSpace(c.Auth.SupabaseURL), "/")
	if base != "" {
		if c.Auth.Issuer == "" {
			c.Auth.Issuer = base + "/auth/v1"
		}
		if c.Auth.JWKSURL == "" {
			c.Auth.JWKSURL = base + "/auth/v1/.well-known/jwks.json"
		}
	}
}

// NormalizeAuthMode maps accepted aliases onto the canonical mode names.
func NormalizeAuthMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", AuthModeSignedToken, "supabase", "jwt":
		return AuthModeSignedToken
	case AuthModeTrustedHeader, "mock", "header":
		return AuthModeTrustedHeader
	default:
		return strings.ToLower(strings.TrimSpace(mode))
	}
}

// IsProduction reports whether the process runs with production guards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeSignedToken:
		if c.Auth.JWKSURL == "" && c.Auth.JWTSecret == "" && !(c.Auth.OIDCDiscovery && c.Auth.Issuer != "") {
			return errors.New("auth.jwks_url, auth.supabase_url, auth.jwt_secret or auth.oidc_discovery with auth.issuer must be set for signed_token mode")
		}
	case AuthModeTrustedHeader:
		if c.IsProduction() {
			return errors.New("trusted_header auth mode is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.HTTP.RateBurst <= 0 || c.HTTP.RatePerSec <= 0 {
		return errors.New("http.rate_burst and http.rate_per_sec must be positive")
	}
	if c.Seed.Enabled && c.Database.URL == "" {
		return errors.New("seed.enabled requires database.url")
	}
	return nil
}
