package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cityos/internal/domain"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	FallbackSuperAdminRead = "super_admin_read"
	FallbackDenyAll        = "deny_all"
)

type Config struct {
	HTTPAddr    string
	Env         string
	PostgresDSN string
	LogLevel    string
	LogFormat   string

	ContextSecret         string
	SuperAdminRole        string
	TenantLookupTimeoutMs int

	PDPURL                 string
	PDPAPIKey              string
	PDPTimeoutMs           int
	PDPFallbackMode        string
	PDPFallbackReadActions []string
	PDPPolicyPath          string

	AuthMode          string
	OIDCIssuerURL     string
	OIDCAudience      string
	OIDCJWKSURL       string
	OIDCClockSkewSecs int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		Env:                    envDefault("CITYOS_ENV", EnvDevelopment),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFormat:              envDefault("LOG_FORMAT", "text"),
		ContextSecret:          os.Getenv("CITYOS_CONTEXT_SECRET"),
		SuperAdminRole:         envDefault("SUPER_ADMIN_ROLE", "super_admin"),
		TenantLookupTimeoutMs:  envIntDefault("TENANT_LOOKUP_TIMEOUT_MS", 2000),
		PDPURL:                 strings.TrimRight(os.Getenv("PDP_URL"), "/"),
		PDPAPIKey:              os.Getenv("PDP_API_KEY"),
		PDPTimeoutMs:           envIntDefault("PDP_TIMEOUT_MS", 5000),
		PDPFallbackMode:        envDefault("PDP_FALLBACK_MODE", FallbackSuperAdminRead),
		PDPFallbackReadActions: envListDefault("PDP_FALLBACK_READ_ACTIONS", []string{"read", "view", "list", "get"}),
		PDPPolicyPath:          os.Getenv("PDP_POLICY_PATH"),
		AuthMode:               os.Getenv("AUTH_MODE"),
		OIDCIssuerURL:          os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:           os.Getenv("OIDC_AUDIENCE"),
		OIDCJWKSURL:            os.Getenv("OIDC_JWKS_URL"),
		OIDCClockSkewSecs:      envIntDefault("OIDC_CLOCK_SKEW_SECONDS", 60),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

// Validate refuses configurations that would silently weaken request trust.
// Production requires the context secret and a PDP endpoint; no default is
// ever substituted for either.
func (c Config) Validate() error {
	switch c.AuthMode {
	case "":
		return fmt.Errorf("%w: AUTH_MODE is required", domain.ErrConfig)
	case "none", "header", "oidc":
	default:
		return fmt.Errorf("%w: unsupported AUTH_MODE %q", domain.ErrConfig, c.AuthMode)
	}
	if c.AuthMode == "oidc" && strings.TrimSpace(c.OIDCIssuerURL) == "" {
		return fmt.Errorf("%w: OIDC_ISSUER_URL is required for oidc auth", domain.ErrConfig)
	}
	switch c.PDPFallbackMode {
	case FallbackSuperAdminRead, FallbackDenyAll:
	default:
		return fmt.Errorf("%w: unsupported PDP_FALLBACK_MODE %q", domain.ErrConfig, c.PDPFallbackMode)
	}
	if strings.TrimSpace(c.SuperAdminRole) == "" {
		return fmt.Errorf("%w: SUPER_ADMIN_ROLE must not be empty", domain.ErrConfig)
	}
	if !c.IsProduction() {
		return nil
	}
	if strings.TrimSpace(c.ContextSecret) == "" {
		return fmt.Errorf("%w: CITYOS_CONTEXT_SECRET is required in production", domain.ErrConfig)
	}
	if strings.TrimSpace(c.PDPURL) == "" {
		return fmt.Errorf("%w: PDP_URL is required in production", domain.ErrConfig)
	}
	if c.AuthMode == "header" {
		return fmt.Errorf("%w: AUTH_MODE=header is not allowed in production", domain.ErrConfig)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

func (c Config) PDPTimeout() time.Duration {
	if c.PDPTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PDPTimeoutMs) * time.Millisecond
}

func (c Config) TenantLookupTimeout() time.Duration {
	if c.TenantLookupTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.TenantLookupTimeoutMs) * time.Millisecond
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envListDefault(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
