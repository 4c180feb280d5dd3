// Package config loads and validates agent config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Identity modes.
const (
	IdentityModeLocal = "local"
	IdentityModeOIDC  = "oidc"
)

// Config holds agent configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the shell gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address of the deep-link web prefix server; empty disables it.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// RendererToken is the Bearer token the renderer presents on the shell gRPC server; empty disables the check.
	RendererToken string `mapstructure:"RENDERER_TOKEN"`
	// DatabaseURL is the Postgres DSN for accounts, profiles and audit logs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// IdentityMode selects the identity backend: "local" (JWT + Postgres) or "oidc" (hosted provider).
	IdentityMode string `mapstructure:"IDENTITY_MODE"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Local mode only.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file. Local mode only.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTIDTTL is the ID token lifetime (e.g. "1h").
	JWTIDTTL string `mapstructure:"JWT_ID_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OIDC settings, used when IdentityMode is "oidc".
	OIDCIssuerURL    string `mapstructure:"OIDC_ISSUER_URL"`
	OIDCClientID     string `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCScopes       string `mapstructure:"OIDC_SCOPES"`
	// OIDCAdminClaim is the boolean ID-token claim that marks an elevated session.
	OIDCAdminClaim string `mapstructure:"OIDC_ADMIN_CLAIM"`

	// DeepLinkPrefixes is a comma-separated list of URL prefixes the app is registered for.
	DeepLinkPrefixes string `mapstructure:"DEEP_LINK_PREFIXES"`
	// LaunchURL is the URL the process was started with, if any.
	LaunchURL string `mapstructure:"LAUNCH_URL"`
	// RoutingPolicyFile is an optional Rego file replacing the built-in destination rules.
	RoutingPolicyFile string `mapstructure:"ROUTING_POLICY_FILE"`
	// PasswordResetTTL is how long a password reset code stays valid (e.g. "1h").
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// PasswordResetPerMinute caps how many reset links the agent sends per minute.
	PasswordResetPerMinute int `mapstructure:"PASSWORD_RESET_PER_MINUTE"`

	// App link verification files served on the web prefix.
	AppleAppID        string `mapstructure:"APPLE_APP_ID"`
	AndroidPackage    string `mapstructure:"ANDROID_PACKAGE"`
	AndroidCertSHA256 string `mapstructure:"ANDROID_CERT_SHA256"`

	// Telemetry (optional).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// TelemetryKafkaBrokers is a comma-separated list of Kafka brokers for session events.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", "")
	v.SetDefault("RENDERER_TOKEN", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("IDENTITY_MODE", IdentityModeLocal)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "pawsit-identity")
	v.SetDefault("JWT_AUDIENCE", "pawsit-app")
	v.SetDefault("JWT_ID_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "720h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OIDC_ISSUER_URL", "")
	v.SetDefault("OIDC_CLIENT_ID", "")
	v.SetDefault("OIDC_CLIENT_SECRET", "")
	v.SetDefault("OIDC_SCOPES", "openid email offline_access")
	v.SetDefault("OIDC_ADMIN_CLAIM", "admin")
	v.SetDefault("DEEP_LINK_PREFIXES", "https://pawsit.app/,pawsit://")
	v.SetDefault("LAUNCH_URL", "")
	v.SetDefault("ROUTING_POLICY_FILE", "")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_PER_MINUTE", 30)
	v.SetDefault("APPLE_APP_ID", "")
	v.SetDefault("ANDROID_PACKAGE", "")
	v.SetDefault("ANDROID_CERT_SHA256", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "pawsit-agent")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "pawsit-session-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "pawsit-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.IdentityMode = strings.ToLower(strings.TrimSpace(cfg.IdentityMode))
	switch cfg.IdentityMode {
	case IdentityModeLocal:
	case IdentityModeOIDC:
		if cfg.OIDCIssuerURL == "" || cfg.OIDCClientID == "" {
			return nil, errors.New("config: OIDC_ISSUER_URL and OIDC_CLIENT_ID are required when IDENTITY_MODE=oidc")
		}
	default:
		return nil, errors.New("config: IDENTITY_MODE must be local or oidc")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if len(cfg.DeepLinkPrefixList()) == 0 {
		return nil, errors.New("config: DEEP_LINK_PREFIXES must list at least one prefix")
	}

	return &cfg, nil
}

// IDTTL parses JWTIDTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) IDTTL() time.Duration {
	return parsePositive(c.JWTIDTTL, time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parsePositive(c.JWTRefreshTTL, 720*time.Hour)
}

// ResetTTL parses PasswordResetTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parsePositive(c.PasswordResetTTL, time.Hour)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// DeepLinkPrefixList returns the registered deep-link prefixes.
func (c *Config) DeepLinkPrefixList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.DeepLinkPrefixes)
}

// AppPrefix returns the first registered custom-scheme prefix (e.g. "pawsit://"),
// or the first prefix of any kind when none is custom.
func (c *Config) AppPrefix() string {
	list := c.DeepLinkPrefixList()
	for _, p := range list {
		if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") {
			return p
		}
	}
	if len(list) > 0 {
		return list[0]
	}
	return ""
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means Kafka telemetry is disabled.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// AndroidCertList returns the comma-separated Android signing certificate fingerprints.
func (c *Config) AndroidCertList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AndroidCertSHA256)
}

// OIDCScopeList returns the configured OIDC scopes.
func (c *Config) OIDCScopeList() []string {
	if c == nil {
		return nil
	}
	return strings.Fields(c.OIDCScopes)
}

func parsePositive(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
