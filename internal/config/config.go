package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength is the recommended minimum size of TOKEN_SECRET in bytes.
const MinSecretLength = 32

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Identity IdentityConfig
	Token    TokenConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// IdentityConfig describes the GitHub Enterprise instance and OAuth app.
type IdentityConfig struct {
	BaseURL                string
	ClientID               string
	ClientSecret           string
	Scopes                 []string
	VerifyTLS              bool
	UpstreamTimeoutSeconds int
}

// TokenConfig defines token signing and lifetimes.
type TokenConfig struct {
	Secret            string
	RedirectURL       string
	TransitTTLSeconds int
	SessionTTLSeconds int
}

// ConfigError lists required environment variables that are missing or unusable.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ghe-token-broker"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Identity: IdentityConfig{
			BaseURL:                strings.TrimRight(os.Getenv("GHE_BASE_URL"), "/"),
			ClientID:               os.Getenv("OAUTH_CLIENT_ID"),
			ClientSecret:           os.Getenv("OAUTH_CLIENT_SECRET"),
			Scopes:                 splitList(getEnv("OAUTH_SCOPES", "read:user")),
			VerifyTLS:              getEnvAsBool("SSL_VERIFY", true),
			UpstreamTimeoutSeconds: getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 10),
		},
		Token: TokenConfig{
			Secret:            os.Getenv("TOKEN_SECRET"),
			RedirectURL:       os.Getenv("REDIRECT_URL"),
			TransitTTLSeconds: getEnvAsInt("TRANSIT_TOKEN_TTL_SECONDS", 300),
			SessionTTLSeconds: getEnvAsInt("SESSION_TOKEN_TTL_SECONDS", 28800),
		},
	}

	return cfg, nil
}

// Validate reports required variables that are absent as a *ConfigError.
func (c *Config) Validate() error {
	cerr := &ConfigError{}
	required := []struct {
		name  string
		value string
	}{
		{"GHE_BASE_URL", c.Identity.BaseURL},
		{"OAUTH_CLIENT_ID", c.Identity.ClientID},
		{"OAUTH_CLIENT_SECRET", c.Identity.ClientSecret},
		{"REDIRECT_URL", c.Token.RedirectURL},
		{"TOKEN_SECRET", c.Token.Secret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cerr.Missing = append(cerr.Missing, r.name)
		}
	}

	if c.Token.RedirectURL != "" {
		if _, err := c.Token.AllowedOrigin(); err != nil {
			cerr.Invalid = append(cerr.Invalid, "REDIRECT_URL")
		}
	}
	if c.Identity.BaseURL != "" {
		if u, err := url.Parse(c.Identity.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			cerr.Invalid = append(cerr.Invalid, "GHE_BASE_URL")
		}
	}
	if c.Token.TransitTTLSeconds <= 0 {
		cerr.Invalid = append(cerr.Invalid, "TRANSIT_TOKEN_TTL_SECONDS")
	}
	if c.Token.SessionTTLSeconds <= 0 {
		cerr.Invalid = append(cerr.Invalid, "SESSION_TOKEN_TTL_SECONDS")
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

// Warnings lists non-fatal configuration concerns worth logging at startup.
func (c *Config) Warnings() []string {
	var out []string
	if c.Token.Secret != "" && len(c.Token.Secret) < MinSecretLength {
		out = append(out, fmt.Sprintf("TOKEN_SECRET is shorter than %d bytes", MinSecretLength))
	}
	if !c.Identity.VerifyTLS {
		out = append(out, "SSL_VERIFY=false: TLS certificates of the identity provider are not verified")
	}
	return out
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// UpstreamTimeout returns the per-call timeout for identity provider requests.
func (i IdentityConfig) UpstreamTimeout() time.Duration {
	if i.UpstreamTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(i.UpstreamTimeoutSeconds) * time.Second
}

// TransitTTL returns the transit token lifetime.
func (t TokenConfig) TransitTTL() time.Duration {
	return time.Duration(t.TransitTTLSeconds) * time.Second
}

// SessionTTL returns the session token lifetime.
func (t TokenConfig) SessionTTL() time.Duration {
	return time.Duration(t.SessionTTLSeconds) * time.Second
}

// AllowedOrigin derives the single CORS origin from the redirect target.
func (t TokenConfig) AllowedOrigin() (string, error) {
	u, err := url.Parse(t.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("parse REDIRECT_URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("REDIRECT_URL must be an absolute URL")
	}
	return u.Scheme + "://" + u.Host, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
