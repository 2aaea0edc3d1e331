package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GHE_BASE_URL", "https://github.example.com/")
	t.Setenv("OAUTH_CLIENT_ID", "client")
	t.Setenv("OAUTH_CLIENT_SECRET", "secret")
	t.Setenv("REDIRECT_URL", "https://pages.example.com/app/")
	t.Setenv("TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://github.example.com", cfg.Identity.BaseURL)
	assert.Equal(t, []string{"read:user"}, cfg.Identity.Scopes)
	assert.True(t, cfg.Identity.VerifyTLS)
	assert.Equal(t, 10*time.Second, cfg.Identity.UpstreamTimeout())
	assert.Equal(t, 300*time.Second, cfg.Token.TransitTTL())
	assert.Equal(t, 8*time.Hour, cfg.Token.SessionTTL())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Empty(t, cfg.Warnings())

	origin, err := cfg.Token.AllowedOrigin()
	require.NoError(t, err)
	assert.Equal(t, "https://pages.example.com", origin)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("OAUTH_SCOPES", "read:user, user:email")
	t.Setenv("SSL_VERIFY", "false")
	t.Setenv("TRANSIT_TOKEN_TTL_SECONDS", "60")
	t.Setenv("SESSION_TOKEN_TTL_SECONDS", "3600")
	t.Setenv("UPSTREAM_TIMEOUT_SECONDS", "15")
	t.Setenv("TOKEN_SECRET", "short")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"read:user", "user:email"}, cfg.Identity.Scopes)
	assert.False(t, cfg.Identity.VerifyTLS)
	assert.Equal(t, time.Minute, cfg.Token.TransitTTL())
	assert.Equal(t, time.Hour, cfg.Token.SessionTTL())
	assert.Equal(t, 15*time.Second, cfg.Identity.UpstreamTimeout())
	assert.Len(t, cfg.Warnings(), 2)
}

func TestValidateReportsMissing(t *testing.T) {
	for _, key := range []string{"GHE_BASE_URL", "OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "REDIRECT_URL", "TOKEN_SECRET"} {
		t.Setenv(key, "")
	}
	t.Setenv("OAUTH_CLIENT_ID", "client")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.ElementsMatch(t, []string{"GHE_BASE_URL", "OAUTH_CLIENT_SECRET", "REDIRECT_URL", "TOKEN_SECRET"}, cerr.Missing)
	assert.NotContains(t, err.Error(), "client")
}

func TestValidateReportsInvalid(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIRECT_URL", "/relative/path")
	t.Setenv("TRANSIT_TOKEN_TTL_SECONDS", "-5")

	cfg, err := Load()
	require.NoError(t, err)

	var cerr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cerr)
	assert.Empty(t, cerr.Missing)
	assert.ElementsMatch(t, []string{"REDIRECT_URL", "TRANSIT_TOKEN_TTL_SECONDS"}, cerr.Invalid)
}
