// Package identity talks to the GitHub Enterprise OAuth and REST endpoints.
package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/spec-kit/ghe-token-broker/internal/observability"
)

const (
	EndpointToken   = "token"
	EndpointProfile = "profile"

	authorizePath = "/login/oauth/authorize"
	tokenPath     = "/login/oauth/access_token"
	profilePath   = "/api/v3/user"

	// DefaultTimeout bounds each outbound call; there are no retries.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 64 * 1024
	userAgent       = "ghe-token-broker"
)

// Config describes the identity provider and OAuth app credentials.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
	VerifyTLS    bool
}

// Profile is the subset of the user profile the broker needs.
type Profile struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}

// Client performs the code exchange and profile lookup.
type Client struct {
	oauth      oauth2.Config
	profileURL string
	http       *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches upstream call counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client for the provider rooted at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("identity provider base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + authorizePath,
				TokenURL:  base + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: base + profilePath,
		http:       newHTTPClient(timeout, cfg.VerifyTLS),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration, verifyTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit SSL_VERIFY=false opt-out
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// AuthCodeURL returns the provider authorize URL a browser should be sent to.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	reqBody, err := json.Marshal(map[string]string{
		"client_id":     c.oauth.ClientID,
		"client_secret": c.oauth.ClientSecret,
		"code":          code,
	})
	if err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	contentType, body, err := c.do(req, EndpointToken)
	if err != nil {
		return nil, err
	}

	values, err := normalizeBody(contentType, body)
	if err != nil {
		c.metrics.RecordUpstream(EndpointToken, "malformed")
		return nil, &UpstreamError{Endpoint: EndpointToken, StatusCode: http.StatusOK, Body: truncate(string(body), maxErrorBody), Err: err}
	}

	accessToken := values["access_token"]
	if accessToken == "" {
		c.metrics.RecordUpstream(EndpointToken, "rejected")
		c.logger.Warn("token exchange returned no access token",
			zap.String("error", values["error"]),
			zap.String("error_description", values["error_description"]))
		return nil, &ExchangeError{Code: values["error"], Description: values["error_description"]}
	}

	c.metrics.RecordUpstream(EndpointToken, "ok")
	extra := make(map[string]any, len(values))
	for k, v := range values {
		if k == "access_token" || k == "refresh_token" {
			continue
		}
		extra[k] = v
	}
	token := &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    values["token_type"],
		RefreshToken: values["refresh_token"],
	}
	return token.WithExtra(extra), nil
}

// FetchProfile resolves the login behind an access token.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	_, body, err := c.do(req, EndpointProfile)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil || profile.Login == "" {
		c.metrics.RecordUpstream(EndpointProfile, "rejected")
		c.logger.Warn("profile response has no login", zap.Int("body_bytes", len(body)))
		return nil, ErrProfileNotFound
	}

	c.metrics.RecordUpstream(EndpointProfile, "ok")
	return &profile, nil
}

// do sends req and returns the Content-Type and body of a 2xx answer.
func (c *Client) do(req *http.Request, endpoint string) (string, []byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(endpoint, "transport_error")
		c.logger.Warn("identity provider request failed",
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return "", nil, &UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.metrics.RecordUpstream(endpoint, "transport_error")
		return "", nil, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.RecordUpstream(endpoint, "http_error")
		preview := truncate(string(body), maxErrorBody)
		c.logger.Warn("identity provider returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", preview))
		return "", nil, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: preview}
	}

	c.logger.Debug("identity provider request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))
	return resp.Header.Get("Content-Type"), body, nil
}
