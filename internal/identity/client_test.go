package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type providerReply struct {
	status      int
	contentType string
	body        string
}

func newProvider(t *testing.T, token, profile providerReply) (*httptest.Server, *[]map[string]string) {
	t.Helper()
	var tokenRequests []map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		var body map[string]string
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		tokenRequests = append(tokenRequests, body)
		write(w, token)
	})
	mux.HandleFunc(profilePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		write(w, profile)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenRequests
}

func write(w http.ResponseWriter, reply providerReply) {
	if reply.contentType != "" {
		w.Header().Set("Content-Type", reply.contentType)
	} else {
		w.Header()["Content-Type"] = nil
	}
	status := reply.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply.body)
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:      baseURL + "/",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"read:user"},
		Timeout:      2 * time.Second,
		VerifyTLS:    true,
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestExchangeCodeJSON(t *testing.T) {
	srv, requests := newProvider(t,
		providerReply{contentType: "application/json", body: `{"access_token":"tok","token_type":"bearer","scope":"read:user"}`},
		providerReply{})

	token, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, "read:user", token.Extra("scope"))

	require.Len(t, *requests, 1)
	assert.Equal(t, map[string]string{
		"client_id":     "client-id",
		"client_secret": "client-secret",
		"code":          "abc123",
	}, (*requests)[0])
}

func TestExchangeCodeFormEncoded(t *testing.T) {
	cases := map[string]string{
		"declared form": "application/x-www-form-urlencoded; charset=utf-8",
		"sniffed form":  "",
		"text plain":    "text/plain",
	}
	for name, contentType := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := newProvider(t,
				providerReply{contentType: contentType, body: "access_token=tok&token_type=bearer"},
				providerReply{})

			token, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
			require.NoError(t, err)
			assert.Equal(t, "tok", token.AccessToken)
			assert.Equal(t, "bearer", token.TokenType)
		})
	}
}

func TestExchangeCodePrefersContentTypeOverSniffing(t *testing.T) {
	srv, _ := newProvider(t,
		providerReply{contentType: "application/json", body: ` {"access_token":"a=b&c","token_type":"bearer"}`},
		providerReply{})

	token, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "a=b&c", token.AccessToken)
}

func TestExchangeCodeProviderError(t *testing.T) {
	srv, _ := newProvider(t,
		providerReply{contentType: "application/json", body: `{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`},
		providerReply{})

	_, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "bad_verification_code", exErr.Code)
	assert.Equal(t, "The code passed is incorrect or expired.", exErr.Detail())
}

func TestExchangeCodeFormProviderError(t *testing.T) {
	srv, _ := newProvider(t,
		providerReply{body: "error=bad_verification_code&error_uri=https%3A%2F%2Fdocs"},
		providerReply{})

	_, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "bad_verification_code", exErr.Detail())
}

func TestExchangeCodeNon2xx(t *testing.T) {
	long := strings.Repeat("x", 1000)
	srv, _ := newProvider(t,
		providerReply{status: http.StatusBadGateway, contentType: "text/html", body: long},
		providerReply{})

	_, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, EndpointToken, upErr.Endpoint)
	assert.Equal(t, http.StatusBadGateway, upErr.StatusCode)
	assert.LessOrEqual(t, len(upErr.Body), maxErrorBody+3)
}

func TestExchangeCodeUnparseableBody(t *testing.T) {
	srv, _ := newProvider(t, providerReply{contentType: "text/plain", body: "nope"}, providerReply{})

	_, err := newTestClient(t, srv.URL).ExchangeCode(context.Background(), "abc123")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
}

func TestExchangeCodeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.ExchangeCode(context.Background(), "abc123")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Error(t, upErr.Err)
}

func TestFetchProfile(t *testing.T) {
	srv, _ := newProvider(t, providerReply{},
		providerReply{contentType: "application/json", body: `{"login":"alice","name":"Alice"}`})

	profile, err := newTestClient(t, srv.URL).FetchProfile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Login)
	assert.Equal(t, "Alice", profile.Name)
}

func TestFetchProfileMissingLogin(t *testing.T) {
	srv, _ := newProvider(t, providerReply{},
		providerReply{contentType: "application/json", body: `{"message":"Bad credentials"}`})

	_, err := newTestClient(t, srv.URL).FetchProfile(context.Background(), "tok")
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestFetchProfileNeverLeaksAccessToken(t *testing.T) {
	srv, _ := newProvider(t, providerReply{}, providerReply{})
	core, logs := observer.New(zap.DebugLevel)

	_, err := newTestClient(t, srv.URL, WithLogger(zap.New(core))).FetchProfile(context.Background(), "secret-access-token")
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusUnauthorized, upErr.StatusCode)
	assert.NotContains(t, err.Error(), "secret-access-token")

	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(v), "secret-access-token")
		}
	}
	assert.NotZero(t, logs.FilterMessage("identity provider returned error status").Len())
}

func TestAuthCodeURL(t *testing.T) {
	c := newTestClient(t, "https://github.example.com")
	got := c.AuthCodeURL("")
	assert.True(t, strings.HasPrefix(got, "https://github.example.com/login/oauth/authorize?"))
	assert.Contains(t, got, "client_id=client-id")
	assert.Contains(t, got, "scope=read%3Auser")
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
