package identity

import (
	"errors"
	"fmt"
)

// ErrProfileNotFound is returned when the profile response carries no login.
var ErrProfileNotFound = errors.New("profile login not found")

// maxErrorBody bounds how much of a provider response is kept for diagnostics.
const maxErrorBody = 200

// UpstreamError covers transport failures, timeouts and non-2xx answers from the provider.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ExchangeError is returned when the token endpoint answers without an access token.
type ExchangeError struct {
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	return "token exchange failed: " + e.Detail()
}

// Detail prefers the provider description over its error code.
func (e *ExchangeError) Detail() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	default:
		return "access token not received"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
