// Package gateway maps transport-neutral requests onto the issue and verify flows.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// Request is a transport-neutral inbound HTTP request.
type Request struct {
	Method          string
	Query           map[string]string
	Headers         map[string]string
	Body            string
	IsBase64Encoded bool
	RequestID       string
}

// Response is a transport-neutral HTTP response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// resolveMethod falls back to body presence when the transport gave no method.
func (r Request) resolveMethod() string {
	if m := strings.ToUpper(strings.TrimSpace(r.Method)); m != "" {
		return m
	}
	if strings.TrimSpace(r.Body) != "" {
		return http.MethodPost
	}
	return http.MethodGet
}

func (r Request) decodedBody() ([]byte, error) {
	if !r.IsBase64Encoded {
		return []byte(r.Body), nil
	}
	return base64.StdEncoding.DecodeString(r.Body)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Login        string `json:"login"`
	SessionToken string `json:"session_token,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func jsonBody(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"error":"Internal Server Error"}`
	}
	return string(raw)
}
