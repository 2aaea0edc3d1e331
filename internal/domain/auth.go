package domain

import "time"

// TokenKind differentiates transit vs session tokens.
type TokenKind string

const (
	TokenKindTransit TokenKind = "transit"
	TokenKindSession TokenKind = "session"
)

// Known reports whether the kind is one the broker knows how to handle.
func (k TokenKind) Known() bool {
	switch k {
	case TokenKindTransit, TokenKindSession:
		return true
	default:
		return false
	}
}

// TokenPayload is the signed body of a broker token.
type TokenPayload struct {
	Subject string    `json:"sub"`
	Kind    TokenKind `json:"type"`
	Expiry  int64     `json:"exp"`
}

// ExpiresAt returns the expiry as a time value.
func (p TokenPayload) ExpiresAt() time.Time {
	return time.Unix(p.Expiry, 0)
}
