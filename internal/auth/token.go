package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/ghe-token-broker/internal/domain"
)

// ErrInvalidToken is returned for every token that fails verification.
// Callers must not distinguish the wrapped causes in user-facing output.
var ErrInvalidToken = errors.New("invalid token")

// Codec mints and verifies broker tokens of the form <base64url payload>.<hex hmac>.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// NewCodec builds a codec around the process-wide signing secret.
func NewCodec(secret []byte) *Codec {
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{secret: key, method: jwt.SigningMethodHS256}
}

// Mint signs a payload for subject that expires ttl after now.
func (c *Codec) Mint(subject string, kind domain.TokenKind, ttl time.Duration, now time.Time) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if ttl < time.Second {
		return "", fmt.Errorf("token ttl must be at least one second, got %s", ttl)
	}

	payload := domain.TokenPayload{
		Subject: subject,
		Kind:    kind,
		Expiry:  now.Unix() + int64(ttl/time.Second),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	sig, err := c.sign(encoded)
	if err != nil {
		return "", err
	}
	return encoded + "." + sig, nil
}

// Verify checks signature, structure and expiry of token at instant now.
// The payload kind is not checked here.
func (c *Codec) Verify(token string, now time.Time) (*domain.TokenPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, invalid(jwt.ErrTokenMalformed)
	}

	expected, err := c.sign(parts[0])
	if err != nil {
		return nil, invalid(err)
	}
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return nil, invalid(jwt.ErrTokenSignatureInvalid)
	}

	raw, err := decodeSegment(parts[0])
	if err != nil {
		return nil, invalid(jwt.ErrTokenMalformed)
	}

	var payload domain.TokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, invalid(jwt.ErrTokenMalformed)
	}
	if payload.Subject == "" {
		return nil, invalid(jwt.ErrTokenMalformed)
	}
	if payload.Expiry <= now.Unix() {
		return nil, invalid(jwt.ErrTokenExpired)
	}
	return &payload, nil
}

func (c *Codec) sign(segment string) (string, error) {
	sig, err := c.method.Sign(segment, c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// decodeSegment accepts both padded and unpadded base64url.
func decodeSegment(seg string) ([]byte, error) {
	if m := len(seg) % 4; m != 0 {
		seg += strings.Repeat("=", 4-m)
	}
	return base64.URLEncoding.DecodeString(seg)
}

func invalid(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidToken, cause)
}
