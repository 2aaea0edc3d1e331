package events

import (
	"time"

	"github.com/spec-kit/ghe-token-broker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTransitIssued        EventType = "transit_issued"
	EventIssueFailed          EventType = "issue_failed"
	EventSessionIssued        EventType = "session_issued"
	EventSessionVerified      EventType = "session_verified"
	EventVerificationRejected EventType = "verification_rejected"
)

// Event represents a token lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Subject   string      `json:"subject,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TokenIssuedPayload describes a freshly minted token. The token itself is never included.
type TokenIssuedPayload struct {
	Kind      domain.TokenKind `json:"kind"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// FailurePayload carries the error code of a rejected issue or verify attempt.
type FailurePayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
