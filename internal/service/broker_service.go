package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/spec-kit/ghe-token-broker/internal/auth"
	"github.com/spec-kit/ghe-token-broker/internal/config"
	"github.com/spec-kit/ghe-token-broker/internal/domain"
	"github.com/spec-kit/ghe-token-broker/internal/events"
	"github.com/spec-kit/ghe-token-broker/internal/identity"
	"github.com/spec-kit/ghe-token-broker/internal/observability"
	apperrors "github.com/spec-kit/ghe-token-broker/pkg/util/errorutil"
)

// User-facing messages. Issue-flow messages end up in the front-end redirect.
const (
	MsgMissingCode       = "Parametro 'code' mancante"
	MsgExchangeFailed    = "Scambio token fallito"
	MsgProfileNotFound   = "Impossibile ottenere il profilo utente"
	MsgUpstreamFailure   = "Errore di comunicazione con GitHub Enterprise"
	MsgMissingToken      = "Missing token"
	MsgInvalidToken      = "Invalid or expired token"
	MsgUnknownTokenType  = "Unknown token type"
	maxUpstreamDetailLen = 200
)

// IdentityProvider is the part of the identity client the broker depends on.
type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (*identity.Profile, error)
}

// VerifyResult is returned by a successful verification. SessionToken is only
// set when a transit token was redeemed.
type VerifyResult struct {
	Login        string
	SessionToken string
}

// BrokerDependencies encapsulates collaborators of the broker service.
type BrokerDependencies struct {
	Identity   IdentityProvider
	Codec      *auth.Codec
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// BrokerService turns authorization codes into transit tokens and redeems them.
type BrokerService struct {
	identity   IdentityProvider
	codec      *auth.Codec
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	transitTTL time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// BrokerOption customizes the service.
type BrokerOption func(*BrokerService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) BrokerOption {
	return func(s *BrokerService) { s.now = now }
}

// NewBrokerService builds the service.
func NewBrokerService(cfg config.TokenConfig, deps BrokerDependencies, opts ...BrokerOption) *BrokerService {
	s := &BrokerService{
		identity:   deps.Identity,
		codec:      deps.Codec,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		transitTTL: cfg.TransitTTL(),
		sessionTTL: cfg.SessionTTL(),
		now:        time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.transitTTL <= 0 {
		s.transitTTL = 300 * time.Second
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 8 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue exchanges code with the identity provider and mints a transit token.
func (s *BrokerService) Issue(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", s.issueFailed(ctx, apperrors.NewMissingInput(MsgMissingCode))
	}

	token, err := s.identity.ExchangeCode(ctx, code)
	if err != nil {
		return "", s.issueFailed(ctx, s.mapIdentityError("token exchange", err))
	}

	profile, err := s.identity.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return "", s.issueFailed(ctx, s.mapIdentityError("user profile", err))
	}

	now := s.now()
	transit, err := s.codec.Mint(profile.Login, domain.TokenKindTransit, s.transitTTL, now)
	if err != nil {
		return "", s.issueFailed(ctx, apperrors.NewInternalError(err))
	}

	s.metrics.RecordMint(string(domain.TokenKindTransit))
	s.logger.Info("oauth exchange completed",
		zap.String("request_id", observability.RequestIDFromContext(ctx)),
		zap.String("login", profile.Login))
	s.publish(ctx, events.EventTransitIssued, profile.Login, events.TokenIssuedPayload{
		Kind:      domain.TokenKindTransit,
		ExpiresAt: now.Add(s.transitTTL),
	})
	return transit, nil
}

// Verify validates token and, for transit tokens, mints a session token.
func (s *BrokerService) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, s.verifyFailed(ctx, "missing", apperrors.NewMissingInput(MsgMissingToken))
	}

	now := s.now()
	payload, err := s.codec.Verify(token, now)
	if err != nil {
		return nil, s.verifyFailed(ctx, "invalid", apperrors.NewInvalidToken(MsgInvalidToken, err))
	}

	switch payload.Kind {
	case domain.TokenKindTransit:
		session, err := s.codec.Mint(payload.Subject, domain.TokenKindSession, s.sessionTTL, now)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		s.metrics.RecordMint(string(domain.TokenKindSession))
		s.metrics.RecordVerification("transit")
		s.publish(ctx, events.EventSessionIssued, payload.Subject, events.TokenIssuedPayload{
			Kind:      domain.TokenKindSession,
			ExpiresAt: now.Add(s.sessionTTL),
		})
		return &VerifyResult{Login: payload.Subject, SessionToken: session}, nil
	case domain.TokenKindSession:
		s.metrics.RecordVerification("session")
		s.publish(ctx, events.EventSessionVerified, payload.Subject, nil)
		return &VerifyResult{Login: payload.Subject}, nil
	default:
		return nil, s.verifyFailed(ctx, "unknown_kind",
			apperrors.NewInvalidToken(MsgUnknownTokenType, fmt.Errorf("unknown token kind %q", payload.Kind)))
	}
}

func (s *BrokerService) mapIdentityError(step string, err error) error {
	var exErr *identity.ExchangeError
	var upErr *identity.UpstreamError
	switch {
	case errors.As(err, &exErr):
		return apperrors.NewTokenExchangeFailed(MsgExchangeFailed+": "+exErr.Detail(), err)
	case errors.Is(err, identity.ErrProfileNotFound):
		return apperrors.NewProfileFetchFailed(MsgProfileNotFound, err)
	case errors.As(err, &upErr):
		return apperrors.NewUpstreamError(upstreamMessage(step, upErr), err)
	default:
		return apperrors.NewInternalError(err)
	}
}

func upstreamMessage(step string, upErr *identity.UpstreamError) string {
	detail := "timeout o errore di rete"
	if upErr.StatusCode != 0 {
		detail = fmt.Sprintf("HTTP %d", upErr.StatusCode)
		if upErr.Body != "" {
			detail += " " + upErr.Body
		}
	}
	msg := fmt.Sprintf("%s (%s): %s", MsgUpstreamFailure, step, detail)
	if r := []rune(msg); len(r) > maxUpstreamDetailLen {
		msg = string(r[:maxUpstreamDetailLen])
	}
	return msg
}

func (s *BrokerService) issueFailed(ctx context.Context, err error) error {
	de := apperrors.ToDomainError(err)
	s.publish(ctx, events.EventIssueFailed, "", events.FailurePayload{Code: de.Code, Reason: de.Error()})
	return err
}

func (s *BrokerService) verifyFailed(ctx context.Context, outcome string, err error) error {
	de := apperrors.ToDomainError(err)
	s.metrics.RecordVerification(outcome)
	s.publish(ctx, events.EventVerificationRejected, "", events.FailurePayload{Code: de.Code, Reason: de.Error()})
	return err
}

func (s *BrokerService) publish(ctx context.Context, typ events.EventType, subject string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Subject:   subject,
		RequestID: observability.RequestIDFromContext(ctx),
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}
