package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ghe-token-broker/internal/events"
)

// AuditService writes token lifecycle events to the structured log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTransitIssued, a.handleIssued)
	a.dispatcher.Subscribe(events.EventSessionIssued, a.handleIssued)
	a.dispatcher.Subscribe(events.EventSessionVerified, a.handleVerified)
	a.dispatcher.Subscribe(events.EventIssueFailed, a.handleFailure)
	a.dispatcher.Subscribe(events.EventVerificationRejected, a.handleFailure)
}

func (a *AuditService) handleIssued(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.TokenIssuedPayload); ok {
		fields = append(fields, zap.String("kind", string(p.Kind)), zap.Time("expires_at", p.ExpiresAt))
	}
	a.logger.Info("token issued", fields...)
	return nil
}

func (a *AuditService) handleVerified(_ context.Context, event events.Event) error {
	a.logger.Debug("session verified", a.baseFields(event)...)
	return nil
}

func (a *AuditService) handleFailure(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.FailurePayload); ok {
		fields = append(fields, zap.String("code", p.Code), zap.String("reason", p.Reason))
	}
	a.logger.Warn(string(event.Type), fields...)
	return nil
}

func (a *AuditService) baseFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("subject", event.Subject),
		zap.String("request_id", event.RequestID),
		zap.Time("timestamp", event.Timestamp),
	}
}
